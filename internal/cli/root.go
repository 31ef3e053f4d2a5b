// Package cli is the terminal frontend: cobra commands, the pterm chat
// renderer, and the stdin command loop.
package cli

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/straychat/straychat/internal/util"
)

var version = "dev"

var (
	serverFlag string
	debugFlag  bool
)

// NewRootCmd builds the command tree. Running the root with no subcommand
// falls back to an interactive mode picker, like the original desktop flow.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "straychat",
		Short:         "Chat with random strangers from your terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debugFlag {
				util.EnableDebug()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := pterm.DefaultInteractiveSelect.
				WithOptions([]string{"text", "video"}).
				WithDefaultText("How do you want to chat?").
				Show()
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), mode)
		},
	}

	root.PersistentFlags().StringVar(&serverFlag, "server", "", "matchmaking server URL (overrides environment)")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "text",
			Short: "Text chat with a random stranger",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runChat(cmd.Context(), "text")
			},
		},
		&cobra.Command{
			Use:   "video",
			Short: "Video chat with a random stranger",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runChat(cmd.Context(), "video")
			},
		},
	)
	return root
}
