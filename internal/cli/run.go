package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"

	"github.com/straychat/straychat/internal/app"
	"github.com/straychat/straychat/internal/config"
	"github.com/straychat/straychat/internal/media"
	"github.com/straychat/straychat/internal/moderation"
	"github.com/straychat/straychat/internal/signaling"
	"github.com/straychat/straychat/internal/util"
)

// runChat assembles the whole client for one mode and blocks until the
// context is cancelled or the user quits.
func runChat(ctx context.Context, mode string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Mode = mode
	if serverFlag != "" {
		cfg.ServerURL = serverFlag
	}

	// The server may publish fresher settings next to its socket endpoint.
	if base, ok := httpBase(cfg.ServerURL); ok {
		if remote := config.Discover(ctx, base, cfg); remote != nil && remote.MOTD != "" {
			pterm.Info.Println(remote.MOTD)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := moderation.OpenStore(filepath.Join(cfg.DataDir, "moderation.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	transport := signaling.New(cfg.ServerURL)
	defer transport.Close()

	var negotiator app.Negotiator
	if mode == "video" {
		negotiator = media.NewNegotiator(media.NewPeerConn, app.NewSignalSender(transport))
	}

	renderer := newRenderer()
	client := app.New(cfg, transport, transport, renderer, negotiator, store)

	if err := transport.Connect(ctx); err != nil {
		return err
	}
	util.StartStatsReporter(ctx)

	pterm.Info.Println(fmt.Sprintf("straychat %s — %s mode", version, mode))
	printHelp()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readInput(ctx, cancel, client)

	client.Start()
	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// httpBase converts the WebSocket URL into the HTTP origin serving
// config.json. A URL that does not parse yields no base.
func httpBase(wsURL string) (string, bool) {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", false
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String(), true
}

func printHelp() {
	pterm.Println()
	pterm.DefaultBasicText.Println(
		"Type to chat. Commands: /next  /stop  /yes  /no  /block  /report <reason>  /quit")
	pterm.Println()
}
