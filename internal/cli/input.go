package cli

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/straychat/straychat/internal/app"
)

// readInput drives the client from stdin, one line per action. Lines
// starting with "/" are commands; everything else is sent as chat text.
func readInput(ctx context.Context, quit context.CancelFunc, client *app.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			client.Typing(line)
			client.Send(line)
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "/start":
			client.Start()
		case "/next", "/skip":
			client.Next()
		case "/stop":
			client.Stop()
		case "/yes":
			client.ConfirmExit()
		case "/no":
			client.CancelExit()
		case "/block":
			client.Block()
		case "/report":
			reason := strings.TrimSpace(rest)
			if reason == "" {
				pterm.Warning.Println("Usage: /report <reason>")
				continue
			}
			client.Report(reason)
		case "/quit", "/exit":
			quit()
			return
		default:
			pterm.Warning.Println("Unknown command: " + cmd)
		}
	}
	// Stdin closed (EOF); leave cleanly.
	quit()
}
