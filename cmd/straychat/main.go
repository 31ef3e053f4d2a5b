// Straychat — CLI entry point.
//
// This tool pairs you with a random stranger for anonymous text or video
// chat. Matchmaking and signaling run over a WebSocket server; video media
// flows peer to peer over WebRTC.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/straychat/straychat/internal/cli"
	"github.com/straychat/straychat/internal/util"
)

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := cli.NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
