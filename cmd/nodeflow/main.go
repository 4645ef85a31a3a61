// Command nodeflow replays and inspects node graph update sessions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/randalmurphal/nodeflow/internal/cli"
)

// Version is set by -ldflags at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(Version)
	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "nodeflow:", err)
		stop()
		os.Exit(1)
	}
}
