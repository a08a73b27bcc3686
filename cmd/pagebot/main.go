// Package main contains the entrypoint for the pagebot service and its
// administration commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgard/pagebot/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
