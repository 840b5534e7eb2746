package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/soyeahso/voicesquad/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Re-exec when the binary on disk is replaced
	go autorestart.RestartOnChange()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicesquad: %v\n", err)
		os.Exit(1)
	}
}
