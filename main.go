package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/TomBraudo/windows-assistant/cmd"
)

// main is the entry point for the wassist CLI.
func main() {
	// A signal-aware context lets Ctrl+C abort the session cleanly; the
	// controller records the abort and still writes its report.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
