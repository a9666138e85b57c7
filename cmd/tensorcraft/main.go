package main

import (
	"context"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/command"
	"github.com/cirruslabs/tensorcraft/internal/logginglevel"
	"go.uber.org/zap"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Set up signal interruptible context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize logger
	config := zap.NewProductionConfig()
	config.Level = logginglevel.Level

	logger, err := config.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	zap.ReplaceGlobals(logger)

	if err := command.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// Deferred calls don't run on os.Exit()
		_ = logger.Sync()
		cancel()

		os.Exit(1)
	}
}
