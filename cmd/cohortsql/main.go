// Package main is the entry point for the cohortsql CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/satishbabariya/cohortsql/cmd/cohortsql/commands"
	"github.com/satishbabariya/cohortsql/internal/debug"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := commands.NewApp()
	defer func() {
		_ = app.Close(context.Background())
		_ = debug.Sync()
	}()

	return commands.NewRootCommand(app).ExecuteContext(ctx)
}
