package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"budgetsync/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*cli.App, error) {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return nil, err
		}
		logger := cli.SetupLogger(os.Stderr, max(cfg.SlogLevel(), slog.LevelWarn))
		// The CLI enqueues so a running worker picks up its commits.
		return cli.NewApp(ctx, cfg, logger, cli.AppOptions{Enqueue: true})
	}

	return cli.NewRootCmd(open).ExecuteContext(ctx)
}
