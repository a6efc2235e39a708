package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/supsol/poreview/internal/app"
	"github.com/supsol/poreview/internal/cli"
	"github.com/supsol/poreview/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connect := func(ctx context.Context) (*cli.Backend, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		zerolog.TimeFieldFormat = time.RFC3339
		level, _ := zerolog.ParseLevel(cfg.LogLevel)
		logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).With().Str("service", "poreview-cli").Logger()

		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &cli.Backend{Reviewer: a.Review, Notifier: a.Notifier, Seeds: a.Store, Close: a.Close}, nil
	}

	if err := cli.NewRootCmd(connect).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
