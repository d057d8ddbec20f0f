package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/roman-kulish/leo-telemetry/cmd/dashboard/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      &logLevel,
		TimeFormat: time.TimeOnly,
	}))

	config, err := app.NewConfigFromArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logger.Error(err.Error())
		os.Exit(1)
	}

	logLevel.Set(config.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger, os.Stdout); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
