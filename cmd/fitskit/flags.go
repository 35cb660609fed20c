package main

import (
	"context"
	"os"

	"github.com/samcharles93/fitskit/internal/logger"
	"github.com/samcharles93/fitskit/pkg/fits"
	"github.com/urfave/cli/v3"
)

var (
	logLevel  string
	logFormat string
	debug     bool
	hduIndex  int64
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "warn",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func hduFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:        "hdu",
		Usage:       "0-based HDU index (-1 skips an empty primary)",
		Value:       fits.DefaultHDU,
		Destination: &hduIndex,
	}
}

// setupLogging applies the config file, then builds the logger every command
// pulls from the context.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configPath())
	if err != nil {
		return ctx, err
	}
	applyLoggingConfig(cmd, cfg)
	if debug {
		logLevel = "debug"
	}
	log, err := logger.Build(os.Stderr, logFormat, logger.ParseLevel(logLevel))
	if err != nil {
		return ctx, err
	}
	ctx = withConfig(ctx, cfg)
	return logger.WithContext(ctx, log), nil
}

func fitsOptions(ctx context.Context) []fits.Option {
	return []fits.Option{fits.WithLogger(logger.FromContext(ctx))}
}
