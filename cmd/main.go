package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/franzego/tourpush/internal/commands"
	"github.com/franzego/tourpush/internal/config"
	"github.com/franzego/tourpush/internal/logger"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:    "tourpush",
		Usage:   "Push and real-time notifications for the tour booking client",
		Version: commands.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config.yaml (defaults to ./config.yaml or ./config/config.yaml)",
				Sources:     cli.EnvVars("TOURPUSH_CONFIG"),
				Destination: &flags.ConfigPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.LoadConfigFrom(flags.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("failed to load config: %w", err)
			}
			log, err := logger.New(cfg.IsProduction())
			if err != nil {
				return ctx, fmt.Errorf("failed to build logger: %w", err)
			}
			flags.Config = cfg
			flags.Log = log
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if flags.Log != nil {
				_ = flags.Log.Sync()
			}
			return nil
		},
	}

	app = commands.NewAgentCmd(flags).Register(app)
	app = commands.NewEnableCmd(flags).Register(app)
	app = commands.NewDisableCmd(flags).Register(app)
	app = commands.NewWatchCmd(flags).Register(app)
	app = commands.NewSendCmd(flags).Register(app)
	app = commands.NewNotificationsCmd(flags).Register(app)
	app = commands.NewVAPIDCmd().Register(app)

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
