package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/franzego/tourpush/internal/platform"
	"github.com/franzego/tourpush/internal/services"
	"github.com/franzego/tourpush/internal/subscription"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

type EnableCmd struct {
	flags *Flags
}

func NewEnableCmd(flags *Flags) *EnableCmd {
	return &EnableCmd{flags: flags}
}

func (cmd *EnableCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "enable",
		Usage:       "Enable push notifications on this device",
		UsageText:   "tourpush enable [--token <jwt>]",
		Description: "Asks for notification permission once, subscribes this device and stores the subscription with the booking backend.",
		Flags:       []cli.Flag{tokenFlag(cmd.flags)},
		Action:      cmd.run,
	})
	return app
}

func (cmd *EnableCmd) run(ctx context.Context, c *cli.Command) error {
	authToken, err := cmd.flags.AuthToken()
	if err != nil {
		return err
	}
	if authToken == "" {
		return errors.New("enable needs a bearer token: pass --token or set auth.token")
	}

	rdb, err := cmd.flags.redis(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	mgr := newSubscriptionManager(cmd.flags, rdb)
	err = mgr.Enable(ctx, authToken)
	status, msg := mgr.Status()
	if err != nil {
		return fmt.Errorf("push notifications %s: %s", status, msg)
	}
	fmt.Fprintf(c.Root().Writer, "push notifications %s\n", status)
	return nil
}

func newSubscriptionManager(flags *Flags, rdb *redis.Client) *subscription.Manager {
	cfg := flags.Config
	return subscription.NewManager(
		platform.NewPermissions(rdb, platform.HuhPrompter{}),
		platform.NewRegistrar(cfg.Push.AgentURL, flags.Log),
		platform.NewPushManager(rdb, cfg.Push.AgentURL),
		services.NewBackendClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, flags.Log),
		userAgent(),
		flags.Log,
	)
}
