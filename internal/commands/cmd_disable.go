package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/franzego/tourpush/internal/platform"
	"github.com/franzego/tourpush/internal/subscription"
	"github.com/urfave/cli/v3"
)

type DisableCmd struct {
	flags           *Flags
	resetPermission bool
}

func NewDisableCmd(flags *Flags) *DisableCmd {
	return &DisableCmd{flags: flags}
}

func (cmd *DisableCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "disable",
		Usage:       "Disable push notifications on this device",
		UsageText:   "tourpush disable [--token <jwt>] [--reset-permission]",
		Description: "Removes the subscription from the booking backend and from this device. The device copy is removed even when the backend call fails.",
		Flags: []cli.Flag{
			tokenFlag(cmd.flags),
			&cli.BoolFlag{
				Name:        "reset-permission",
				Usage:       "forget the notification permission so the next enable asks again",
				Destination: &cmd.resetPermission,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DisableCmd) run(ctx context.Context, c *cli.Command) error {
	authToken, err := cmd.flags.AuthToken()
	if err != nil {
		return err
	}

	rdb, err := cmd.flags.redis(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	mgr := newSubscriptionManager(cmd.flags, rdb)
	err = mgr.Disable(ctx, authToken)
	if err != nil && !errors.Is(err, subscription.ErrRemoteUnsubscribe) {
		return err
	}

	if cmd.resetPermission {
		if err := platform.NewPermissions(rdb, platform.HuhPrompter{}).Reset(ctx); err != nil {
			return err
		}
	}
	if err != nil {
		return fmt.Errorf("device unsubscribed, but the backend may still hold the subscription: %w", err)
	}
	fmt.Fprintln(c.Root().Writer, "push notifications disabled")
	return nil
}
