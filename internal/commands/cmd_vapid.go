package commands

import (
	"context"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/urfave/cli/v3"
)

type VAPIDCmd struct{}

func NewVAPIDCmd() *VAPIDCmd {
	return &VAPIDCmd{}
}

func (cmd *VAPIDCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "vapid",
		Usage:     "Generate a VAPID key pair for local testing",
		UsageText: "tourpush vapid",
		Action:    cmd.run,
	})
	return app
}

func (cmd *VAPIDCmd) run(_ context.Context, c *cli.Command) error {
	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Root().Writer, "TOURPUSH_PUSH_VAPID_PUBLIC_KEY=%s\nTOURPUSH_PUSH_VAPID_PRIVATE_KEY=%s\n", public, private)
	return nil
}
