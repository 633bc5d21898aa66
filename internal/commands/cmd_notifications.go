package commands

import (
	"context"
	"fmt"

	"github.com/franzego/tourpush/internal/services"
	"github.com/urfave/cli/v3"
)

type NotificationsCmd struct {
	flags *Flags
}

func NewNotificationsCmd(flags *Flags) *NotificationsCmd {
	return &NotificationsCmd{flags: flags}
}

func (cmd *NotificationsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "notifications",
			Usage:     "List system notifications the agent is showing",
			UsageText: "tourpush notifications",
			Action:    cmd.list,
		},
		&cli.Command{
			Name:      "click",
			Usage:     "Click a system notification",
			UsageText: "tourpush click <notification-id>",
			Action:    cmd.click,
		},
	)
	return app
}

func (cmd *NotificationsCmd) list(ctx context.Context, c *cli.Command) error {
	items, err := services.NewAgentClient(cmd.flags.Config.Push.AgentURL).Notifications(ctx)
	if err != nil {
		return err
	}
	out := c.Root().Writer
	if len(items) == 0 {
		fmt.Fprintln(out, "no notifications")
		return nil
	}
	for _, n := range items {
		fmt.Fprintf(out, "%s  %s  %s  → %s\n", n.ID, n.ShownAt.Local().Format("15:04:05"), n.Title, n.TargetURL())
	}
	return nil
}

func (cmd *NotificationsCmd) click(ctx context.Context, c *cli.Command) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("usage: %s", c.UsageText)
	}
	outcome, err := services.NewAgentClient(cmd.flags.Config.Push.AgentURL).Click(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case outcome.Focused != "":
		fmt.Fprintf(c.Root().Writer, "focused page %s at %s\n", outcome.Focused, outcome.Target)
	case outcome.Opened:
		fmt.Fprintf(c.Root().Writer, "opened %s\n", outcome.Target)
	default:
		fmt.Fprintf(c.Root().Writer, "could not open %s\n", outcome.Target)
	}
	return nil
}
