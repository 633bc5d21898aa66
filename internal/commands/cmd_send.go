package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/platform"
	"github.com/franzego/tourpush/internal/queue"
	"github.com/franzego/tourpush/internal/services"
	"github.com/urfave/cli/v3"
)

type SendCmd struct {
	flags *Flags
	title string
	body  string
	url   string
	data  []string
	plain bool
}

func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send a test push to this device",
		UsageText: "tourpush send --title <title> [--body <text>] [--url <path>] [--data k=v ...] [--plain]",
		Description: `Encrypts a push for the device subscription and delivers it to the agent's
push endpoint, signed with the configured VAPID keys. With --plain the
payload goes unencrypted over the RabbitMQ push queue instead.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Destination: &cmd.title},
			&cli.StringFlag{Name: "body", Destination: &cmd.body},
			&cli.StringFlag{Name: "url", Usage: "page to open on click", Destination: &cmd.url},
			&cli.StringSliceFlag{Name: "data", Usage: "extra data as key=value", Destination: &cmd.data},
			&cli.BoolFlag{Name: "plain", Usage: "publish over RabbitMQ without encryption", Destination: &cmd.plain},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	msg, err := cmd.message()
	if err != nil {
		return err
	}
	if cmd.plain {
		err = cmd.publish(ctx, msg)
	} else {
		err = cmd.send(ctx, msg)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Root().Writer, "sent %q\n", msg.Title)
	return nil
}

func (cmd *SendCmd) message() (models.PushMessage, error) {
	msg := models.PushMessage{Title: cmd.title, Body: cmd.body, URL: cmd.url}
	if len(cmd.data) > 0 {
		msg.Data = make(map[string]interface{}, len(cmd.data))
	}
	for _, kv := range cmd.data {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return msg, fmt.Errorf("--data %q: want key=value", kv)
		}
		msg.Data[k] = v
	}
	return msg, nil
}

func (cmd *SendCmd) publish(ctx context.Context, msg models.PushMessage) error {
	rabbit, err := queue.NewRabbitMqService(cmd.flags.Config.RabbitMQ, cmd.flags.Log)
	if err != nil {
		return err
	}
	defer rabbit.CloseConnection()
	if err := rabbit.SetUpExchangeAndQueue(); err != nil {
		return err
	}
	return rabbit.PublishPush(ctx, msg)
}

func (cmd *SendCmd) send(ctx context.Context, msg models.PushMessage) error {
	cfg := cmd.flags.Config
	if cfg.Push.VAPIDPublicKey == "" || cfg.Push.VAPIDPrivateKey == "" {
		return errors.New("send needs push.vapid_public_key and push.vapid_private_key (see tourpush vapid)")
	}

	rdb, err := cmd.flags.redis(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	sub, err := platform.NewPushManager(rdb, cfg.Push.AgentURL).GetSubscription(ctx)
	if err != nil {
		return err
	}
	if sub == nil {
		return errors.New("this device is not subscribed, run tourpush enable first")
	}

	sender := services.NewPushSender(services.SenderConfig{
		Subscriber:      cfg.Push.Subscriber,
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
	}, cmd.flags.Log)
	return sender.Send(ctx, sub.Public(userAgent()), msg)
}
