package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/realtime"
	"github.com/franzego/tourpush/internal/relay"
	"github.com/franzego/tourpush/internal/toast"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

type WatchCmd struct {
	flags   *Flags
	pageURL string
	hidden  bool
	noVis   bool
	mute    bool
}

func NewWatchCmd(flags *Flags) *WatchCmd {
	return &WatchCmd{flags: flags}
}

func (cmd *WatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Open a page that shows notifications as toasts",
		UsageText: "tourpush watch [--url <page url>] [--hidden] [--token <jwt>]",
		Description: `Connects to the agent like an open tab and to the booking event gateway.
Pushes relayed by the agent and booking events become toasts.

Type on stdin to change the page: "hide", "show" or "goto <url>".`,
		Flags: []cli.Flag{
			tokenFlag(cmd.flags),
			&cli.StringFlag{
				Name:        "url",
				Usage:       "url of the page this tab shows (defaults to push.app_url)",
				Destination: &cmd.pageURL,
			},
			&cli.BoolFlag{
				Name:        "hidden",
				Usage:       "start as a hidden tab",
				Destination: &cmd.hidden,
			},
			&cli.BoolFlag{
				Name:        "no-visibility",
				Usage:       "do not report visibility to the agent",
				Destination: &cmd.noVis,
			},
			&cli.BoolFlag{
				Name:        "mute",
				Usage:       "no notification sound",
				Destination: &cmd.mute,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *WatchCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	log := cmd.flags.Log
	out := c.Root().Writer

	printer := toast.NewPrinter(out)
	var sound toast.Sound
	if cfg.Realtime.Sound && !cmd.mute {
		sound = toast.NewBell(out)
	}

	pageURL := cmd.pageURL
	if pageURL == "" {
		pageURL = cfg.Push.AppURL
	}
	visibility := relay.VisibilityVisible
	switch {
	case cmd.noVis:
		visibility = ""
	case cmd.hidden:
		visibility = relay.VisibilityHidden
	}

	listener, err := relay.Dial(ctx, relayURL(cfg.Push.AgentURL), relay.ListenerOptions{
		PageURL:    pageURL,
		Visibility: visibility,
		OnPush: func(m models.PushMessage) {
			printer.Show(toast.Toast{Title: m.Title, Body: m.Body})
			toast.PlaySafely(sound, log)
		},
		OnFocus: func() {
			fmt.Fprintln(out, "» tab focused")
		},
	}, log)
	if err != nil {
		return err
	}
	defer listener.Close()

	authToken, err := cmd.flags.AuthToken()
	if err != nil {
		log.Warn("realtime disabled", zap.Error(err))
	}
	manager := realtime.NewManager(cfg.Realtime.GatewayURL, cfg.Realtime.ReconnectDelay, log)
	defer manager.Close()
	bridge := realtime.NewBridge(manager, realtime.NewFormatter(cfg.Realtime.Locale, time.Local), printer, sound, log)
	if err := bridge.Mount(authToken); err != nil {
		log.Info("realtime bridge not mounted", zap.Error(err))
	}
	defer bridge.Unmount()

	go cmd.readCommands(ctx, os.Stdin, listener)

	fmt.Fprintf(out, "watching %s\n", pageURL)
	return listener.Run(ctx)
}

// readCommands lets the user change the tab's state from stdin.
func (cmd *WatchCmd) readCommands(ctx context.Context, in io.Reader, l *relay.Listener) {
	log := cmd.flags.Log
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		verb, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		var err error
		switch verb {
		case "hide":
			err = l.SetVisible(false)
		case "show":
			err = l.SetVisible(true)
		case "goto":
			err = l.Navigate(strings.TrimSpace(arg))
		case "":
			continue
		default:
			log.Warn("unknown page command", zap.String("command", verb))
			continue
		}
		if err != nil {
			log.Warn("page update failed", zap.String("command", verb), zap.Error(err))
		}
	}
}

func relayURL(agentURL string) string {
	u := strings.TrimRight(agentURL, "/") + "/relay"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
