package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/franzego/tourpush/internal/handlers"
	"github.com/franzego/tourpush/internal/platform"
	"github.com/franzego/tourpush/internal/queue"
	"github.com/franzego/tourpush/internal/relay"
	"github.com/franzego/tourpush/internal/tray"
	"github.com/franzego/tourpush/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

type AgentCmd struct {
	flags *Flags
}

func NewAgentCmd(flags *Flags) *AgentCmd {
	return &AgentCmd{flags: flags}
}

func (cmd *AgentCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "agent",
		Usage:       "Run the push agent",
		UsageText:   "tourpush agent",
		Description: "Receives pushes, relays them to open pages and shows system notifications when no page is visible.",
		Action:      cmd.run,
	})
	return app
}

func (cmd *AgentCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	log := cmd.flags.Log

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	rdb, err := cmd.flags.redis(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	hub := relay.NewHub(log)
	defer hub.Close()
	notifications := tray.New(rdb, log)
	pushManager := platform.NewPushManager(rdb, cfg.Push.AgentURL)
	w := worker.New(hub, notifications, platform.NewBrowserOpener(log), worker.Options{
		Icon:   cfg.Push.Icon,
		Badge:  cfg.Push.Badge,
		Origin: cfg.Push.AppURL,
	}, log)

	// plain pushes over RabbitMQ are optional
	var rabbit *queue.RabbitMqClient
	if cfg.RabbitMQ.URL != "" {
		rabbit, err = queue.NewRabbitMqService(cfg.RabbitMQ, log)
		if err != nil {
			log.Warn("rabbitmq unavailable, plain pushes disabled", zap.Error(err))
		} else {
			defer rabbit.CloseConnection()
			if err := rabbit.SetUpExchangeAndQueue(); err != nil {
				return err
			}
			go func() {
				err := rabbit.ConsumePush(ctx, func(ctx context.Context, raw []byte) {
					w.HandlePush(ctx, raw)
				})
				if err != nil {
					log.Error("push consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	var queueStatus handlers.QueueStatus
	if rabbit != nil {
		queueStatus = rabbit
	}
	router := handlers.NewRouter(handlers.Routes{
		Push:          handlers.NewPushHandler(w, log),
		Notifications: handlers.NewNotificationHandler(notifications, w, log),
		Relay:         handlers.NewRelayHandler(hub, log),
		Health:        handlers.NewHealthHandler(queueStatus, rdb, hub),
		Subscriptions: pushManager,
		PushRateLimit: cfg.Server.PushRateLimit,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("agent listening", zap.String("addr", srv.Addr), zap.String("agent_url", cfg.Push.AgentURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("agent server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down agent")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
