package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/franzego/tourpush/internal/config"
	"github.com/franzego/tourpush/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const prefetch = 16

// PushHandler handles one plain push payload.
type PushHandler func(ctx context.Context, raw []byte)

type RabbitMqClient struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Config  config.RabbitMQConfig
	log     *zap.Logger
}

func NewRabbitMqService(cfg config.RabbitMQConfig, log *zap.Logger) (*RabbitMqClient, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return &RabbitMqClient{
		Conn:    conn,
		Channel: channel,
		Config:  cfg,
		log:     log,
	}, nil
}

func (r *RabbitMqClient) CloseConnection() {
	r.Channel.Close()
	r.Conn.Close()
}

func (r *RabbitMqClient) IsConnected() bool {
	return r != nil && r.Conn != nil && !r.Conn.IsClosed()
}

// set up our exchange
func (r *RabbitMqClient) SetUpExchangeAndQueue() error {
	if err := r.Channel.ExchangeDeclare(
		r.Config.Exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", r.Config.Exchange, err)
	}
	if _, err := r.Channel.QueueDeclare(
		r.Config.PushQueue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", r.Config.PushQueue, err)
	}
	if err := r.Channel.QueueBind(
		r.Config.PushQueue,
		r.Config.PushQueue,
		r.Config.Exchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", r.Config.PushQueue, err)
	}
	return nil
}

func (r *RabbitMqClient) Publish(ctx context.Context, routingKey string, message interface{}) error {
	by, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	err = r.Channel.PublishWithContext(
		ctx,
		r.Config.Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         by,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishPush queues a plain push for the agent.
func (r *RabbitMqClient) PublishPush(ctx context.Context, msg models.PushMessage) error {
	return r.Publish(ctx, r.Config.PushQueue, msg)
}

// ConsumePush feeds deliveries from the push queue to handle until ctx ends
// or the channel closes. Each delivery is handled on its own goroutine and
// acked once handled; pushes carry no ordering.
func (r *RabbitMqClient) ConsumePush(ctx context.Context, handle PushHandler) error {
	if err := r.Channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := r.Channel.ConsumeWithContext(ctx,
		r.Config.PushQueue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.Config.PushQueue, err)
	}
	return consume(ctx, deliveries, handle, r.log)
}

// acker is the part of amqp.Delivery consume needs.
type acker interface {
	Ack(multiple bool) error
}

type delivery struct {
	body []byte
	ack  acker
}

func consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle PushHandler, log *zap.Logger) error {
	in := make(chan delivery)
	go func() {
		defer close(in)
		for d := range deliveries {
			select {
			case in <- delivery{body: d.Body, ack: d}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return dispatch(ctx, in, handle, log)
}

func dispatch(ctx context.Context, in <-chan delivery, handle PushHandler, log *zap.Logger) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-in:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("push delivery channel closed")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				// handling outlives cancellation so an accepted push is not dropped
				handle(context.WithoutCancel(ctx), d.body)
				if err := d.ack.Ack(false); err != nil {
					log.Warn("ack push delivery failed", zap.Error(err))
				}
			}()
		}
	}
}
