package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/franzego/tourpush/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis with addr %s: %w", cfg.Addr, err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.Addr))
	return client, nil
}
