package ratelimit

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tugas/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const redisPingTimeout = 3 * time.Second

// NewRedisClient returns nil when REDIS_ADDR is empty. Callers treat a nil
// client as "single instance" and fall back to local behavior.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled() {
		log.Info("redis not configured, rate limiting and distributed locks disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				// redis is an optimisation here; verification keeps working without it
				log.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}
