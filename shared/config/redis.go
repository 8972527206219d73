package config

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
)

// ConnectRedis returns nil without error when redis is not configured.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}

	log := logger.WithComponent("redis")
	log.Info().Str("address", cfg.Address).Msg("Connected to Redis")
	return client, nil
}
