package alert

import (
	"context"
	"fmt"
	"time"

	"netgraph-guard/internal/model"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisNotifier publishes alerts as JSON to a Redis pub/sub channel so
// downstream consumers (SIEM forwarders, dashboards) can pick them up
// without touching the engine's API.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *logrus.Logger
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(addr, password string, db int, channel string, logger *logrus.Logger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}

	return &RedisNotifier{
		client:  client,
		channel: channel,
		logger:  logger,
	}, nil
}

// SendAlert implements Notifier.
func (rn *RedisNotifier) SendAlert(alert model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", alert.ID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rn.client.Publish(ctx, rn.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish alert %s: %w", alert.ID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (rn *RedisNotifier) Close() error {
	return rn.client.Close()
}
