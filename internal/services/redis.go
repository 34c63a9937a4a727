package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// EventChannel is the pub/sub channel booking events are relayed on.
const EventChannel = "booking:events"

// InitRedis connects to Redis and checks the connection.
func InitRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisPublisher publishes events so every API instance can deliver them to
// its own websocket clients.
type RedisPublisher struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisPublisher(client *redis.Client, log *logrus.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Notify(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Error("marshal event for relay")
		return
	}
	if err := p.client.Publish(ctx, EventChannel, data).Err(); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"event":   event.Type,
			"user_id": event.UserID,
		}).Warn("publish event failed")
	}
}
