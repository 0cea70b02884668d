package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/peerbeam/peerbeam/internal/config"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), config.RedisPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// ConnChannel is the pub/sub channel carrying events addressed to one
// websocket connection, wherever it is attached.
func ConnChannel(connID string) string {
	return fmt.Sprintf("conn:%s", connID)
}
