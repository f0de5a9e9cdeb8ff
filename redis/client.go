// Package redis wraps the asynq client and server used for durable
// note-event dispatch.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
)

// Config holds the Redis connection parameters for the task queue.
type Config struct {
	Addr          string
	Password      string
	DB            int
	Workers       int
	MaxRetries    int
	RetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}

	if c.Workers <= 0 {
		c.Workers = 10
	}

	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}

	if c.RetryInterval <= 0 {
		c.RetryInterval = 30 * time.Second
	}

	return c
}

func (c Config) clientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Client wraps an asynq client with a connection health check.
type Client struct {
	client *asynq.Client
	ping   *goredis.Client
}

// NewClient builds a task queue client and verifies the connection
// with a ping.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	ping := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ping.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{
		client: asynq.NewClient(cfg.clientOpt()),
		ping:   ping,
	}, nil
}

// Enqueue schedules a task for processing.
func (c *Client) Enqueue(ctx context.Context, taskType string, payload []byte, opts ...asynq.Option) error {
	task := asynq.NewTask(taskType, payload)

	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// IsHealthy reports whether the redis connection responds to ping.
func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.ping.Ping(ctx).Err() == nil
}

func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return err
	}

	return c.ping.Close()
}
