package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/strogmv/fanout/internal/pkg/logger"
	"github.com/strogmv/fanout/internal/port"
)

// Client publishes envelopes on one Redis pub/sub channel.
type Client struct {
	rdb     *redis.Client
	channel string
}

func NewClient(rdb *redis.Client, channel string) *Client {
	return &Client{rdb: rdb, channel: channel}
}

var (
	_ port.Transport = (*Client)(nil)
	_ port.Feed      = (*Client)(nil)
)

func (c *Client) Publish(ctx context.Context, env port.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := c.rdb.Publish(ctx, c.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, handler func(port.Envelope)) (func() error, error) {
	sub := c.rdb.Subscribe(ctx, c.channel)
	// wait for the confirmation so nothing published after return is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", c.channel, err)
	}
	msgs := sub.Channel()
	go func() {
		for msg := range msgs {
			var env port.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.From(ctx).Warn("dropping malformed envelope", "channel", msg.Channel, "error", err)
				continue
			}
			handler(env)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub.Close, nil
}
