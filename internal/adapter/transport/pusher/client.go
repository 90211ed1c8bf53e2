// Package pusher publishes envelopes to a Pusher-protocol server (Pusher
// Channels, Soketi, Laravel Reverb). Browsers subscribe to the prefixed
// private channels directly, so this transport has no feed.
package pusher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	pushersdk "github.com/pusher/pusher-http-go/v5"

	"github.com/strogmv/fanout/internal/port"
)

// maxChannelsPerTrigger is the server-side limit for one trigger call.
const maxChannelsPerTrigger = 100

type Config struct {
	AppID         string
	Key           string
	Secret        string
	Host          string
	Cluster       string
	Secure        bool
	ChannelPrefix string
	Timeout       time.Duration
}

type Client struct {
	sdk    *pushersdk.Client
	prefix string
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		sdk: &pushersdk.Client{
			AppID:      cfg.AppID,
			Key:        cfg.Key,
			Secret:     cfg.Secret,
			Host:       cfg.Host,
			Cluster:    cfg.Cluster,
			Secure:     cfg.Secure,
			HTTPClient: &http.Client{Timeout: timeout},
		},
		prefix: cfg.ChannelPrefix,
	}
}

var _ port.Transport = (*Client)(nil)

// Publish triggers env.Event on every channel. The SDK takes no context, so the
// call runs aside and ctx only bounds how long Publish waits for it.
func (c *Client) Publish(ctx context.Context, env port.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- c.trigger(env) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("pusher trigger %s: %w", env.Event, ctx.Err())
	}
}

func (c *Client) trigger(env port.Envelope) error {
	channels := make([]string, len(env.Channels))
	for i, ch := range env.Channels {
		channels[i] = c.prefix + ch
	}
	data := string(env.Data)
	for start := 0; start < len(channels); start += maxChannelsPerTrigger {
		end := min(start+maxChannelsPerTrigger, len(channels))
		if err := c.sdk.TriggerMulti(channels[start:end], env.Event, data); err != nil {
			return fmt.Errorf("pusher trigger %s: %w", env.Event, err)
		}
	}
	return nil
}
