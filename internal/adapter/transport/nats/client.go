package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natspkg "github.com/nats-io/nats.go"

	"github.com/strogmv/fanout/internal/pkg/logger"
	"github.com/strogmv/fanout/internal/port"
)

const (
	headerEvent = "Fanout-Event"
	headerMsgID = "Nats-Msg-Id"
)

// Client publishes every envelope as one message on a single subject; the
// subscriber gateways fan it out to channels.
type Client struct {
	nc      *natspkg.Conn
	subject string
}

func NewClient(url, subject, name string) (*Client, error) {
	nc, err := natspkg.Connect(url,
		natspkg.Name(name),
		natspkg.Timeout(2*time.Second),
		natspkg.MaxReconnects(-1),
		natspkg.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc, subject: subject}, nil
}

var (
	_ port.Transport = (*Client)(nil)
	_ port.Feed      = (*Client)(nil)
)

func (c *Client) Close() {
	c.nc.Close()
}

func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.Status() == natspkg.CONNECTED
}

// Publish sends env and flushes so a dead server is reported within ctx's deadline.
func (c *Client) Publish(ctx context.Context, env port.Envelope) error {
	msg, err := encode(c.subject, env)
	if err != nil {
		return err
	}
	if err := c.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, handler func(port.Envelope)) (func() error, error) {
	sub, err := c.nc.Subscribe(c.subject, func(msg *natspkg.Msg) {
		env, err := decode(msg)
		if err != nil {
			logger.From(ctx).Warn("dropping malformed envelope", "subject", msg.Subject, "error", err)
			return
		}
		handler(env)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", c.subject, err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub.Unsubscribe, nil
}

func encode(subject string, env port.Envelope) (*natspkg.Msg, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	msg := natspkg.NewMsg(subject)
	msg.Header.Set(headerEvent, env.Event)
	msg.Header.Set(headerMsgID, env.ID)
	msg.Data = data
	return msg, nil
}

func decode(msg *natspkg.Msg) (port.Envelope, error) {
	var env port.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return port.Envelope{}, err
	}
	if env.Event == "" {
		env.Event = msg.Header.Get(headerEvent)
	}
	return env, nil
}
