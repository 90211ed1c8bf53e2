package port

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is one published broadcast: a single event fanned to several channels.
type Envelope struct {
	ID       string          `json:"id"`
	Event    string          `json:"event"`
	Channels []string        `json:"channels"`
	Data     json.RawMessage `json:"data"`
	SentAt   time.Time       `json:"sent_at"`
}

// Transport publishes an envelope to every listed channel in one call.
// Delivery is at-most-once; implementations must not retry internally.
type Transport interface {
	Publish(ctx context.Context, env Envelope) error
}

// Feed is the subscriber side of a bus transport.
type Feed interface {
	// Subscribe calls handler for every envelope until ctx is done or the
	// returned stop function is called.
	Subscribe(ctx context.Context, handler func(Envelope)) (stop func() error, err error)
}
