package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/fanout/internal/port"
)

func TestPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := NewClient(rdb, "fanout:broadcasts")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan port.Envelope, 1)
	stop, err := c.Subscribe(ctx, func(env port.Envelope) { got <- env })
	require.NoError(t, err)
	defer stop()

	env := port.Envelope{
		ID:       "e1",
		Event:    "group-message.sent",
		Channels: []string{"group.2", "admin-monitoring"},
		Data:     json.RawMessage(`{"message":{"id":9}}`),
	}
	require.NoError(t, c.Publish(ctx, env))

	select {
	case received := <-got:
		assert.Equal(t, env.ID, received.ID)
		assert.Equal(t, env.Channels, received.Channels)
	case <-time.After(2 * time.Second):
		t.Fatal("envelope was not received")
	}
}

func TestPublishFailsWhenServerIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := NewClient(rdb, "x").Publish(ctx, port.Envelope{ID: "1", Event: "message.sent"})
	assert.Error(t, err)
}
