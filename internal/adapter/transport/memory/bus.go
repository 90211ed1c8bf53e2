// Package memory is an in-process transport used for single-node
// deployments and tests. Published envelopes go straight to local subscribers.
package memory

import (
	"context"
	"sync"

	"github.com/strogmv/fanout/internal/port"
)

// Bus keeps no history; an envelope published with no subscriber is gone.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]func(port.Envelope)
	nextID uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]func(port.Envelope))}
}

var (
	_ port.Transport = (*Bus)(nil)
	_ port.Feed      = (*Bus)(nil)
)

// Publish hands env to every subscriber synchronously. Subscribers must not block.
func (b *Bus) Publish(ctx context.Context, env port.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	handlers := make([]func(port.Envelope), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, handler func(port.Envelope)) (func() error, error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = handler
	b.mu.Unlock()

	var once sync.Once
	stop := func() error {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
		return nil
	}
	go func() {
		<-ctx.Done()
		_ = stop()
	}()
	return stop, nil
}

// Subscribers reports how many handlers are attached.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
