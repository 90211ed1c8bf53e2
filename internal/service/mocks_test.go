package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strogmv/fanout/internal/port"
)

type TransportMock struct {
	mu          sync.Mutex
	PublishFunc func(ctx context.Context, env port.Envelope) error
	published   []port.Envelope
}

func (m *TransportMock) Publish(ctx context.Context, env port.Envelope) error {
	m.mu.Lock()
	m.published = append(m.published, env)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, env)
	}
	return nil
}

func (m *TransportMock) Published() []port.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]port.Envelope(nil), m.published...)
}

type DeadLetterRepositoryMock struct {
	SaveFunc          func(ctx context.Context, dl port.DeadLetter) error
	ListPendingFunc   func(ctx context.Context, limit int) ([]port.DeadLetter, error)
	MarkProcessedFunc func(ctx context.Context, id string) error
	saved             []port.DeadLetter
	processed         []string
}

func (m *DeadLetterRepositoryMock) Save(ctx context.Context, dl port.DeadLetter) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, dl); err != nil {
			return err
		}
	}
	m.saved = append(m.saved, dl)
	return nil
}

func (m *DeadLetterRepositoryMock) ListPending(ctx context.Context, limit int) ([]port.DeadLetter, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, limit)
	}
	return nil, nil
}

func (m *DeadLetterRepositoryMock) MarkProcessed(ctx context.Context, id string) error {
	m.processed = append(m.processed, id)
	if m.MarkProcessedFunc != nil {
		return m.MarkProcessedFunc(ctx, id)
	}
	return nil
}

type NotificationDispatcherMock struct {
	DispatchFunc func(ctx context.Context, msg port.NotificationMessage) error
	sent         []port.NotificationMessage
}

func (m *NotificationDispatcherMock) Dispatch(ctx context.Context, msg port.NotificationMessage) error {
	m.sent = append(m.sent, msg)
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, msg)
	}
	return nil
}

type PresenceReaderMock struct {
	OnlineFunc func(ctx context.Context, userIDs []int64) (map[int64]bool, error)
}

func (m *PresenceReaderMock) Online(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	return m.OnlineFunc(ctx, userIDs)
}

// fixedClock returns start and advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("env-%d", n)
	}
}
