package port

import (
	"context"
	"time"
)

// DeadLetter is an envelope whose publish failed and that must not be lost.
type DeadLetter struct {
	ID        string
	Event     string
	Envelope  []byte
	Error     string
	CreatedAt time.Time
}

// DeadLetterRepository stores failed critical envelopes for operator replay.
type DeadLetterRepository interface {
	// Save persists a dead letter.
	Save(ctx context.Context, dl DeadLetter) error
	// ListPending returns unreplayed dead letters, oldest first, up to limit.
	ListPending(ctx context.Context, limit int) ([]DeadLetter, error)
	// MarkProcessed marks a dead letter as replayed.
	MarkProcessed(ctx context.Context, id string) error
}
