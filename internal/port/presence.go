package port

import (
	"context"
	"time"
)

// PresenceReader reports which users currently hold a live subscriber connection.
type PresenceReader interface {
	Online(ctx context.Context, userIDs []int64) (map[int64]bool, error)
}

// PresenceStore is written by the subscriber gateway.
type PresenceStore interface {
	PresenceReader
	Touch(ctx context.Context, userID int64, at time.Time) error
	Leave(ctx context.Context, userID int64) error
}
