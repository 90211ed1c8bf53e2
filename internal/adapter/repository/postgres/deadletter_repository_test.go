package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/fanout/internal/port"
)

// Runs against a real database when FANOUT_TEST_DATABASE_URL is set.
func TestDeadLetterRepository(t *testing.T) {
	url := os.Getenv("FANOUT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FANOUT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	ctx = WithTx(ctx, tx)

	repo := NewDeadLetterRepository(pool)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := port.DeadLetter{ID: uuid.NewString(), Event: "panic-alert.triggered", Envelope: []byte(`{"id":"a"}`), Error: "timeout", CreatedAt: base}
	second := port.DeadLetter{ID: uuid.NewString(), Event: "panic-alert.status-changed", Envelope: []byte(`{"id":"b"}`), Error: "refused", CreatedAt: base.Add(time.Second)}
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, first), "saving twice is a no-op")

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.JSONEq(t, `{"id":"a"}`, string(pending[0].Envelope))

	require.NoError(t, repo.MarkProcessed(ctx, first.ID))
	pending, err = repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}
