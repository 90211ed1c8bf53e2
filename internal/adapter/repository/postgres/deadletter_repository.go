package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/fanout/internal/port"
)

// Schema creates the dead letter table. It is safe to run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS broadcast_dead_letters (
	id           TEXT PRIMARY KEY,
	event        TEXT        NOT NULL,
	envelope     JSONB       NOT NULL,
	error        TEXT        NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS broadcast_dead_letters_pending
	ON broadcast_dead_letters (created_at) WHERE processed_at IS NULL;
`

type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type txKey struct{}

// WithTx makes repository calls made with the returned context join tx.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func getExecutor(ctx context.Context, pool *pgxpool.Pool) executor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// DeadLetterRepository stores failed critical envelopes in Postgres.
type DeadLetterRepository struct {
	DB *pgxpool.Pool
}

func NewDeadLetterRepository(pool *pgxpool.Pool) *DeadLetterRepository {
	return &DeadLetterRepository{DB: pool}
}

// Connect opens a pool and applies Schema.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply dead letter schema: %w", err)
	}
	return pool, nil
}

func (r *DeadLetterRepository) Save(ctx context.Context, dl port.DeadLetter) error {
	exec := getExecutor(ctx, r.DB)
	_, err := exec.Exec(ctx,
		`INSERT INTO broadcast_dead_letters (id, event, envelope, error, created_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		dl.ID, dl.Event, dl.Envelope, dl.Error, dl.CreatedAt)
	return err
}

func (r *DeadLetterRepository) ListPending(ctx context.Context, limit int) ([]port.DeadLetter, error) {
	exec := getExecutor(ctx, r.DB)
	rows, err := exec.Query(ctx,
		`SELECT id, event, envelope, error, created_at FROM broadcast_dead_letters
		 WHERE processed_at IS NULL ORDER BY created_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []port.DeadLetter
	for rows.Next() {
		var dl port.DeadLetter
		if err := rows.Scan(&dl.ID, &dl.Event, &dl.Envelope, &dl.Error, &dl.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, dl)
	}
	return items, rows.Err()
}

func (r *DeadLetterRepository) MarkProcessed(ctx context.Context, id string) error {
	exec := getExecutor(ctx, r.DB)
	_, err := exec.Exec(ctx, "UPDATE broadcast_dead_letters SET processed_at = NOW() WHERE id = $1", id)
	return err
}

var _ port.DeadLetterRepository = (*DeadLetterRepository)(nil)
