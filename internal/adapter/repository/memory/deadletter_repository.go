package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/strogmv/fanout/internal/port"
)

// DeadLetterRepository keeps dead letters in process memory. They are lost on restart.
type DeadLetterRepository struct {
	mu        sync.Mutex
	items     map[string]port.DeadLetter
	processed map[string]bool
}

func NewDeadLetterRepository() *DeadLetterRepository {
	return &DeadLetterRepository{
		items:     make(map[string]port.DeadLetter),
		processed: make(map[string]bool),
	}
}

func (r *DeadLetterRepository) Save(ctx context.Context, dl port.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[dl.ID]; ok {
		return nil
	}
	dl.Envelope = append([]byte(nil), dl.Envelope...)
	r.items[dl.ID] = dl
	return nil
}

func (r *DeadLetterRepository) ListPending(ctx context.Context, limit int) ([]port.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []port.DeadLetter
	for id, dl := range r.items {
		if !r.processed[id] {
			out = append(out, dl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DeadLetterRepository) MarkProcessed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; ok {
		r.processed[id] = true
	}
	return nil
}

var _ port.DeadLetterRepository = (*DeadLetterRepository)(nil)
