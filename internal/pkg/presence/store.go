package presence

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:"

// Store tracks which users hold a live subscriber connection. It uses Redis
// when a client is configured so several gateway replicas share one view,
// and an in-process map otherwise.
type Store struct {
	mu          sync.RWMutex
	local       map[int64]time.Time
	redisClient *redis.Client
	ttl         time.Duration
	now         func() time.Time
}

// NewStore builds a store; client may be nil.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Store{
		local:       make(map[int64]time.Time),
		redisClient: client,
		ttl:         ttl,
		now:         time.Now,
	}
}

func key(userID int64) string {
	return presenceKeyPrefix + strconv.FormatInt(userID, 10)
}

// Touch marks the user online until the TTL elapses.
func (s *Store) Touch(ctx context.Context, userID int64, at time.Time) error {
	if s.redisClient != nil {
		return s.redisClient.Set(ctx, key(userID), at.UTC().Format(time.RFC3339), s.ttl).Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[userID] = at.Add(s.ttl)
	return nil
}

// Leave marks the user offline.
func (s *Store) Leave(ctx context.Context, userID int64) error {
	if s.redisClient != nil {
		return s.redisClient.Del(ctx, key(userID)).Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.local, userID)
	return nil
}

// Online reports presence for each requested user.
func (s *Store) Online(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	if s.redisClient != nil {
		keys := make([]string, 0, len(userIDs))
		for _, id := range userIDs {
			keys = append(keys, key(id))
		}
		values, err := s.redisClient.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			str, ok := v.(string)
			out[userIDs[i]] = ok && str != ""
		}
		return out, nil
	}

	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range userIDs {
		until, ok := s.local[id]
		out[id] = ok && now.Before(until)
	}
	return out, nil
}
