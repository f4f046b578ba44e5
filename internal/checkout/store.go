package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists checkout sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Data, error)
	Save(ctx context.Context, d *Data) error
}

// RedisStore keeps sessions as JSON documents. Retention bounds how long a
// session survives after its last write, independent of its checkout window.
type RedisStore struct {
	Client    *redis.Client
	Prefix    string
	Retention time.Duration
}

// Get loads a session or returns ErrSessionNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (*Data, error) {
	if s == nil || s.Client == nil {
		return nil, errors.New("checkout store not configured")
	}
	raw, err := s.Client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &d, nil
}

// Save writes d, resetting its retention.
func (s *RedisStore) Save(ctx context.Context, d *Data) error {
	if s == nil || s.Client == nil {
		return errors.New("checkout store not configured")
	}
	if d == nil || d.SessionID == "" {
		return errors.New("checkout store: session id is required")
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", d.SessionID, err)
	}
	if err := s.Client.Set(ctx, s.key(d.SessionID), raw, s.retention()).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", d.SessionID, err)
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "checkout:session:"
	}
	return prefix + id
}

func (s *RedisStore) retention() time.Duration {
	if s.Retention <= 0 {
		return 24 * time.Hour
	}
	return s.Retention
}
