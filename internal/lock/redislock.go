package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces checkout session leases.
const DefaultPrefix = "lock:checkout:"

// ErrLeaseLost is returned when the lease expired or was taken by another
// holder while the callback was still running. Work done under a lost lease
// must be treated as unsafe by the caller.
var ErrLeaseLost = errors.New("lock: session lease lost")

// Only the holder of the token may extend or drop the lease.
var (
	renewScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)
)

// SessionKey is the lease key guarding one checkout session.
func SessionKey(sessionID string) string {
	return DefaultPrefix + sessionID
}

// Locker hands out Redis leases on checkout sessions. A session is mutated
// only while its lease is held, so two pipelines never write it concurrently.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	Prefix       string
}

// Key returns the lease key for a session under the configured prefix.
func (l Locker) Key(sessionID string) string {
	if l.Prefix == "" {
		return SessionKey(sessionID)
	}
	return l.Prefix + sessionID
}

// WithSession runs fn while holding the lease on sessionID. The lease is
// renewed every ttl/3 while fn runs; if renewal finds the lease gone, fn's
// context is cancelled and ErrLeaseLost is returned. Waiting for a busy lease
// stops when ctx is done.
func (l Locker) WithSession(ctx context.Context, sessionID string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if sessionID == "" {
		return errors.New("lock: session id is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key := l.Key(sessionID)
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer func() {
		_ = releaseScript.Run(context.Background(), l.R, []string{key}, token).Err()
	}()

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lost := make(chan struct{})
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.renew(workCtx, key, token, ttl, stop, lost, cancel)
	}()

	err := fn(workCtx)
	close(stop)
	<-done

	select {
	case <-lost:
		if err == nil || errors.Is(err, context.Canceled) {
			return ErrLeaseLost
		}
		return errors.Join(ErrLeaseLost, err)
	default:
		return err
	}
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) renew(ctx context.Context, key, token string, ttl time.Duration, stop <-chan struct{}, lost chan<- struct{}, cancel context.CancelFunc) {
	interval := ttl / 3
	if interval <= 0 {
		interval = ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int()
			if err != nil && errors.Is(err, context.Canceled) {
				return
			}
			// transient errors keep the lease until its own ttl runs out
			if err == nil && n == 0 {
				close(lost)
				cancel()
				return
			}
		}
	}
}
