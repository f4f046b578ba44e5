package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// CachedStore is a Redis read-through cache in front of another Store.
// Only found coupons are cached, so a newly created code is visible at once.
type CachedStore struct {
	Next   Store
	Client *redis.Client
	TTL    time.Duration
	Prefix string
	Logger *zerolog.Logger
}

// FindByCode implements Store. Cache failures fall through to Next.
func (s *CachedStore) FindByCode(ctx context.Context, code string) (pricing.Coupon, error) {
	if s == nil || s.Next == nil {
		return pricing.Coupon{}, errors.New("coupon cache not configured")
	}
	key := pricing.NormalizeCode(code)
	if key == "" {
		return pricing.Coupon{}, ErrNotFound
	}
	if s.Client == nil || s.TTL <= 0 {
		return s.Next.FindByCode(ctx, key)
	}

	cacheKey := s.key(key)
	data, err := s.Client.Get(ctx, cacheKey).Bytes()
	switch {
	case err == nil:
		var c pricing.Coupon
		jsonErr := json.Unmarshal(data, &c)
		if jsonErr == nil {
			obs.Inc(obs.CouponLookupTotal, "redis", "hit")
			return c, nil
		}
		s.warn(jsonErr, cacheKey, "decode cached coupon")
	case errors.Is(err, redis.Nil):
		obs.Inc(obs.CouponLookupTotal, "redis", "miss")
	default:
		s.warn(err, cacheKey, "read coupon cache")
	}

	c, err := s.Next.FindByCode(ctx, key)
	if err != nil {
		return pricing.Coupon{}, err
	}
	s.put(ctx, cacheKey, c)
	return c, nil
}

// FindFresh reads Next directly and refreshes the cached entry. Callers that
// commit to a coupon use it so that a coupon switched off in the backing
// store is never accepted from a stale cache.
func (s *CachedStore) FindFresh(ctx context.Context, code string) (pricing.Coupon, error) {
	if s == nil || s.Next == nil {
		return pricing.Coupon{}, errors.New("coupon cache not configured")
	}
	key := pricing.NormalizeCode(code)
	if key == "" {
		return pricing.Coupon{}, ErrNotFound
	}
	c, err := s.Next.FindByCode(ctx, key)
	if s.Client == nil || s.TTL <= 0 {
		return c, err
	}
	cacheKey := s.key(key)
	switch {
	case err == nil:
		s.put(ctx, cacheKey, c)
	case errors.Is(err, ErrNotFound):
		if delErr := s.Client.Del(ctx, cacheKey).Err(); delErr != nil {
			s.warn(delErr, cacheKey, "evict coupon cache")
		}
	}
	return c, err
}

// Upsert writes the coupon through Next and evicts the cached entry.
func (s *CachedStore) Upsert(ctx context.Context, c pricing.Coupon) error {
	w, ok := s.Next.(Writer)
	if !ok {
		return errors.New("coupon store is read-only")
	}
	if err := w.Upsert(ctx, c); err != nil {
		return err
	}
	return s.Invalidate(ctx, c.Code)
}

func (s *CachedStore) put(ctx context.Context, cacheKey string, c pricing.Coupon) {
	encoded, err := json.Marshal(c)
	if err != nil {
		s.warn(err, cacheKey, "encode coupon")
		return
	}
	if err := s.Client.Set(ctx, cacheKey, encoded, s.TTL).Err(); err != nil {
		s.warn(err, cacheKey, "write coupon cache")
	}
}

// Invalidate drops the cached entry for code.
func (s *CachedStore) Invalidate(ctx context.Context, code string) error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Del(ctx, s.key(pricing.NormalizeCode(code))).Err()
}

func (s *CachedStore) key(code string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "coupon:"
	}
	return prefix + code
}

func (s *CachedStore) warn(err error, key, msg string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn().Err(err).Str("key", key).Msg(msg)
}
