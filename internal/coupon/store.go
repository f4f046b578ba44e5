package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrNotFound is returned when no coupon exists for a code.
var ErrNotFound = errors.New("coupon not found")

// Store looks coupons up by code. Codes are compared after pricing.NormalizeCode.
type Store interface {
	FindByCode(ctx context.Context, code string) (pricing.Coupon, error)
}

// Writer persists coupons.
type Writer interface {
	Upsert(ctx context.Context, c pricing.Coupon) error
}

// FreshFinder is implemented by caching stores that can bypass their cache.
type FreshFinder interface {
	FindFresh(ctx context.Context, code string) (pricing.Coupon, error)
}

// MemoryStore serves coupons from process memory, typically loaded from configuration.
type MemoryStore struct {
	mu      sync.RWMutex
	coupons map[string]pricing.Coupon
}

// NewMemoryStore builds a store holding the given coupons.
func NewMemoryStore(coupons ...pricing.Coupon) *MemoryStore {
	s := &MemoryStore{coupons: make(map[string]pricing.Coupon, len(coupons))}
	for _, c := range coupons {
		s.Put(c)
	}
	return s
}

// Put inserts or replaces a coupon.
func (s *MemoryStore) Put(c pricing.Coupon) {
	c.Code = pricing.NormalizeCode(c.Code)
	s.mu.Lock()
	s.coupons[c.Code] = c
	s.mu.Unlock()
}

// Upsert implements Writer.
func (s *MemoryStore) Upsert(_ context.Context, c pricing.Coupon) error {
	s.Put(c)
	return nil
}

// FindByCode implements Store.
func (s *MemoryStore) FindByCode(_ context.Context, code string) (pricing.Coupon, error) {
	key := pricing.NormalizeCode(code)
	if key == "" {
		return pricing.Coupon{}, ErrNotFound
	}
	s.mu.RLock()
	c, ok := s.coupons[key]
	s.mu.RUnlock()
	if !ok {
		obs.Inc(obs.CouponLookupTotal, "memory", "miss")
		return pricing.Coupon{}, ErrNotFound
	}
	obs.Inc(obs.CouponLookupTotal, "memory", "hit")
	return c, nil
}

// ParseList parses "CODE:percent[:expiresRFC3339]" entries separated by
// commas. Listed coupons are active.
func ParseList(value string) ([]pricing.Coupon, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var out []pricing.Coupon
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("coupon entry %q: expected CODE:percent", entry)
		}
		code := pricing.NormalizeCode(parts[0])
		if code == "" {
			return nil, fmt.Errorf("coupon entry %q: empty code", entry)
		}
		pct, err := pricing.NewPercent(parts[1])
		if err != nil {
			return nil, fmt.Errorf("coupon %s: %w", code, err)
		}
		c := pricing.Coupon{Code: code, DiscountPercent: pct, Active: true}
		if len(parts) == 3 {
			expires, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[2]))
			if err != nil {
				return nil, fmt.Errorf("coupon %s: expiry: %w", code, err)
			}
			expires = expires.UTC()
			c.ExpiresAt = &expires
		}
		out = append(out, c)
	}
	return out, nil
}
