package coupon

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

// GuardedStore trips a circuit breaker when Next keeps failing so that a
// database outage fails quotes fast instead of stacking up timeouts.
// ErrNotFound is an answer, not a failure.
type GuardedStore struct {
	Next    Store
	Breaker *resilience.Breaker
}

// FindByCode implements Store.
func (s *GuardedStore) FindByCode(ctx context.Context, code string) (pricing.Coupon, error) {
	if s.Breaker == nil {
		return s.Next.FindByCode(ctx, code)
	}
	var found pricing.Coupon
	err := s.Breaker.Do(ctx, func(ctx context.Context) error {
		c, err := s.Next.FindByCode(ctx, code)
		found = c
		return err
	}, func(err error) bool {
		return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
	})
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return pricing.Coupon{}, fmt.Errorf("coupon store unavailable: %w", err)
	}
	if err != nil {
		return pricing.Coupon{}, err
	}
	return found, nil
}

// Upsert implements Writer when Next does. Writes bypass the breaker.
func (s *GuardedStore) Upsert(ctx context.Context, c pricing.Coupon) error {
	w, ok := s.Next.(Writer)
	if !ok {
		return errors.New("coupon store is read-only")
	}
	return w.Upsert(ctx, c)
}
