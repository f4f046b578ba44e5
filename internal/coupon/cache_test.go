package coupon

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

type countingStore struct {
	Store
	calls int
}

func (c *countingStore) FindByCode(ctx context.Context, code string) (pricing.Coupon, error) {
	c.calls++
	return c.Store.FindByCode(ctx, code)
}

func newCachedStore(t *testing.T, next Store) (*CachedStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &CachedStore{Next: next, Client: client, TTL: time.Minute}, mr
}

func TestCachedStoreReadThrough(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	backing := &countingStore{Store: NewMemoryStore(pricing.Coupon{Code: "FJZCD3", DiscountPercent: pricing.MustPercent("5"), Active: true, ExpiresAt: &expires})}
	store, mr := newCachedStore(t, backing)
	ctx := context.Background()

	first, err := store.FindByCode(ctx, "fjzcd3")
	require.NoError(t, err)
	second, err := store.FindByCode(ctx, "FJZCD3")
	require.NoError(t, err)
	require.Equal(t, 1, backing.calls)
	require.Equal(t, first.Code, second.Code)
	require.Equal(t, 0, first.DiscountPercent.Cmp(second.DiscountPercent))
	require.True(t, first.ExpiresAt.Equal(*second.ExpiresAt))
	require.True(t, mr.Exists("coupon:FJZCD3"))

	mr.FastForward(2 * time.Minute)
	_, err = store.FindByCode(ctx, "FJZCD3")
	require.NoError(t, err)
	require.Equal(t, 2, backing.calls)
}

func TestCachedStoreDoesNotCacheMisses(t *testing.T) {
	backing := NewMemoryStore()
	store, mr := newCachedStore(t, backing)
	ctx := context.Background()

	_, err := store.FindByCode(ctx, "LATER")
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, mr.Exists("coupon:LATER"))

	backing.Put(pricing.Coupon{Code: "LATER", DiscountPercent: pricing.MustPercent("1"), Active: true})
	c, err := store.FindByCode(ctx, "LATER")
	require.NoError(t, err)
	require.Equal(t, "LATER", c.Code)
}

func TestCachedStoreInvalidate(t *testing.T) {
	backing := &countingStore{Store: NewMemoryStore(pricing.Coupon{Code: "X", DiscountPercent: pricing.MustPercent("1"), Active: true})}
	store, _ := newCachedStore(t, backing)
	ctx := context.Background()

	_, err := store.FindByCode(ctx, "X")
	require.NoError(t, err)
	require.NoError(t, store.Invalidate(ctx, "x"))
	_, err = store.FindByCode(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, 2, backing.calls)
}

func TestCachedStoreFindFreshRefreshesDeactivatedCoupon(t *testing.T) {
	backing := NewMemoryStore(pricing.Coupon{Code: "FJZCD3", DiscountPercent: pricing.MustPercent("5"), Active: true})
	store, mr := newCachedStore(t, backing)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.FindByCode(ctx, "FJZCD3")
	require.NoError(t, err)
	backing.Put(pricing.Coupon{Code: "FJZCD3", DiscountPercent: pricing.MustPercent("5"), Active: false})

	stale, err := store.FindByCode(ctx, "FJZCD3")
	require.NoError(t, err)
	require.True(t, stale.Active)

	fresh, err := store.FindFresh(ctx, "fjzcd3")
	require.NoError(t, err)
	require.False(t, fresh.Active)
	require.ErrorIs(t, fresh.Validate(now), pricing.ErrCouponInvalid)

	refreshed, err := store.FindByCode(ctx, "FJZCD3")
	require.NoError(t, err)
	require.False(t, refreshed.Active)

	store.Next = NewMemoryStore()
	_, err = store.FindFresh(ctx, "FJZCD3")
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, mr.Exists("coupon:FJZCD3"))
}

func TestCachedStoreUpsertEvicts(t *testing.T) {
	backing := NewMemoryStore(pricing.Coupon{Code: "FJZCD3", DiscountPercent: pricing.MustPercent("5"), Active: true})
	store, mr := newCachedStore(t, backing)
	ctx := context.Background()

	_, err := store.FindByCode(ctx, "FJZCD3")
	require.NoError(t, err)
	require.True(t, mr.Exists("coupon:FJZCD3"))

	require.NoError(t, store.Upsert(ctx, pricing.Coupon{Code: "fjzcd3", DiscountPercent: pricing.MustPercent("10"), Active: false}))
	require.False(t, mr.Exists("coupon:FJZCD3"))

	got, err := store.FindByCode(ctx, "FJZCD3")
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Equal(t, "10", got.DiscountPercent.String())

	readOnly, _ := newCachedStore(t, &countingStore{Store: backing})
	require.Error(t, readOnly.Upsert(ctx, pricing.Coupon{Code: "X"}))
}
