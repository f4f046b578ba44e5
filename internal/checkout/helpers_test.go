package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	payloads []SubmittedPayload
	err      error
}

func (e *recordingEnqueuer) EnqueueSubmitted(_ context.Context, p SubmittedPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.payloads = append(e.payloads, p)
	return nil
}

type fixture struct {
	svc     *Service
	clock   *fakeClock
	tasks   *recordingEnqueuer
	coupons *coupon.MemoryStore
	mr      *miniredis.Miniredis
}

func testPolicy() pricing.Policy {
	return pricing.Policy{
		Currency: "USD",
		Scale:    2,
		Volume:   pricing.VolumeSchedule{{MinQuantity: 3, Percent: pricing.MustPercent("5")}},
		Shipping: pricing.ShippingPolicy{FlatCost: pricing.MustMoney("5.00"), FreeThreshold: pricing.MustMoney("1000.00")},
		Tax:      pricing.TaxPolicy{RatePercent: pricing.MustPercent("15")},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCoupons(t, nil)
}

// newFixtureWithCoupons lets a test put a layer such as the Redis cache in
// front of the in-memory coupon table.
func newFixtureWithCoupons(t *testing.T, wrap func(*redis.Client, coupon.Store) coupon.Store) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine, err := pricing.NewEngine(testPolicy())
	require.NoError(t, err)

	couponExpiry := t0.Add(24 * time.Hour)
	coupons := coupon.NewMemoryStore(pricing.Coupon{
		Code:            "FJZCD3",
		DiscountPercent: pricing.MustPercent("5"),
		Active:          true,
		ExpiresAt:       &couponExpiry,
	})

	var couponStore coupon.Store = coupons
	if wrap != nil {
		couponStore = wrap(client, coupons)
	}

	clock := &fakeClock{t: t0}
	tasks := &recordingEnqueuer{}
	ids := 0
	svc, err := NewService(ServiceConfig{
		Engine:     engine,
		Coupons:    couponStore,
		Sessions:   &RedisStore{Client: client},
		Locker:     lock.Locker{R: client, RetryBackoff: time.Millisecond},
		Tasks:      tasks,
		SessionTTL: 30 * time.Minute,
		LockTTL:    time.Second,
		Now:        clock.Now,
		NewID: func() string {
			ids++
			return fmt.Sprintf("sess-%d", ids)
		},
	})
	require.NoError(t, err)
	return &fixture{svc: svc, clock: clock, tasks: tasks, coupons: coupons, mr: mr}
}

func testAddress() *Address {
	return &Address{
		ReceiverName: "Ana Ruiz",
		Phone:        "+593 99 000 0000",
		Country:      "EC",
		Province:     "Pichincha",
		City:         "Quito",
		PostalCode:   "170150",
		AddressLine1: "Av. Amazonas 123",
	}
}

func validInput() Input {
	return Input{
		UserID:          "user-1",
		ShippingAddress: testAddress(),
		BillingAddress:  testAddress(),
		Items: []pricing.CartLine{{
			ProductID:             "prod-1",
			SellerID:              "seller-1",
			UnitPrice:             pricing.MustMoney("2.00"),
			Quantity:              3,
			SellerDiscountPercent: pricing.MustPercent("50"),
		}},
		CouponCode: "fjzcd3",
	}
}

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr.Fields
}
