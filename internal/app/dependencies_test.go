package app

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

func TestBuildWithoutDatabase(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":    "redis://" + mr.Addr() + "/0",
		"DATABASE_URL": "",
		"COUPONS":      "FJZCD3:5",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	deps, err := Build(ctx, cfg, zerolog.Nop(), "toko-pricing-test")
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	require.Nil(t, deps.DB)
	require.IsType(t, &coupon.MemoryStore{}, deps.Coupons)
	c, err := deps.Coupons.FindByCode(ctx, "fjzcd3")
	require.NoError(t, err)
	require.Equal(t, "5", c.DiscountPercent.String())

	q, err := deps.Checkout.Quote(ctx, []pricing.CartLine{{
		ProductID:             "p-1",
		UnitPrice:             pricing.MustMoney("2.00"),
		Quantity:              3,
		SellerDiscountPercent: pricing.MustPercent("50"),
	}}, "FJZCD3")
	require.NoError(t, err)
	require.Equal(t, "USD", q.Currency)
}

func TestRedisConnOpt(t *testing.T) {
	_, err := RedisConnOpt(&config.Config{})
	require.Error(t, err)
	opt, err := RedisConnOpt(&config.Config{RedisURL: "redis://localhost:6379/2"})
	require.NoError(t, err)
	require.NotNil(t, opt)
}
