package main

import (
	"context"
	"time"

	"github.com/noah-isme/toko-pricing/internal/app"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seeder").Logger()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	if err := coupon.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migrate coupons")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := app.NewPool(ctx, cfg.DatabaseURL, "toko-pricing-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	rdb, err := app.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer rdb.Close()

	// writes go through the cache so the API never serves a replaced coupon
	store := &coupon.CachedStore{Next: &coupon.PGStore{Q: pool}, Client: rdb, TTL: cfg.CouponCacheTTL, Logger: &logger}
	for _, c := range cfg.Coupons {
		if err := store.Upsert(ctx, c); err != nil {
			logger.Fatal().Err(err).Str("code", c.Code).Msg("seed coupon")
		}
		logger.Info().Str("code", c.Code).Str("percent", c.DiscountPercent.String()).Msg("coupon seeded")
	}
	logger.Info().Int("coupons", len(cfg.Coupons)).Msg("seeding completed")
}
