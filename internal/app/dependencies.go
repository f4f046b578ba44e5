package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/checkout"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

// Dependencies holds the collaborators shared by the API and the worker.
type Dependencies struct {
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Coupons    coupon.Store
	Engine     *pricing.Engine
	Checkout   *checkout.Service
	TaskClient *asynq.Client
}

// Build connects to Redis (required) and Postgres (optional) and assembles
// the checkout service. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, service string) (*Dependencies, error) {
	deps := &Dependencies{}
	var err error

	deps.Redis, err = NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL != "" {
		deps.DB, err = NewPool(ctx, cfg.DatabaseURL, service)
		if err != nil {
			deps.Close()
			return nil, err
		}
	}

	deps.Engine, err = pricing.NewEngine(cfg.Pricing)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("pricing engine: %w", err)
	}
	deps.Coupons = deps.couponStore(cfg, logger)

	redisOpt, err := RedisConnOpt(cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.TaskClient = asynq.NewClient(redisOpt)

	deps.Checkout, err = checkout.NewService(checkout.ServiceConfig{
		Engine:     deps.Engine,
		Coupons:    deps.Coupons,
		Sessions:   &checkout.RedisStore{Client: deps.Redis},
		Locker:     lock.Locker{R: deps.Redis},
		Tasks:      checkout.AsynqEnqueuer{Client: deps.TaskClient},
		SessionTTL: cfg.CheckoutSessionTTL,
		LockTTL:    cfg.CheckoutLockTTL,
		Logger:     &logger,
	})
	if err != nil {
		deps.Close()
		return nil, err
	}
	return deps, nil
}

// couponStore reads from Postgres behind the Redis cache when a database is
// configured, otherwise from the COUPONS list.
func (d *Dependencies) couponStore(cfg *config.Config, logger zerolog.Logger) coupon.Store {
	if d.DB == nil {
		return coupon.NewMemoryStore(cfg.Coupons...)
	}
	breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("coupon-postgres").WithLogger(logger)
	return &coupon.CachedStore{
		Next:   &coupon.GuardedStore{Next: &coupon.PGStore{Q: d.DB}, Breaker: breaker},
		Client: d.Redis,
		TTL:    cfg.CouponCacheTTL,
		Logger: &logger,
	}
}

// Close releases every opened connection.
func (d *Dependencies) Close() {
	if d.TaskClient != nil {
		_ = d.TaskClient.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}

// NewRedis opens an instrumented Redis client and pings it.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewPool opens a traced pgx pool and pings it.
func NewPool(ctx context.Context, url, service string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{Component: "coupon-store"}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = service

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// RedisConnOpt derives the asynq connection from REDIS_URL.
func RedisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if cfg == nil || cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri for asynq: %w", err)
	}
	return opt, nil
}
