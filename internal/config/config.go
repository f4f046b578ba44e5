package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	HTTPMaxBodyBytes   int64
	EnableHSTS         bool

	Pricing pricing.Policy

	CheckoutSessionTTL   time.Duration
	CheckoutLockTTL      time.Duration
	CheckoutValidateRate string

	CouponCacheTTL time.Duration
	Coupons        []pricing.Coupon

	LogFormat         string
	LogLevel          string
	MetricsNamespace  string
	HTTPBucketsMillis []float64
	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	TracingSampling   float64

	WorkerConcurrency int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:               valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                 valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:          strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:             strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins:   splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		HTTPMaxBodyBytes:     int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 1<<20)),
		EnableHSTS:           parseBoolDefault(k.String("SECURITY_ENABLE_HSTS"), false),
		CheckoutSessionTTL:   parseDuration(k.String("CHECKOUT_SESSION_TTL"), "30m"),
		CheckoutLockTTL:      parseDuration(k.String("CHECKOUT_LOCK_TTL"), "10s"),
		CheckoutValidateRate: valueOrDefault(k.String("CHECKOUT_VALIDATE_RATE"), "20-S"),
		CouponCacheTTL:       parseDuration(k.String("COUPON_CACHE_TTL"), "1m"),
		LogFormat:            valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko"),
		TracingEnabled:       parseBoolDefault(k.String("OBS_ENABLE_TRACING"), true),
		TracingExporter:      valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:      parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		WorkerConcurrency:    parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	buckets, err := parseBuckets(k.String("OBS_HTTP_BUCKETS_MS"))
	if err != nil {
		return nil, err
	}
	cfg.HTTPBucketsMillis = buckets

	policy, err := loadPricing(k)
	if err != nil {
		return nil, err
	}
	cfg.Pricing = policy

	coupons, err := coupon.ParseList(k.String("COUPONS"))
	if err != nil {
		return nil, fmt.Errorf("COUPONS: %w", err)
	}
	cfg.Coupons = coupons

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.CheckoutSessionTTL <= 0 {
		return nil, errors.New("CHECKOUT_SESSION_TTL must be positive")
	}

	return cfg, nil
}

// loadPricing builds the pricing policy. Unset keys fall back to defaults;
// values that are set but malformed are load errors.
func loadPricing(k *koanf.Koanf) (pricing.Policy, error) {
	var p pricing.Policy
	p.Currency = strings.ToUpper(valueOrDefault(k.String("PRICING_CURRENCY"), "USD"))

	scale, err := strconv.Atoi(valueOrDefault(k.String("PRICING_SCALE"), "2"))
	if err != nil || scale < 0 {
		return p, fmt.Errorf("PRICING_SCALE: invalid value %q", k.String("PRICING_SCALE"))
	}
	p.Scale = int32(scale)

	rate, err := pricing.NewPercent(valueOrDefault(k.String("PRICING_TAX_RATE_PERCENT"), "15"))
	if err != nil {
		return p, fmt.Errorf("PRICING_TAX_RATE_PERCENT: %w", err)
	}
	p.Tax = pricing.TaxPolicy{RatePercent: rate}

	flat, err := pricing.NewMoney(valueOrDefault(k.String("PRICING_SHIPPING_FLAT"), "5.00"))
	if err != nil {
		return p, fmt.Errorf("PRICING_SHIPPING_FLAT: %w", err)
	}
	threshold, err := pricing.NewMoney(valueOrDefault(k.String("PRICING_FREE_SHIPPING_THRESHOLD"), "50.00"))
	if err != nil {
		return p, fmt.Errorf("PRICING_FREE_SHIPPING_THRESHOLD: %w", err)
	}
	p.Shipping = pricing.ShippingPolicy{FlatCost: flat, FreeThreshold: threshold}

	volume, err := pricing.ParseVolumeSchedule(valueOrDefault(k.String("PRICING_VOLUME_RULES"), "3:5,10:10"))
	if err != nil {
		return p, fmt.Errorf("PRICING_VOLUME_RULES: %w", err)
	}
	p.Volume = volume

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("pricing policy: %w", err)
	}
	return p, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseBuckets(value string) ([]float64, error) {
	parts := splitAndTrim(value)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("OBS_HTTP_BUCKETS_MS: invalid bucket %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
