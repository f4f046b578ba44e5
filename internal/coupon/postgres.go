package coupon

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Querier captures the database methods required by the Postgres store.
// *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const findByCodeSQL = `SELECT code, discount_percent::text, active, expires_at
FROM coupons
WHERE code = $1`

const upsertSQL = `INSERT INTO coupons (code, discount_percent, active, expires_at)
VALUES ($1, $2::numeric, $3, $4)
ON CONFLICT (code) DO UPDATE
SET discount_percent = EXCLUDED.discount_percent,
    active = EXCLUDED.active,
    expires_at = EXCLUDED.expires_at,
    updated_at = now()`

// PGStore reads coupons from the coupons table.
type PGStore struct {
	Q Querier
}

// FindByCode implements Store.
func (s *PGStore) FindByCode(ctx context.Context, code string) (pricing.Coupon, error) {
	if s == nil || s.Q == nil {
		return pricing.Coupon{}, errors.New("coupon store not configured")
	}
	key := pricing.NormalizeCode(code)
	if key == "" {
		return pricing.Coupon{}, ErrNotFound
	}
	var (
		c       pricing.Coupon
		pct     string
		expires pgtype.Timestamptz
	)
	err := s.Q.QueryRow(ctx, findByCodeSQL, key).Scan(&c.Code, &pct, &c.Active, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			obs.Inc(obs.CouponLookupTotal, "postgres", "miss")
			return pricing.Coupon{}, ErrNotFound
		}
		obs.Inc(obs.CouponLookupTotal, "postgres", "error")
		return pricing.Coupon{}, fmt.Errorf("query coupon %s: %w", key, err)
	}
	c.DiscountPercent, err = pricing.NewPercent(pct)
	if err != nil {
		return pricing.Coupon{}, fmt.Errorf("coupon %s: %w", key, err)
	}
	if expires.Valid {
		t := expires.Time.UTC()
		c.ExpiresAt = &t
	}
	obs.Inc(obs.CouponLookupTotal, "postgres", "hit")
	return c, nil
}

// Upsert inserts or replaces a coupon row.
func (s *PGStore) Upsert(ctx context.Context, c pricing.Coupon) error {
	if s == nil || s.Q == nil {
		return errors.New("coupon store not configured")
	}
	code := pricing.NormalizeCode(c.Code)
	if code == "" {
		return errors.New("coupon code is required")
	}
	var expires pgtype.Timestamptz
	if c.ExpiresAt != nil {
		expires = pgtype.Timestamptz{Time: c.ExpiresAt.UTC(), Valid: true}
	}
	if _, err := s.Q.Exec(ctx, upsertSQL, code, c.DiscountPercent.String(), c.Active, expires); err != nil {
		return fmt.Errorf("upsert coupon %s: %w", code, err)
	}
	return nil
}
