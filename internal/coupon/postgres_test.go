package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = r.values[i].(string)
		case *bool:
			*ptr = r.values[i].(bool)
		case *pgtype.Timestamptz:
			*ptr = r.values[i].(pgtype.Timestamptz)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

type stubQuerier struct {
	row      stubRow
	lastArgs []any
	execArgs []any
}

func (q *stubQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	q.lastArgs = args
	return q.row
}

func (q *stubQuerier) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	q.execArgs = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPGStoreFindByCode(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	q := &stubQuerier{row: stubRow{values: []any{"FJZCD3", "5.00", true, pgtype.Timestamptz{Time: expires, Valid: true}}}}
	store := &PGStore{Q: q}

	c, err := store.FindByCode(context.Background(), " fjzcd3 ")
	require.NoError(t, err)
	require.Equal(t, []any{"FJZCD3"}, q.lastArgs)
	require.Equal(t, "FJZCD3", c.Code)
	require.Equal(t, 0, c.DiscountPercent.Cmp(pricing.MustPercent("5")))
	require.True(t, c.Active)
	require.Equal(t, expires, *c.ExpiresAt)
}

func TestPGStoreNoExpiry(t *testing.T) {
	q := &stubQuerier{row: stubRow{values: []any{"OPEN", "10", false, pgtype.Timestamptz{}}}}
	c, err := (&PGStore{Q: q}).FindByCode(context.Background(), "open")
	require.NoError(t, err)
	require.Nil(t, c.ExpiresAt)
	require.False(t, c.Active)
}

func TestPGStoreNotFound(t *testing.T) {
	q := &stubQuerier{row: stubRow{err: pgx.ErrNoRows}}
	_, err := (&PGStore{Q: q}).FindByCode(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	q = &stubQuerier{row: stubRow{err: errors.New("conn reset")}}
	_, err = (&PGStore{Q: q}).FindByCode(context.Background(), "missing")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestPGStoreUpsert(t *testing.T) {
	q := &stubQuerier{}
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	err := (&PGStore{Q: q}).Upsert(context.Background(), pricing.Coupon{Code: "new", DiscountPercent: pricing.MustPercent("7.5"), Active: true, ExpiresAt: &expires})
	require.NoError(t, err)
	require.Equal(t, "NEW", q.execArgs[0])
	require.Equal(t, "7.5", q.execArgs[1])
	require.Equal(t, pgtype.Timestamptz{Time: expires, Valid: true}, q.execArgs[3])
}
