package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount is returned for negative prices or quantities and out-of-range percentages.
	ErrInvalidAmount = errors.New("pricing: invalid amount")
	// ErrInvalidLine is returned when a cart line has a non-positive quantity or negative unit price.
	ErrInvalidLine = errors.New("pricing: invalid line")
	// ErrCouponInvalid is returned when a supplied coupon cannot be applied.
	ErrCouponInvalid = errors.New("pricing: coupon invalid")
	// ErrCouponInactive marks a coupon switched off by its owner. It matches ErrCouponInvalid.
	ErrCouponInactive = fmt.Errorf("%w: inactive", ErrCouponInvalid)
	// ErrCouponExpired marks a coupon past its expiry. It matches ErrCouponInvalid.
	ErrCouponExpired = fmt.Errorf("%w: expired", ErrCouponInvalid)
)
