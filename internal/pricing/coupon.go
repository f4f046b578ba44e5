package pricing

import (
	"fmt"
	"strings"
	"time"
)

// Coupon is an order-level percentage discount. At most one applies per order.
type Coupon struct {
	Code            string     `json:"code"`
	DiscountPercent Percent    `json:"discountPercent"`
	Active          bool       `json:"active"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate reports whether the coupon can be applied at now. An expired or
// inactive coupon is an error, never a zero discount.
func (c Coupon) Validate(now time.Time) error {
	if !c.Active {
		return fmt.Errorf("%w: %s", ErrCouponInactive, c.Code)
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return fmt.Errorf("%w: %s at %s", ErrCouponExpired, c.Code, c.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if !c.DiscountPercent.valid() {
		return fmt.Errorf("%w: %s percent %s", ErrCouponInvalid, c.Code, c.DiscountPercent)
	}
	return nil
}

// CouponResult is the outcome of the coupon stage.
type CouponResult struct {
	Code                 string `json:"code,omitempty"`
	CouponDiscountAmount Money  `json:"couponDiscountAmount"`
	SubtotalAfterCoupon  Money  `json:"subtotalAfterCoupon"`
}

// ApplyCoupon discounts the post line-discount subtotal. A nil coupon passes
// the subtotal through unchanged.
func ApplyCoupon(subtotal Money, coupon *Coupon, now time.Time, scale int32) (CouponResult, error) {
	if subtotal.IsNegative() {
		return CouponResult{}, fmt.Errorf("%w: subtotal %s", ErrInvalidAmount, subtotal)
	}
	if coupon == nil {
		return CouponResult{SubtotalAfterCoupon: subtotal}, nil
	}
	if err := coupon.Validate(now); err != nil {
		return CouponResult{}, err
	}
	discount := subtotal.MultiplyByPercent(coupon.DiscountPercent).RoundHalfUp(scale)
	return CouponResult{
		Code:                 coupon.Code,
		CouponDiscountAmount: discount,
		SubtotalAfterCoupon:  subtotal.Sub(discount),
	}, nil
}
