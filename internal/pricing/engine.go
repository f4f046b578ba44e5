package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CheckoutTotals is the fully itemised result of one pipeline run.
// FinalTotal always equals SubtotalAfterCoupon + ShippingCost + TaxAmount.
type CheckoutTotals struct {
	SubtotalOriginal            Money `json:"subtotalOriginal"`
	SubtotalAfterSellerDiscount Money `json:"subtotalAfterSellerDiscount"`
	SubtotalAfterVolumeDiscount Money `json:"subtotalAfterVolumeDiscount"`
	SubtotalAfterCoupon         Money `json:"subtotalAfterCoupon"`
	ShippingCost                Money `json:"shippingCost"`
	TaxAmount                   Money `json:"taxAmount"`
	FinalTotal                  Money `json:"finalTotal"`
	SellerDiscountTotal         Money `json:"sellerDiscountTotal"`
	VolumeDiscountTotal         Money `json:"volumeDiscountTotal"`
	CouponDiscountTotal         Money `json:"couponDiscountTotal"`
}

// Quote bundles totals with the per-line breakdown they were built from.
type Quote struct {
	Currency   string          `json:"currency"`
	CouponCode string          `json:"couponCode,omitempty"`
	Lines      []LineBreakdown `json:"lines"`
	Totals     CheckoutTotals  `json:"totals"`
}

// Policy is the explicit pricing configuration passed into the pipeline.
type Policy struct {
	Currency string
	Scale    int32
	Volume   VolumeRules
	Shipping ShippingPolicy
	Tax      TaxPolicy
}

// Validate checks the policy before any cart is priced.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.Currency) == "" {
		return errors.New("pricing: currency is required")
	}
	if p.Scale < 0 {
		return fmt.Errorf("%w: scale %d", ErrInvalidAmount, p.Scale)
	}
	if s, ok := p.Volume.(VolumeSchedule); ok {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if err := p.Shipping.Validate(); err != nil {
		return err
	}
	return p.Tax.Validate()
}

// Engine runs the pricing pipeline against a fixed policy. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	policy Policy
	now    func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for coupon expiry checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine validates the policy and constructs an Engine.
func NewEngine(policy Policy, opts ...Option) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the engine configuration.
func (e *Engine) Policy() Policy { return e.policy }

// Quote prices the cart with an optional coupon.
func (e *Engine) Quote(lines []CartLine, coupon *Coupon) (Quote, error) {
	return e.QuoteAt(lines, coupon, e.now())
}

// ComputeTotals is Quote without the line breakdown.
func (e *Engine) ComputeTotals(lines []CartLine, coupon *Coupon) (CheckoutTotals, error) {
	q, err := e.Quote(lines, coupon)
	if err != nil {
		return CheckoutTotals{}, err
	}
	return q.Totals, nil
}

// QuoteAt prices the cart evaluating coupon expiry at now.
func (e *Engine) QuoteAt(lines []CartLine, coupon *Coupon, now time.Time) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, fmt.Errorf("%w: cart has no lines", ErrInvalidLine)
	}
	scale := e.policy.Scale
	resolved := make([]LineBreakdown, 0, len(lines))
	for _, line := range lines {
		b, err := ResolveLine(line, e.policy.Volume, scale)
		if err != nil {
			return Quote{}, err
		}
		resolved = append(resolved, b)
	}
	sub := Aggregate(resolved)

	cr, err := ApplyCoupon(sub.SubtotalAfterVolumeDiscount, coupon, now, scale)
	if err != nil {
		return Quote{}, err
	}
	st, err := ApplyShippingAndTax(cr.SubtotalAfterCoupon, e.policy.Shipping, e.policy.Tax, scale)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Currency:   e.policy.Currency,
		CouponCode: cr.Code,
		Lines:      resolved,
		Totals: CheckoutTotals{
			SubtotalOriginal:            sub.SubtotalOriginal,
			SubtotalAfterSellerDiscount: sub.SubtotalAfterSellerDiscount,
			SubtotalAfterVolumeDiscount: sub.SubtotalAfterVolumeDiscount,
			SubtotalAfterCoupon:         cr.SubtotalAfterCoupon,
			ShippingCost:                st.ShippingCost,
			TaxAmount:                   st.TaxAmount,
			FinalTotal:                  st.FinalTotal,
			SellerDiscountTotal:         sub.SellerDiscountTotal,
			VolumeDiscountTotal:         sub.VolumeDiscountTotal,
			CouponDiscountTotal:         cr.CouponDiscountAmount,
		},
	}, nil
}

// ComputeTotals prices a cart without a long-lived Engine. Volume rules and
// the evaluation instant are taken from opts (defaults: none, time.Now).
func ComputeTotals(lines []CartLine, coupon *Coupon, shipping ShippingPolicy, tax TaxPolicy, opts ...ComputeOption) (CheckoutTotals, error) {
	cfg := computeConfig{scale: DefaultScale, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	e, err := NewEngine(Policy{
		Currency: "XXX",
		Scale:    cfg.scale,
		Volume:   cfg.volume,
		Shipping: shipping,
		Tax:      tax,
	})
	if err != nil {
		return CheckoutTotals{}, err
	}
	q, err := e.QuoteAt(lines, coupon, cfg.now())
	if err != nil {
		return CheckoutTotals{}, err
	}
	return q.Totals, nil
}

type computeConfig struct {
	scale  int32
	volume VolumeRules
	now    func() time.Time
}

// ComputeOption customises the free ComputeTotals function.
type ComputeOption func(*computeConfig)

// WithVolumeRules sets the volume rules applied to every line.
func WithVolumeRules(rules VolumeRules) ComputeOption {
	return func(c *computeConfig) { c.volume = rules }
}

// WithScale sets the currency scale.
func WithScale(scale int32) ComputeOption {
	return func(c *computeConfig) { c.scale = scale }
}

// At fixes the evaluation instant used for coupon expiry.
func At(now time.Time) ComputeOption {
	return func(c *computeConfig) { c.now = func() time.Time { return now } }
}
