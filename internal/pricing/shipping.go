package pricing

import "fmt"

// ShippingPolicy charges FlatCost unless the discounted subtotal reaches FreeThreshold.
type ShippingPolicy struct {
	FlatCost      Money `json:"flatCost"`
	FreeThreshold Money `json:"freeThreshold"`
}

// Validate rejects negative amounts.
func (p ShippingPolicy) Validate() error {
	if p.FlatCost.IsNegative() || p.FreeThreshold.IsNegative() {
		return fmt.Errorf("%w: shipping policy", ErrInvalidAmount)
	}
	return nil
}

// TaxPolicy is a single flat tax rate.
type TaxPolicy struct {
	RatePercent Percent `json:"ratePercent"`
}

// Validate rejects rates outside 0..100.
func (p TaxPolicy) Validate() error {
	if !p.RatePercent.valid() {
		return fmt.Errorf("%w: tax rate %s", ErrInvalidAmount, p.RatePercent)
	}
	return nil
}

// ShippingTax is the outcome of the shipping and tax stage.
type ShippingTax struct {
	ShippingCost Money `json:"shippingCost"`
	TaxAmount    Money `json:"taxAmount"`
	FinalTotal   Money `json:"finalTotal"`
}

// ApplyShippingAndTax adds shipping then taxes the post-discount, post-shipping amount.
func ApplyShippingAndTax(subtotalAfterCoupon Money, shipping ShippingPolicy, tax TaxPolicy, scale int32) (ShippingTax, error) {
	if subtotalAfterCoupon.IsNegative() {
		return ShippingTax{}, fmt.Errorf("%w: subtotal %s", ErrInvalidAmount, subtotalAfterCoupon)
	}
	if err := shipping.Validate(); err != nil {
		return ShippingTax{}, err
	}
	if err := tax.Validate(); err != nil {
		return ShippingTax{}, err
	}
	cost := shipping.FlatCost
	if subtotalAfterCoupon.GreaterOrEqual(shipping.FreeThreshold) {
		cost = Zero()
	}
	taxable := subtotalAfterCoupon.Add(cost)
	taxAmount := taxable.MultiplyByPercent(tax.RatePercent).RoundHalfUp(scale)
	return ShippingTax{
		ShippingCost: cost,
		TaxAmount:    taxAmount,
		FinalTotal:   taxable.Add(taxAmount),
	}, nil
}
