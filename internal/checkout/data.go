package checkout

import (
	"time"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Status is the lifecycle state of a checkout session.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusSubmitted Status = "submitted"
	StatusExpired   Status = "expired"
)

// Address is a postal address. Required fields must be non-blank; there is
// no default address.
type Address struct {
	ReceiverName string `json:"receiverName" validate:"required,notblank"`
	Phone        string `json:"phone" validate:"required,notblank"`
	Country      string `json:"country" validate:"required,notblank"`
	Province     string `json:"province"`
	City         string `json:"city" validate:"required,notblank"`
	PostalCode   string `json:"postalCode" validate:"required,notblank"`
	AddressLine1 string `json:"addressLine1" validate:"required,notblank"`
	AddressLine2 string `json:"addressLine2"`
}

// Data is the checkout session snapshot guarded by the validator.
type Data struct {
	SessionID       string                  `json:"sessionId"`
	UserID          string                  `json:"userId"`
	Status          Status                  `json:"status"`
	ShippingAddress *Address                `json:"shippingAddress,omitempty"`
	BillingAddress  *Address                `json:"billingAddress,omitempty"`
	Items           []pricing.CartLine      `json:"items"`
	CouponCode      string                  `json:"couponCode,omitempty"`
	Currency        string                  `json:"currency,omitempty"`
	Totals          *pricing.CheckoutTotals `json:"totals,omitempty"`
	InputsHash      string                  `json:"inputsHash,omitempty"`
	Timestamp       time.Time               `json:"timestamp"`
	ExpiresAt       *time.Time              `json:"expiresAt,omitempty"`
	SubmittedAt     *time.Time              `json:"submittedAt,omitempty"`
}

// Input carries the caller-supplied parts of a session.
type Input struct {
	UserID          string             `json:"userId"`
	ShippingAddress *Address           `json:"shippingAddress"`
	BillingAddress  *Address           `json:"billingAddress"`
	Items           []pricing.CartLine `json:"items"`
	CouponCode      string             `json:"couponCode"`
}

func (d *Data) apply(in Input) {
	d.UserID = in.UserID
	d.ShippingAddress = in.ShippingAddress
	d.BillingAddress = in.BillingAddress
	d.Items = in.Items
	d.CouponCode = pricing.NormalizeCode(in.CouponCode)
}

func (d *Data) clearTotals() {
	d.Totals = nil
	d.InputsHash = ""
}

func (d *Data) expired(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}
