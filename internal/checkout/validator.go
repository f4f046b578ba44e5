package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
)

// Validator gates pricing and submission. It never fills in a missing value;
// absence is always reported as a named failure.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator reporting fields by their JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &Validator{v: v}
}

var defaultValidator = NewValidator()

// ValidateForPricing checks d with a shared Validator.
func ValidateForPricing(d *Data, now time.Time) error {
	return defaultValidator.ValidateForPricing(d, now)
}

// ValidateForSubmission checks d with a shared Validator.
func ValidateForSubmission(d *Data, now time.Time) error {
	return defaultValidator.ValidateForSubmission(d, now)
}

// ValidateForPricing fails when the session window has closed at now, then
// when identity, items or billing data are absent, then when the shipping
// address is absent or incomplete.
func (v *Validator) ValidateForPricing(d *Data, now time.Time) error {
	if d == nil {
		return missing(ErrMissingCheckoutData, "checkoutData")
	}
	if d.ExpiresAt == nil {
		return missing(ErrMissingCheckoutData, "expiresAt")
	}
	if d.expired(now) {
		return fmt.Errorf("%w: session %s expired at %s", ErrCheckoutExpired, d.SessionID, d.ExpiresAt.UTC().Format(time.RFC3339))
	}

	var fields []string
	if strings.TrimSpace(d.SessionID) == "" {
		fields = append(fields, "sessionId")
	}
	if strings.TrimSpace(d.UserID) == "" {
		fields = append(fields, "userId")
	}
	if d.Timestamp.IsZero() {
		fields = append(fields, "timestamp")
	}
	if len(d.Items) == 0 {
		fields = append(fields, "items")
	}
	for i, item := range d.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			fields = append(fields, fmt.Sprintf("items[%d].productId", i))
		}
	}
	if d.BillingAddress == nil {
		fields = append(fields, "billingAddress")
	} else {
		fields = append(fields, v.addressFields("billingAddress", d.BillingAddress)...)
	}
	if len(fields) > 0 {
		return missing(ErrMissingCheckoutData, fields...)
	}

	if d.ShippingAddress == nil {
		return missing(ErrMissingShippingData, "shippingAddress")
	}
	if fields := v.addressFields("shippingAddress", d.ShippingAddress); len(fields) > 0 {
		return missing(ErrMissingShippingData, fields...)
	}
	return nil
}

// ValidateForSubmission applies ValidateForPricing and additionally requires
// attached totals.
func (v *Validator) ValidateForSubmission(d *Data, now time.Time) error {
	if err := v.ValidateForPricing(d, now); err != nil {
		return err
	}
	if d.Totals == nil || d.InputsHash == "" {
		return missing(ErrMissingTotals, "totals")
	}
	return nil
}

func (v *Validator) addressFields(prefix string, a *Address) []string {
	err := v.v.Struct(a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{prefix}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, prefix+"."+fe.Field())
	}
	return fields
}
