package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingCheckoutData reports absent identity, items, timestamps or billing data.
	ErrMissingCheckoutData = errors.New("missing checkout data")
	// ErrMissingShippingData reports an absent or incomplete shipping address.
	ErrMissingShippingData = errors.New("missing shipping data")
	// ErrMissingTotals reports a submission without current totals.
	ErrMissingTotals = errors.New("missing totals")
	// ErrCheckoutExpired reports a session whose window has closed.
	ErrCheckoutExpired = errors.New("checkout expired")
	// ErrIllegalTransition reports a state change the session lifecycle forbids.
	ErrIllegalTransition = errors.New("illegal checkout transition")
	// ErrSessionNotFound reports an unknown session id.
	ErrSessionNotFound = errors.New("checkout session not found")
)

// ValidationError names the fields that caused a validator gate to fail.
// errors.Is matches it against Kind.
type ValidationError struct {
	Kind   error
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func missing(kind error, fields ...string) error {
	return &ValidationError{Kind: kind, Fields: fields}
}
