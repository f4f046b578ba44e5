package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// TypeCheckoutSubmitted is the asynq task type emitted on submission.
const TypeCheckoutSubmitted = "checkout:submitted"

// SubmittedPayload is handed to downstream payment collaborators.
type SubmittedPayload struct {
	SessionID   string                 `json:"sessionId"`
	UserID      string                 `json:"userId"`
	Currency    string                 `json:"currency"`
	CouponCode  string                 `json:"couponCode,omitempty"`
	Totals      pricing.CheckoutTotals `json:"totals"`
	SubmittedAt time.Time              `json:"submittedAt"`
}

// Enqueuer publishes submitted checkouts.
type Enqueuer interface {
	EnqueueSubmitted(ctx context.Context, p SubmittedPayload) error
}

// NewSubmittedTask builds the task for p. The task id is derived from the
// session so a retried submission never enqueues twice.
func NewSubmittedTask(p SubmittedPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if p.SessionID == "" {
		return nil, errors.New("submitted task: session id is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.TaskID("checkout-submitted:" + p.SessionID), asynq.MaxRetry(10)}, opts...)
	return asynq.NewTask(TypeCheckoutSubmitted, data, opts...), nil
}

// AsynqEnqueuer publishes tasks through an asynq client.
type AsynqEnqueuer struct {
	Client *asynq.Client
	Queue  string
}

// EnqueueSubmitted implements Enqueuer. A task id conflict means the
// submission was already published and is not an error.
func (e AsynqEnqueuer) EnqueueSubmitted(ctx context.Context, p SubmittedPayload) error {
	if e.Client == nil {
		return errors.New("asynq client not configured")
	}
	var opts []asynq.Option
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	task, err := NewSubmittedTask(p, opts...)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue %s: %w", TypeCheckoutSubmitted, err)
	}
	return nil
}

// Handoff consumes checkout:submitted tasks. Deliver forwards the payload to
// the payment collaborator; when nil the hand-off is only logged.
type Handoff struct {
	Logger  *zerolog.Logger
	Deliver func(ctx context.Context, p SubmittedPayload) error
}

// ProcessTask implements asynq.Handler.
func (h Handoff) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p SubmittedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.SessionID == "" {
		return fmt.Errorf("%s payload without session id: %w", t.Type(), asynq.SkipRetry)
	}
	if h.Logger != nil {
		h.Logger.Info().
			Str("session_id", p.SessionID).
			Str("currency", p.Currency).
			Str("final_total", p.Totals.FinalTotal.String()).
			Msg("checkout handed off")
	}
	if h.Deliver == nil {
		return nil
	}
	return h.Deliver(ctx, p)
}
