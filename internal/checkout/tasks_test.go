package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

func TestNewSubmittedTask(t *testing.T) {
	task, err := NewSubmittedTask(SubmittedPayload{
		SessionID: "sess-1",
		Currency:  "USD",
		Totals:    pricing.CheckoutTotals{FinalTotal: pricing.MustMoney("8.87")},
	})
	require.NoError(t, err)
	require.Equal(t, TypeCheckoutSubmitted, task.Type())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, "sess-1", decoded["sessionId"])
	require.Equal(t, "8.87", decoded["totals"].(map[string]any)["finalTotal"])

	_, err = NewSubmittedTask(SubmittedPayload{})
	require.Error(t, err)
}

func TestHandoffDeliversPayload(t *testing.T) {
	var got SubmittedPayload
	h := Handoff{Deliver: func(_ context.Context, p SubmittedPayload) error {
		got = p
		return nil
	}}
	task, err := NewSubmittedTask(SubmittedPayload{SessionID: "sess-9", UserID: "user-1", SubmittedAt: t0.Add(time.Minute)})
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Equal(t, "sess-9", got.SessionID)
	require.True(t, got.SubmittedAt.Equal(t0.Add(time.Minute)))
}

func TestHandoffSkipsRetryForBadPayload(t *testing.T) {
	h := Handoff{}
	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeCheckoutSubmitted, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	err = h.ProcessTask(context.Background(), asynq.NewTask(TypeCheckoutSubmitted, []byte(`{}`)))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandoffPropagatesDeliveryError(t *testing.T) {
	boom := errors.New("gateway unavailable")
	h := Handoff{Deliver: func(context.Context, SubmittedPayload) error { return boom }}
	task, err := NewSubmittedTask(SubmittedPayload{SessionID: "sess-1"})
	require.NoError(t, err)
	require.ErrorIs(t, h.ProcessTask(context.Background(), task), boom)
}
