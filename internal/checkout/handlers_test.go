package checkout

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newRouter(t *testing.T, f *fixture, limit func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/v1", (&Handler{Svc: f.svc, ValidateLimit: limit}).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func openSession(t *testing.T, h http.Handler, in any) string {
	t.Helper()
	rr, env := do(t, h, http.MethodPost, "/v1/checkout/sessions", in)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var d struct {
		SessionID string `json:"sessionId"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Equal(t, "draft", d.Status)
	return d.SessionID
}

func TestHandlerSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	h := newRouter(t, f, nil)
	id := openSession(t, h, validInput())

	rr, _ := do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/validate", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, env := do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/price", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var priced struct {
		Status string            `json:"status"`
		Totals map[string]string `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &priced))
	require.Equal(t, "validated", priced.Status)
	require.Equal(t, "8.87", priced.Totals["finalTotal"])
	require.Equal(t, "0.14", priced.Totals["couponDiscountTotal"])

	rr, _ = do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr, env = do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/submit", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "ILLEGAL_TRANSITION", env.Error.Code)
}

func TestHandlerMissingShippingData(t *testing.T) {
	f := newFixture(t)
	h := newRouter(t, f, nil)
	in := validInput()
	in.ShippingAddress = nil
	id := openSession(t, h, in)

	rr, env := do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/validate", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "MISSING_SHIPPING_DATA", env.Error.Code)
	require.Equal(t, []any{"shippingAddress"}, env.Error.Details["fields"])
}

func TestHandlerExpiredSession(t *testing.T) {
	f := newFixture(t)
	h := newRouter(t, f, nil)
	id := openSession(t, h, validInput())

	f.clock.Advance(time.Hour)
	rr, env := do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/price", nil)
	require.Equal(t, http.StatusGone, rr.Code)
	require.Equal(t, "CHECKOUT_EXPIRED", env.Error.Code)

	rr, _ = do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/reopen", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, _ = do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/price", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerSubmitWithoutTotals(t *testing.T) {
	f := newFixture(t)
	h := newRouter(t, f, nil)
	id := openSession(t, h, validInput())

	rr, env := do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/submit", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "MISSING_TOTALS", env.Error.Code)
}

func TestHandlerUpdateAndGet(t *testing.T) {
	f := newFixture(t)
	h := newRouter(t, f, nil)
	id := openSession(t, h, validInput())

	in := validInput()
	in.CouponCode = ""
	rr, _ := do(t, h, http.MethodPut, "/v1/checkout/sessions/"+id, in)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, env := do(t, h, http.MethodGet, "/v1/checkout/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var d Data
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Empty(t, d.CouponCode)

	rr, env = do(t, h, http.MethodGet, "/v1/checkout/sessions/unknown", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHandlerQuote(t *testing.T) {
	f := newFixture(t)
	h := newRouter(t, f, nil)

	body := `{"items":[{"productId":"p-1","sellerId":"s-1","unitPrice":"2.00","quantity":3,"sellerDiscountPercent":"50"}],"couponCode":"FJZCD3"}`
	rr, env := do(t, h, http.MethodPost, "/v1/pricing/quote", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, strings.Contains(string(env.Data), `"finalTotal":"8.87"`))

	unknown := `{"items":[{"productId":"p-1","unitPrice":"2.00","quantity":1}],"couponCode":"GONE"}`
	rr, env = do(t, h, http.MethodPost, "/v1/pricing/quote", unknown)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "COUPON_INVALID", env.Error.Code)

	negative := `{"items":[{"productId":"p-1","unitPrice":"-2.00","quantity":1}]}`
	rr, env = do(t, h, http.MethodPost, "/v1/pricing/quote", negative)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "INVALID_AMOUNT", env.Error.Code)

	zeroQty := `{"items":[{"productId":"p-1","unitPrice":"2.00","quantity":0}]}`
	rr, env = do(t, h, http.MethodPost, "/v1/pricing/quote", zeroQty)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "INVALID_LINE", env.Error.Code)

	rr, env = do(t, h, http.MethodPost, "/v1/pricing/quote", `{"items":[],"unknown":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestHandlerOpenRejectsOverScalePrice(t *testing.T) {
	f := newFixture(t)
	h := newRouter(t, f, nil)

	body := `{"userId":"user-1","items":[{"productId":"p-1","unitPrice":"2.005","quantity":3}]}`
	rr, env := do(t, h, http.MethodPost, "/v1/checkout/sessions", body)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	require.Equal(t, "INVALID_AMOUNT", env.Error.Code)
}

func TestHandlerValidateLimitWrapsOnlyValidate(t *testing.T) {
	f := newFixture(t)
	var hits atomic.Int32
	limit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			next.ServeHTTP(w, r)
		})
	}
	h := newRouter(t, f, limit)
	id := openSession(t, h, validInput())

	do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/price", nil)
	require.Equal(t, int32(0), hits.Load())
	do(t, h, http.MethodPost, "/v1/checkout/sessions/"+id+"/validate", nil)
	require.Equal(t, int32(1), hits.Load())
}

func TestHandlerWithoutService(t *testing.T) {
	rr := httptest.NewRecorder()
	(&Handler{}).Price(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
