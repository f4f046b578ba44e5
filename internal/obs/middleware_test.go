package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("toko", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/health/ready"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))
}

func TestRequestLoggerLevelsAndSession(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "debug")

	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Post("/v1/checkout/sessions/{id}/submit", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/checkout/sessions/abc/submit", nil))
	require.Equal(t, http.StatusGone, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "/v1/checkout/sessions/{id}/submit", entry["route"])
	require.Equal(t, "abc", entry["session_id"])
	require.Equal(t, "http_request", entry["message"])
}

func TestDomainMetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("toko_test", registry)
	obs.Inc(obs.PricingComputeTotal, "ok")
	require.Equal(t, float64(1), testutil.ToFloat64(obs.PricingComputeTotal.WithLabelValues("ok")))
	obs.Inc(nil, "ignored")
}

func TestRouteForKeepsSessionIDsOutOfLabels(t *testing.T) {
	var route, session string
	r := chi.NewRouter()
	r.Post("/v1/checkout/sessions/{id}/price", func(w http.ResponseWriter, req *http.Request) {
		route = obs.RouteFor(req, "unknown")
		session = obs.SessionIDFor(req)
		w.WriteHeader(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/checkout/sessions/sess-9/price", nil))
	require.Equal(t, "/v1/checkout/sessions/{id}/price", route)
	require.Equal(t, "sess-9", session)

	bare := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	require.Equal(t, "unknown", obs.RouteFor(bare, "unknown"))
	require.Empty(t, obs.SessionIDFor(bare))
}
