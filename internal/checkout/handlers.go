package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Handler exposes quotes and checkout sessions over HTTP.
type Handler struct {
	Svc *Service
	// ValidateLimit wraps the validate endpoint, which clients may call on
	// every form change.
	ValidateLimit func(http.Handler) http.Handler
}

type quoteRequest struct {
	Items      []pricing.CartLine `json:"items"`
	CouponCode string             `json:"couponCode"`
}

// Routes mounts the pricing and checkout endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/pricing/quote", h.Quote)
	r.Route("/checkout/sessions", func(s chi.Router) {
		s.Post("/", h.Open)
		s.Get("/{id}", h.Get)
		s.Put("/{id}", h.Update)
		validate := http.Handler(http.HandlerFunc(h.Validate))
		if h.ValidateLimit != nil {
			validate = h.ValidateLimit(validate)
		}
		s.Method(http.MethodPost, "/{id}/validate", validate)
		s.Post("/{id}/price", h.Price)
		s.Post("/{id}/submit", h.Submit)
		s.Post("/{id}/reopen", h.Reopen)
	})
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req quoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeDecodeError(w, err)
		return
	}
	q, err := h.Svc.Quote(r.Context(), req.Items, req.CouponCode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeDecodeError(w, err)
		return
	}
	d, err := h.Svc.Open(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": d})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	d, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, d, err)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeDecodeError(w, err)
		return
	}
	d, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	h.respond(w, d, err)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	d, err := h.Svc.Validate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"sessionId": d.SessionID,
		"status":    d.Status,
		"valid":     true,
	}})
}

func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	d, err := h.Svc.Price(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, d, err)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	d, err := h.Svc.Submit(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, d, err)
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	d, err := h.Svc.Reopen(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, d, err)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, d *Data, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": d})
}

// errorKinds is ordered: CouponExpired wraps CouponInvalid.
var errorKinds = []common.ErrorKind{
	{Target: lock.ErrLeaseLost, Code: "SESSION_CONFLICT", Status: http.StatusConflict},
	{Target: ErrSessionNotFound, Code: "NOT_FOUND", Status: http.StatusNotFound},
	{Target: ErrCheckoutExpired, Code: "CHECKOUT_EXPIRED", Status: http.StatusGone},
	{Target: ErrMissingCheckoutData, Code: "MISSING_CHECKOUT_DATA", Status: http.StatusUnprocessableEntity},
	{Target: ErrMissingShippingData, Code: "MISSING_SHIPPING_DATA", Status: http.StatusUnprocessableEntity},
	{Target: ErrMissingTotals, Code: "MISSING_TOTALS", Status: http.StatusConflict},
	{Target: ErrIllegalTransition, Code: "ILLEGAL_TRANSITION", Status: http.StatusConflict},
	{Target: pricing.ErrCouponExpired, Code: "COUPON_EXPIRED", Status: http.StatusUnprocessableEntity},
	{Target: pricing.ErrCouponInvalid, Code: "COUPON_INVALID", Status: http.StatusUnprocessableEntity},
	{Target: pricing.ErrInvalidLine, Code: "INVALID_LINE", Status: http.StatusUnprocessableEntity},
	{Target: pricing.ErrInvalidAmount, Code: "INVALID_AMOUNT", Status: http.StatusUnprocessableEntity},
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := common.Classify(err, errorKinds)
	var verr *ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		appErr.Details = map[string]any{"fields": verr.Fields}
	}
	common.WriteAppError(w, appErr)
}

func (h *Handler) writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, pricing.ErrInvalidAmount) {
		h.writeError(w, err)
		return
	}
	common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
}
