package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Locker serialises work on one session.
type Locker interface {
	WithSession(ctx context.Context, sessionID string, ttl time.Duration, fn func(context.Context) error) error
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Engine     *pricing.Engine
	Coupons    coupon.Store
	Sessions   Store
	Locker     Locker
	Tasks      Enqueuer
	Validator  *Validator
	SessionTTL time.Duration
	LockTTL    time.Duration
	Logger     *zerolog.Logger
	Now        func() time.Time
	NewID      func() string
}

// Service drives checkout sessions through Draft -> Validated -> Submitted,
// expiring them when their window closes.
type Service struct {
	engine     *pricing.Engine
	coupons    coupon.Store
	sessions   Store
	locker     Locker
	tasks      Enqueuer
	validator  *Validator
	sessionTTL time.Duration
	lockTTL    time.Duration
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string

	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Engine == nil {
		return nil, errors.New("checkout: pricing engine is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("checkout: session store is required")
	}
	if cfg.Locker == nil {
		return nil, errors.New("checkout: locker is required")
	}
	s := &Service{
		engine:     cfg.Engine,
		coupons:    cfg.Coupons,
		sessions:   cfg.Sessions,
		locker:     cfg.Locker,
		tasks:      cfg.Tasks,
		validator:  cfg.Validator,
		sessionTTL: cfg.SessionTTL,
		lockTTL:    cfg.LockTTL,
		logger:     zerolog.Nop(),
		now:        cfg.Now,
		newID:      cfg.NewID,
		tracer:     obs.Tracer("checkout"),
	}
	if cfg.Logger != nil {
		s.logger = cfg.Logger.With().Str("component", "checkout").Logger()
	}
	if s.validator == nil {
		s.validator = defaultValidator
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 30 * time.Minute
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	hist, err := obs.Meter("checkout").Float64Histogram(
		"checkout.pricing.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of pricing pipeline runs."),
	)
	if err != nil {
		return nil, fmt.Errorf("checkout: pricing histogram: %w", err)
	}
	s.duration = hist
	return s, nil
}

// Engine exposes the pricing engine used by the service.
func (s *Service) Engine() *pricing.Engine { return s.engine }

// Open starts a Draft session whose window closes after the session TTL.
func (s *Service) Open(ctx context.Context, in Input) (*Data, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Open")
	defer span.End()

	if err := s.checkAmounts(in.Items); err != nil {
		return nil, endSpan(span, err)
	}
	now := s.now().UTC()
	expires := now.Add(s.sessionTTL)
	d := &Data{
		SessionID: s.newID(),
		Status:    StatusDraft,
		Currency:  s.engine.Policy().Currency,
		Timestamp: now,
		ExpiresAt: &expires,
	}
	d.apply(in)
	span.SetAttributes(attribute.String("checkout.session_id", d.SessionID))
	if err := s.sessions.Save(ctx, d); err != nil {
		return nil, endSpan(span, err)
	}
	s.logger.Debug().Str("session_id", d.SessionID).Str("status", string(d.Status)).Msg("checkout session opened")
	return d, nil
}

// Get returns the stored session.
func (s *Service) Get(ctx context.Context, id string) (*Data, error) {
	return s.sessions.Get(ctx, id)
}

// Update replaces the session inputs. Any attached totals are dropped and
// the session returns to Draft.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Data, error) {
	if err := s.checkAmounts(in.Items); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "checkout.Update", id, false, func(_ context.Context, d *Data, now time.Time) error {
		if err := s.move(d, StatusDraft); err != nil {
			return err
		}
		d.apply(in)
		d.clearTotals()
		d.Timestamp = now
		return nil
	})
}

// Validate runs the pricing gate without changing the session.
func (s *Service) Validate(ctx context.Context, id string) (*Data, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Validate", trace.WithAttributes(attribute.String("checkout.session_id", id)))
	defer span.End()

	d, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, endSpan(span, err)
	}
	if err := s.gate("pricing", s.validator.ValidateForPricing(d, s.now())); err != nil {
		return nil, endSpan(span, err)
	}
	return d, nil
}

// Price validates the session, resolves its coupon and attaches totals.
// Pricing unchanged inputs again leaves totals and window untouched; new
// inputs replace the totals and re-arm the window.
func (s *Service) Price(ctx context.Context, id string) (*Data, error) {
	return s.mutate(ctx, "checkout.Price", id, false, func(ctx context.Context, d *Data, now time.Time) error {
		if d.Status == StatusSubmitted {
			return fmt.Errorf("%w: session %s already submitted", ErrIllegalTransition, id)
		}
		if err := s.gate("pricing", s.validator.ValidateForPricing(d, now)); err != nil {
			return err
		}
		c, err := s.resolveCoupon(ctx, d.CouponCode, true)
		if err != nil {
			return err
		}
		hash, err := s.fingerprint(d.Items, c)
		if err != nil {
			return err
		}
		if d.Totals != nil && d.InputsHash == hash {
			return s.move(d, StatusValidated)
		}

		q, err := s.compute(ctx, d.Items, c, now)
		if err != nil {
			return err
		}
		expires := now.Add(s.sessionTTL)
		d.Totals = &q.Totals
		d.InputsHash = hash
		d.Currency = q.Currency
		d.ExpiresAt = &expires
		d.Timestamp = now
		return s.move(d, StatusValidated)
	})
}

// Submit runs the submission gate, confirms the totals still match the
// inputs, marks the session Submitted and publishes the hand-off task.
func (s *Service) Submit(ctx context.Context, id string) (*Data, error) {
	d, err := s.mutate(ctx, "checkout.Submit", id, false, func(ctx context.Context, d *Data, now time.Time) error {
		if err := s.gate("submission", s.validator.ValidateForSubmission(d, now)); err != nil {
			return err
		}
		if !d.Status.CanTransition(StatusSubmitted) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, d.Status, StatusSubmitted)
		}
		c, err := s.resolveCoupon(ctx, d.CouponCode, true)
		if err != nil {
			return err
		}
		if c != nil {
			if err := c.Validate(now); err != nil {
				return err
			}
		}
		hash, err := s.fingerprint(d.Items, c)
		if err != nil {
			return err
		}
		if hash != d.InputsHash {
			return &ValidationError{Kind: ErrMissingTotals, Fields: []string{"totals"}}
		}

		submitted := now
		d.SubmittedAt = &submitted
		if err := s.move(d, StatusSubmitted); err != nil {
			return err
		}
		if s.tasks == nil {
			return nil
		}
		return s.tasks.EnqueueSubmitted(ctx, SubmittedPayload{
			SessionID:   d.SessionID,
			UserID:      d.UserID,
			Currency:    d.Currency,
			CouponCode:  d.CouponCode,
			Totals:      *d.Totals,
			SubmittedAt: submitted,
		})
	})
	result := "ok"
	if err != nil {
		result = errorLabel(err)
	}
	obs.Inc(obs.CheckoutSubmitTotal, result)
	return d, err
}

// Reopen returns a session to Draft with a fresh window and no totals. It is
// the only way out of Expired.
func (s *Service) Reopen(ctx context.Context, id string) (*Data, error) {
	return s.mutate(ctx, "checkout.Reopen", id, true, func(_ context.Context, d *Data, now time.Time) error {
		if err := s.move(d, StatusDraft); err != nil {
			return err
		}
		expires := now.Add(s.sessionTTL)
		d.clearTotals()
		d.ExpiresAt = &expires
		d.Timestamp = now
		return nil
	})
}

// Quote prices lines without a session.
func (s *Service) Quote(ctx context.Context, lines []pricing.CartLine, couponCode string) (pricing.Quote, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Quote")
	defer span.End()

	c, err := s.resolveCoupon(ctx, couponCode, false)
	if err != nil {
		return pricing.Quote{}, endSpan(span, err)
	}
	q, err := s.compute(ctx, lines, c, s.now())
	if err != nil {
		return pricing.Quote{}, endSpan(span, err)
	}
	return q, nil
}

// mutate loads the session under its lock, applies fn and saves the result.
// Unless reopening, a session past its window is marked Expired and saved
// before CheckoutExpired is returned.
func (s *Service) mutate(ctx context.Context, op, id string, reopen bool, fn func(context.Context, *Data, time.Time) error) (*Data, error) {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("checkout.session_id", id)))
	defer span.End()

	var out *Data
	err := s.locker.WithSession(ctx, id, s.lockTTL, func(ctx context.Context) error {
		d, err := s.sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if !reopen {
			if err := s.expire(ctx, d, now); err != nil {
				return err
			}
		}
		if err := fn(ctx, d, now); err != nil {
			return err
		}
		if err := s.sessions.Save(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	return out, nil
}

func (s *Service) expire(ctx context.Context, d *Data, now time.Time) error {
	if d.Status == StatusExpired {
		return fmt.Errorf("%w: session %s must be reopened", ErrCheckoutExpired, d.SessionID)
	}
	if d.Status == StatusSubmitted || !d.expired(now) {
		return nil
	}
	if err := s.move(d, StatusExpired); err != nil {
		return err
	}
	d.clearTotals()
	if err := s.sessions.Save(ctx, d); err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s expired at %s", ErrCheckoutExpired, d.SessionID, d.ExpiresAt.Format(time.RFC3339))
}

func (s *Service) move(d *Data, next Status) error {
	from := d.Status
	if err := transition(d, next); err != nil {
		return err
	}
	if from != next {
		s.logger.Debug().Str("session_id", d.SessionID).Str("from", string(from)).Str("to", string(next)).Msg("checkout transition")
	}
	return nil
}

func (s *Service) gate(stage string, err error) error {
	result := "ok"
	if err != nil {
		result = errorLabel(err)
	}
	obs.Inc(obs.CheckoutValidationTotal, stage, result)
	return err
}

// checkAmounts refuses amounts the policy scale cannot hold before they are
// stored, so a session never prices a different cart than it was given.
func (s *Service) checkAmounts(items []pricing.CartLine) error {
	scale := s.engine.Policy().Scale
	for _, item := range items {
		if err := pricing.CheckAmounts(item, scale); err != nil {
			return err
		}
	}
	return nil
}

// resolveCoupon looks up a normalised code. A blank code means no coupon; an
// unknown code is CouponInvalid. Fresh lookups skip any cache in front of
// the coupon store; pricing and submission use them, quotes do not.
func (s *Service) resolveCoupon(ctx context.Context, code string, fresh bool) (*pricing.Coupon, error) {
	code = pricing.NormalizeCode(code)
	if code == "" {
		return nil, nil
	}
	if s.coupons == nil {
		return nil, fmt.Errorf("%w: %s", pricing.ErrCouponInvalid, code)
	}
	var c pricing.Coupon
	var err error
	if f, ok := s.coupons.(coupon.FreshFinder); ok && fresh {
		c, err = f.FindFresh(ctx, code)
	} else {
		c, err = s.coupons.FindByCode(ctx, code)
	}
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown code %s", pricing.ErrCouponInvalid, code)
		}
		return nil, err
	}
	return &c, nil
}

func (s *Service) compute(ctx context.Context, lines []pricing.CartLine, c *pricing.Coupon, now time.Time) (pricing.Quote, error) {
	start := time.Now()
	q, err := s.engine.QuoteAt(lines, c, now)
	result := "ok"
	if err != nil {
		result = errorLabel(err)
	}
	s.duration.Record(ctx, obs.DurationMillis(time.Since(start)), metric.WithAttributes(attribute.String("result", result)))
	obs.Inc(obs.PricingComputeTotal, result)
	if err != nil {
		s.logger.Debug().Err(err).Int("lines", len(lines)).Msg("pricing rejected")
	}
	return q, err
}

type fingerprintInput struct {
	Items  []pricing.CartLine `json:"items"`
	Coupon *pricing.Coupon    `json:"coupon"`
	Policy pricing.Policy     `json:"policy"`
}

func (s *Service) fingerprint(items []pricing.CartLine, c *pricing.Coupon) (string, error) {
	return common.Fingerprint(fingerprintInput{Items: items, Coupon: c, Policy: s.engine.Policy()})
}

var errorLabels = []struct {
	target error
	label  string
}{
	{ErrCheckoutExpired, "checkout_expired"},
	{ErrMissingCheckoutData, "missing_checkout_data"},
	{ErrMissingShippingData, "missing_shipping_data"},
	{ErrMissingTotals, "missing_totals"},
	{ErrIllegalTransition, "illegal_transition"},
	{ErrSessionNotFound, "not_found"},
	{pricing.ErrCouponExpired, "coupon_expired"},
	{pricing.ErrCouponInvalid, "coupon_invalid"},
	{pricing.ErrInvalidLine, "invalid_line"},
	{pricing.ErrInvalidAmount, "invalid_amount"},
}

func errorLabel(err error) string {
	for _, l := range errorLabels {
		if errors.Is(err, l.target) {
			return l.label
		}
	}
	return "error"
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, strings.SplitN(err.Error(), ":", 2)[0])
	return err
}
