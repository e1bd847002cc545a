package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/infrastructure/observability"
	"github.com/diaspomoney/payments/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var errCircuitOpen = fmt.Errorf("circuit breaker open: %w", domainErrors.ErrProviderUnavailable)

// GuardConfig bounds every provider call.
type GuardConfig struct {
	Timeout time.Duration
	Retry   retry.Config

	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerHalfOpen     uint32
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:             20 * time.Second,
		Retry:               retry.DefaultConfig(),
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.6,
		BreakerInterval:     60 * time.Second,
		BreakerTimeout:      30 * time.Second,
		BreakerHalfOpen:     10,
	}
}

// Observer collects the side effects of a failed provider call.
type Observer struct {
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	Reporter observability.ErrorReporter
}

// guard wraps provider calls with a timeout, a circuit breaker and retry of
// transient failures. One guard per provider.
type guard struct {
	provider payment.Provider
	cfg      GuardConfig
	breaker  *gobreaker.CircuitBreaker[any]
	obs      Observer
}

func newGuard(provider payment.Provider, cfg GuardConfig, obs Observer) *guard {
	if obs.Reporter == nil {
		obs.Reporter = observability.NopReporter{}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGuardConfig().Timeout
	}

	g := &guard{provider: provider, cfg: cfg, obs: obs}
	name := string(provider)
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerHalfOpen,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests || counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureRatio
		},
		// A declined card says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domainErrors.ErrProviderRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			obs.Logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			obs.Metrics.SetBreakerState(name, float64(to))
		},
	})
	return g
}

// idempotencyKey names one logical provider operation. Every retry attempt of
// that operation must send the same key so the provider executes it once.
func idempotencyKey(provider payment.Provider, op string) string {
	return strings.ToLower(string(provider)) + "-" + op + "-" + uuid.NewString()
}

func isTransient(err error) bool {
	if errors.Is(err, errCircuitOpen) {
		return false
	}
	return errors.Is(err, domainErrors.ErrProviderUnavailable) || errors.Is(err, domainErrors.ErrProviderTimeout)
}

// guarded runs fn under g. fn receives a context bounded by the per-call timeout
// and must classify its failures with the provider sentinels.
func guarded[T any](ctx context.Context, g *guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	defer func() { g.obs.Metrics.RecordProviderCall(string(g.provider), op, time.Since(start)) }()

	rc := g.cfg.Retry
	rc.RetryIf = isTransient
	rc.OnRetry = func(n uint, err error) {
		g.obs.Logger.Warn().Err(err).Str("operation", op).Uint("attempt", n+1).Msg("retrying provider call")
	}

	return retry.DoWithResult(ctx, rc, func() (T, error) {
		var zero T
		out, err := g.breaker.Execute(func() (any, error) {
			callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()

			v, err := fn(callCtx)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				err = domainErrors.NewDomainError("provider_timeout",
					fmt.Sprintf("%s %s timed out after %s", g.provider, op, g.cfg.Timeout),
					domainErrors.ErrProviderTimeout)
			}
			return v, err
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w", g.provider, errCircuitOpen)
		}
		if err != nil {
			return zero, err
		}
		v, _ := out.(T)
		return v, nil
	})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, domainErrors.ErrProviderRejected):
		return "rejected"
	case errors.Is(err, domainErrors.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, domainErrors.ErrValidationFailed),
		errors.Is(err, domainErrors.ErrUnsupportedCurrency),
		errors.Is(err, domainErrors.ErrInvalidAmount):
		return "validation"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "unknown"
	}
}

// fail logs, reports and counts err.
func (g *guard) fail(ctx context.Context, op string, err error) {
	kind := errorKind(err)
	g.obs.Logger.Error().Err(err).Str("operation", op).Str("kind", kind).Msg("payment operation failed")
	g.obs.Metrics.RecordProviderError(string(g.provider), op, kind)
	g.obs.Reporter.Report(ctx, err, map[string]string{
		"provider":  string(g.provider),
		"operation": op,
		"kind":      kind,
	})
}

// paymentFailed is the failure path shared by every payment-returning method.
func (g *guard) paymentFailed(ctx context.Context, op, currency string, err error) payment.PaymentResult {
	g.fail(ctx, op, err)
	g.obs.Metrics.RecordPayment(string(g.provider), currency, "failed")
	return payment.Failed(err)
}

func (g *guard) refundFailed(ctx context.Context, err error) payment.RefundResult {
	g.fail(ctx, "refund", err)
	return payment.RefundFailed(err)
}
