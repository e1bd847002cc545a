package providers

import (
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/infrastructure/config"
	"github.com/diaspomoney/payments/pkg/retry"
	"github.com/rs/zerolog"
)

// Constructor builds a strategy on first use.
type Constructor func() (Strategy, error)

// Registry hands out one cached strategy per provider. It is safe for
// concurrent use.
type Registry struct {
	mu           sync.Mutex
	constructors map[payment.Provider]Constructor
	cache        map[payment.Provider]Strategy
	logger       zerolog.Logger
}

func NewRegistry(constructors map[payment.Provider]Constructor, logger zerolog.Logger) *Registry {
	c := make(map[payment.Provider]Constructor, len(constructors))
	for p, fn := range constructors {
		c[p] = fn
	}
	return &Registry{
		constructors: c,
		cache:        make(map[payment.Provider]Strategy),
		logger:       logger.With().Str("component", "strategy_registry").Logger(),
	}
}

// NewRegistryFromConfig wires the real Stripe and PayPal strategies, or mock
// strategies when payment.use_mock_providers is set.
func NewRegistryFromConfig(cfg *config.Config, obs Observer) *Registry {
	gc := GuardConfigFrom(cfg.Payment)

	if cfg.Payment.UseMockProviders {
		return NewRegistry(map[payment.Provider]Constructor{
			payment.ProviderStripe: func() (Strategy, error) {
				return NewMockStrategy(payment.ProviderStripe,
					WithCurrencies(stripeCurrencies...),
					WithCountries(stripeCountries...),
					WithLatency(200*time.Millisecond),
					WithFailureRate(0.05),
				), nil
			},
			payment.ProviderPayPal: func() (Strategy, error) {
				return NewMockStrategy(payment.ProviderPayPal,
					WithCurrencies(paypalCurrencies...),
					WithCountries(paypalCountries...),
					WithLatency(300*time.Millisecond),
					WithFailureRate(0.08),
				), nil
			},
		}, obs.Logger)
	}

	return NewRegistry(map[payment.Provider]Constructor{
		payment.ProviderStripe: func() (Strategy, error) {
			return NewStripeStrategy(StripeOptions{
				SecretKey: cfg.Stripe.SecretKey,
				APIURL:    cfg.Stripe.APIURL,
			}, gc, obs)
		},
		payment.ProviderPayPal: func() (Strategy, error) {
			return NewPayPalStrategy(PayPalOptions{
				ClientID:     cfg.PayPal.ClientID,
				ClientSecret: cfg.PayPal.ClientSecret,
				BaseURL:      cfg.PayPal.BaseURL,
				ReturnURL:    cfg.PayPal.ReturnURL,
				CancelURL:    cfg.PayPal.CancelURL,
			}, gc, obs), nil
		},
	}, obs.Logger)
}

// GuardConfigFrom maps the payment config section onto guard settings.
func GuardConfigFrom(pc config.PaymentConfig) GuardConfig {
	gc := DefaultGuardConfig()
	if pc.ProviderTimeout > 0 {
		gc.Timeout = pc.ProviderTimeout
	}
	if pc.RetryAttempts > 0 {
		gc.Retry = retry.Config{
			MaxAttempts:  pc.RetryAttempts,
			InitialDelay: pc.RetryDelay,
			MaxDelay:     pc.RetryMaxDelay,
		}
	}
	if pc.CircuitBreakerRequests > 0 {
		gc.BreakerMinRequests = pc.CircuitBreakerRequests
	}
	if pc.CircuitBreakerRatio > 0 {
		gc.BreakerFailureRatio = pc.CircuitBreakerRatio
	}
	if pc.CircuitBreakerInterval > 0 {
		gc.BreakerInterval = pc.CircuitBreakerInterval
	}
	if pc.CircuitBreakerTimeout > 0 {
		gc.BreakerTimeout = pc.CircuitBreakerTimeout
	}
	if pc.CircuitBreakerHalfOpen > 0 {
		gc.BreakerHalfOpen = pc.CircuitBreakerHalfOpen
	}
	return gc
}

// Get returns the cached strategy for provider, building it on first access.
func (r *Registry) Get(provider payment.Provider) (Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(provider)
}

func (r *Registry) getLocked(provider payment.Provider) (Strategy, error) {
	if s, ok := r.cache[provider]; ok {
		return s, nil
	}

	build, ok := r.constructors[provider]
	if !ok {
		return nil, domainErrors.NewDomainError("unknown_provider",
			fmt.Sprintf("unknown payment provider %q", provider), domainErrors.ErrUnknownProvider)
	}

	s, err := build()
	if err != nil {
		return nil, fmt.Errorf("build %s strategy: %w", provider, err)
	}
	r.cache[provider] = s
	r.logger.Debug().Str("provider", string(provider)).Msg("strategy initialized")
	return s, nil
}

// All realizes every registered strategy in enumeration order. Strategies
// that fail to build are skipped.
func (r *Registry) All() []Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Strategy, 0, len(r.constructors))
	for _, p := range payment.Providers() {
		if _, ok := r.constructors[p]; !ok {
			continue
		}
		s, err := r.getLocked(p)
		if err != nil {
			r.logger.Warn().Err(err).Str("provider", string(p)).Msg("strategy unavailable")
			continue
		}
		out = append(out, s)
	}
	return out
}

// Best picks a strategy for currency and, when non-empty, country.
// Stripe wins when it qualifies, otherwise the first match. Nil when none does.
func (r *Registry) Best(currency, country string) Strategy {
	var candidates []Strategy
	for _, s := range r.All() {
		if !SupportsCurrency(s, currency) {
			continue
		}
		if country != "" && !SupportsCountry(s, country) {
			continue
		}
		candidates = append(candidates, s)
	}

	for _, s := range candidates {
		if s.Name() == payment.ProviderStripe {
			return s
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}

// Reset drops every cached strategy.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[payment.Provider]Strategy)
}
