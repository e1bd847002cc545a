package service

import (
	"context"

	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/providers"
)

// TransactionManager wraps several repository writes in one database
// transaction. fn's error rolls the transaction back.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// StrategyResolver looks up payment strategies. *providers.Registry implements it.
type StrategyResolver interface {
	Get(provider payment.Provider) (providers.Strategy, error)
	Best(currency, country string) providers.Strategy
}
