package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, booking_id, customer_id, provider, amount, currency, status,
	provider_transaction_id, payment_intent_id, refund_id, refunded_amount, failure_reason,
	metadata, created_at, updated_at`

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		t.ID, t.BookingID, t.CustomerID, string(t.Provider), amountToNumeric(t.Amount), t.Currency, string(t.Status),
		t.ProviderTransactionID, t.PaymentIntentID, t.RefundID, amountToNumeric(t.RefundedAmount), t.FailureReason,
		metadata, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions SET
		  booking_id=$1, status=$2, provider_transaction_id=$3, payment_intent_id=$4,
		  refund_id=$5, refunded_amount=$6, failure_reason=$7, metadata=$8, updated_at=$9
		 WHERE id=$10`,
		t.BookingID, string(t.Status), t.ProviderTransactionID, t.PaymentIntentID,
		t.RefundID, amountToNumeric(t.RefundedAmount), t.FailureReason, metadata, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrTransactionNotFound
	}
	return nil
}

func scanTransaction(s scanner) (*transaction.Transaction, error) {
	t := &transaction.Transaction{}
	var (
		provider string
		amount   string
		refunded string
		status   string
		metadata []byte
	)
	err := s.Scan(
		&t.ID, &t.BookingID, &t.CustomerID, &provider, &amount, &t.Currency, &status,
		&t.ProviderTransactionID, &t.PaymentIntentID, &t.RefundID, &refunded, &t.FailureReason,
		&metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	if t.Amount, err = numericToAmount(amount); err != nil {
		return nil, fmt.Errorf("parse transaction amount: %w", err)
	}
	if t.RefundedAmount, err = numericToAmount(refunded); err != nil {
		return nil, fmt.Errorf("parse refunded amount: %w", err)
	}
	t.Provider = payment.Provider(provider)
	t.Status = transaction.Status(status)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal transaction metadata: %w", err)
		}
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	return t, nil
}
