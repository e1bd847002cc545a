package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/diaspomoney/payments/internal/domain/booking"
	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, customer_id, provider_id, service_id, beneficiary_id,
	amount, currency, status, transaction_id, payment_provider, scheduled_at, created_at, updated_at`

// BookingRepository implements booking.Repository using PostgreSQL.
type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *BookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		b.ID, b.CustomerID, b.ProviderID, b.ServiceID, b.BeneficiaryID,
		amountToNumeric(b.Amount), b.Currency, string(b.Status), b.TransactionID, providerString(b.PaymentProvider),
		b.ScheduledAt, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return scanBooking(r.db(ctx).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status booking.Status) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrBookingNotFound
	}
	return nil
}

func (r *BookingRepository) Update(ctx context.Context, b *booking.Booking) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE bookings SET
		  beneficiary_id=$1, status=$2, transaction_id=$3, payment_provider=$4,
		  scheduled_at=$5, updated_at=$6
		 WHERE id=$7`,
		b.BeneficiaryID, string(b.Status), b.TransactionID, providerString(b.PaymentProvider),
		b.ScheduledAt, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrBookingNotFound
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(s scanner) (*booking.Booking, error) {
	b := &booking.Booking{}
	var (
		amount   string
		status   string
		provider *string
	)
	err := s.Scan(
		&b.ID, &b.CustomerID, &b.ProviderID, &b.ServiceID, &b.BeneficiaryID,
		&amount, &b.Currency, &status, &b.TransactionID, &provider, &b.ScheduledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrBookingNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}

	if b.Amount, err = numericToAmount(amount); err != nil {
		return nil, fmt.Errorf("parse booking amount: %w", err)
	}
	b.Status = booking.Status(status)
	if provider != nil {
		p := payment.Provider(*provider)
		b.PaymentProvider = &p
	}
	return b, nil
}

func providerString(p *payment.Provider) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}
