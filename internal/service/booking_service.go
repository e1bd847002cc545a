package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diaspomoney/payments/internal/domain/booking"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingService owns booking persistence and status changes.
type BookingService struct {
	repo   booking.Repository
	logger zerolog.Logger
}

func NewBookingService(repo booking.Repository, logger zerolog.Logger) *BookingService {
	return &BookingService{
		repo:   repo,
		logger: logger.With().Str("component", "booking_service").Logger(),
	}
}

type CreateBookingRequest struct {
	CustomerID    string
	ProviderID    string
	ServiceID     string
	BeneficiaryID *string
	Amount        float64
	Currency      string
	ScheduledAt   *time.Time
}

func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest) (*booking.Booking, error) {
	b, err := booking.NewBooking(req.CustomerID, req.ProviderID, req.ServiceID, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	b.BeneficiaryID = req.BeneficiaryID
	b.ScheduledAt = req.ScheduledAt

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.logger.Info().Str("booking_id", b.ID.String()).Str("customer_id", b.CustomerID).Msg("booking created")
	return b, nil
}

func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateStatus writes status and returns the status it replaced.
func (s *BookingService) UpdateStatus(ctx context.Context, id uuid.UUID, status booking.Status) (booking.Status, error) {
	status, err := booking.ParseStatus(string(status))
	if err != nil {
		return "", err
	}

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return "", fmt.Errorf("update booking %s status: %w", id, err)
	}

	s.logger.Info().
		Str("booking_id", id.String()).
		Str("from", string(b.Status)).
		Str("to", string(status)).
		Msg("booking status updated")
	return b.Status, nil
}

// AttachTransaction links a payment transaction to the booking and confirms
// it when the payment settled.
func (s *BookingService) AttachTransaction(ctx context.Context, id, transactionID uuid.UUID, provider payment.Provider, paid bool) (*booking.Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	b.AttachTransaction(transactionID, provider)
	if paid {
		b.SetStatus(booking.StatusConfirmed)
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("attach transaction to booking %s: %w", id, err)
	}
	return b, nil
}
