package command

import (
	"context"
	"time"

	"github.com/diaspomoney/payments/internal/domain/booking"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	NameCreateBooking       = "CreateBooking"
	NameCancelBooking       = "CancelBooking"
	NameUpdateBookingStatus = "UpdateBookingStatus"
)

type CreateBookingData struct {
	CustomerID      string            `json:"customerId"`
	ProviderID      string            `json:"providerId"`
	ServiceID       string            `json:"serviceId"`
	BeneficiaryID   *string           `json:"beneficiaryId,omitempty"`
	Amount          float64           `json:"amount"`
	Currency        string            `json:"currency"`
	ScheduledAt     *time.Time        `json:"scheduledAt,omitempty"`
	Provider        payment.Provider  `json:"provider,omitempty"`
	Country         string            `json:"country,omitempty"`
	PaymentMethodID string            `json:"paymentMethodId,omitempty"`
	Description     string            `json:"description,omitempty"`
	ReturnURL       string            `json:"returnUrl,omitempty"`
	CancelURL       string            `json:"cancelUrl,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CreateBooking books a service and pays for it. Undo cancels the booking
// and refunds the payment if it went through.
type CreateBooking struct {
	Base[CreateBookingData]
	bookings BookingPayments
	logger   zerolog.Logger

	bookingID *uuid.UUID
}

func NewCreateBooking(data CreateBookingData, bookings BookingPayments, logger zerolog.Logger) *CreateBooking {
	return &CreateBooking{
		Base:     NewBase(NameCreateBooking, data),
		bookings: bookings,
		logger:   logger,
	}
}

func (c *CreateBooking) Execute(ctx context.Context) (any, error) {
	in := c.Input()
	res, err := c.bookings.CreateBookingWithPayment(ctx, service.BookingPaymentRequest{
		Booking: service.CreateBookingRequest{
			CustomerID:    in.CustomerID,
			ProviderID:    in.ProviderID,
			ServiceID:     in.ServiceID,
			BeneficiaryID: in.BeneficiaryID,
			Amount:        in.Amount,
			Currency:      in.Currency,
			ScheduledAt:   in.ScheduledAt,
		},
		Provider:        in.Provider,
		Country:         in.Country,
		PaymentMethodID: in.PaymentMethodID,
		Description:     in.Description,
		ReturnURL:       in.ReturnURL,
		CancelURL:       in.CancelURL,
		Metadata:        in.Metadata,
	})
	if err != nil {
		return nil, err
	}
	id := res.Booking.ID
	c.bookingID = &id
	return res, nil
}

func (c *CreateBooking) Undo(ctx context.Context) error {
	if c.bookingID == nil {
		c.logger.Warn().Str("command", c.Name()).Msg("no booking was created, nothing to undo")
		return nil
	}
	refunded, err := c.bookings.CancelWithRefund(ctx, *c.bookingID, "booking command undone")
	if err != nil {
		return err
	}
	c.logger.Info().
		Str("booking_id", c.bookingID.String()).
		Bool("refunded", refunded).
		Msg("booking cancelled")
	return nil
}

// BookingStatusChange is the result of a booking status command.
type BookingStatusChange struct {
	BookingID uuid.UUID      `json:"bookingId"`
	Previous  booking.Status `json:"previousStatus"`
	Current   booking.Status `json:"status"`
}

// statusWriteBack holds the status a booking had before a command changed
// it. Undo writes that status back as is.
type statusWriteBack struct {
	bookings BookingStatusWriter
	logger   zerolog.Logger
	previous booking.Status
}

func (w *statusWriteBack) apply(ctx context.Context, id uuid.UUID, status booking.Status) (*BookingStatusChange, error) {
	prev, err := w.bookings.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	w.previous = prev
	return &BookingStatusChange{BookingID: id, Previous: prev, Current: status}, nil
}

func (w *statusWriteBack) restore(ctx context.Context, name string, id uuid.UUID) error {
	if w.previous == "" {
		w.logger.Warn().Str("command", name).Msg("no previous status captured, nothing to undo")
		return nil
	}
	_, err := w.bookings.UpdateStatus(ctx, id, w.previous)
	return err
}

type CancelBookingData struct {
	BookingID uuid.UUID `json:"bookingId"`
	Reason    string    `json:"reason,omitempty"`
}

// CancelBooking marks a booking CANCELLED. Payments are left alone.
type CancelBooking struct {
	Base[CancelBookingData]
	statusWriteBack
}

func NewCancelBooking(data CancelBookingData, bookings BookingStatusWriter, logger zerolog.Logger) *CancelBooking {
	return &CancelBooking{
		Base:            NewBase(NameCancelBooking, data),
		statusWriteBack: statusWriteBack{bookings: bookings, logger: logger},
	}
}

func (c *CancelBooking) Execute(ctx context.Context) (any, error) {
	return c.apply(ctx, c.Input().BookingID, booking.StatusCancelled)
}

func (c *CancelBooking) Undo(ctx context.Context) error {
	return c.restore(ctx, c.Name(), c.Input().BookingID)
}

type UpdateBookingStatusData struct {
	BookingID uuid.UUID      `json:"bookingId"`
	Status    booking.Status `json:"status"`
}

type UpdateBookingStatus struct {
	Base[UpdateBookingStatusData]
	statusWriteBack
}

func NewUpdateBookingStatus(data UpdateBookingStatusData, bookings BookingStatusWriter, logger zerolog.Logger) *UpdateBookingStatus {
	return &UpdateBookingStatus{
		Base:            NewBase(NameUpdateBookingStatus, data),
		statusWriteBack: statusWriteBack{bookings: bookings, logger: logger},
	}
}

func (c *UpdateBookingStatus) Execute(ctx context.Context) (any, error) {
	in := c.Input()
	return c.apply(ctx, in.BookingID, in.Status)
}

func (c *UpdateBookingStatus) Undo(ctx context.Context) error {
	return c.restore(ctx, c.Name(), c.Input().BookingID)
}
