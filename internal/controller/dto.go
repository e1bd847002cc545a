package controller

import (
	"time"

	"github.com/diaspomoney/payments/internal/command"
	"github.com/diaspomoney/payments/internal/domain/booking"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/diaspomoney/payments/internal/providers"
	"github.com/diaspomoney/payments/internal/service"
)

// --- Request DTOs ---
// These carry JSON and validation concerns only. Controllers turn them into
// command data before anything runs.

type CreatePaymentRequest struct {
	Provider        string            `json:"provider" validate:"omitempty,oneof=STRIPE PAYPAL stripe paypal"`
	Country         string            `json:"country" validate:"omitempty,len=2"`
	BookingID       *string           `json:"bookingId" validate:"omitempty,uuid"`
	Amount          float64           `json:"amount" validate:"required,gt=0"`
	Currency        string            `json:"currency" validate:"required,len=3"`
	CustomerID      string            `json:"customerId" validate:"required"`
	PaymentMethodID string            `json:"paymentMethodId"`
	Description     string            `json:"description" validate:"max=500"`
	ReturnURL       string            `json:"returnUrl" validate:"omitempty,url"`
	CancelURL       string            `json:"cancelUrl" validate:"omitempty,url"`
	Metadata        map[string]string `json:"metadata"`
	// Deferred stages the payment; POST /payments/{id}/confirm completes it.
	Deferred        bool              `json:"deferred"`
}

type ConfirmPaymentRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

type CreateBookingRequest struct {
	CustomerID      string            `json:"customerId" validate:"required"`
	ProviderID      string            `json:"providerId" validate:"required"`
	ServiceID       string            `json:"serviceId" validate:"required"`
	BeneficiaryID   *string           `json:"beneficiaryId"`
	Amount          float64           `json:"amount" validate:"required,gt=0"`
	Currency        string            `json:"currency" validate:"required,len=3"`
	ScheduledAt     *time.Time        `json:"scheduledAt"`
	Provider        string            `json:"provider" validate:"omitempty,oneof=STRIPE PAYPAL stripe paypal"`
	Country         string            `json:"country" validate:"omitempty,len=2"`
	PaymentMethodID string            `json:"paymentMethodId"`
	Description     string            `json:"description" validate:"max=500"`
	ReturnURL       string            `json:"returnUrl" validate:"omitempty,url"`
	CancelURL       string            `json:"cancelUrl" validate:"omitempty,url"`
	Metadata        map[string]string `json:"metadata"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type CreateTransactionRequest struct {
	BookingID  *string           `json:"bookingId" validate:"omitempty,uuid"`
	CustomerID string            `json:"customerId" validate:"required"`
	Provider   string            `json:"provider" validate:"required,oneof=STRIPE PAYPAL stripe paypal"`
	Amount     float64           `json:"amount" validate:"required,gt=0"`
	Currency   string            `json:"currency" validate:"required,len=3"`
	Metadata   map[string]string `json:"metadata"`
}

type UpdateTransactionStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type RefundTransactionRequest struct {
	Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
	Reason string   `json:"reason" validate:"max=500"`
}

// --- Response DTOs ---

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// CommandResponse is a command.Result with its data converted for the API.
type CommandResponse struct {
	Success     bool      `json:"success"`
	Data        any       `json:"data,omitempty"`
	Error       string    `json:"error,omitempty"`
	Code        string    `json:"code,omitempty"`
	CommandName string    `json:"commandName"`
	Timestamp   time.Time `json:"timestamp"`
}

type BookingResponse struct {
	ID              string     `json:"id"`
	CustomerID      string     `json:"customerId"`
	ProviderID      string     `json:"providerId"`
	ServiceID       string     `json:"serviceId"`
	BeneficiaryID   *string    `json:"beneficiaryId,omitempty"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	TransactionID   *string    `json:"transactionId,omitempty"`
	PaymentProvider *string    `json:"paymentProvider,omitempty"`
	ScheduledAt     *time.Time `json:"scheduledAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type TransactionResponse struct {
	ID                    string            `json:"id"`
	BookingID             *string           `json:"bookingId,omitempty"`
	CustomerID            string            `json:"customerId"`
	Provider              string            `json:"provider"`
	Amount                float64           `json:"amount"`
	Currency              string            `json:"currency"`
	Status                string            `json:"status"`
	ProviderTransactionID *string           `json:"providerTransactionId,omitempty"`
	PaymentIntentID       *string           `json:"paymentIntentId,omitempty"`
	RefundID              *string           `json:"refundId,omitempty"`
	RefundedAmount        float64           `json:"refundedAmount"`
	FailureReason         *string           `json:"failureReason,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

type PaymentResponse struct {
	Transaction *TransactionResponse  `json:"transaction,omitempty"`
	Result      payment.PaymentResult `json:"result"`
}

type BookingPaymentResponse struct {
	Booking *BookingResponse `json:"booking"`
	Payment *PaymentResponse `json:"payment,omitempty"`
}

type RefundResponse struct {
	Transaction *TransactionResponse `json:"transaction"`
	Refund      payment.RefundResult `json:"refund"`
}

type ProviderResponse struct {
	Provider            string   `json:"provider"`
	SupportedCurrencies []string `json:"supportedCurrencies"`
	SupportedCountries  []string `json:"supportedCountries"`
}

type HistoryResponse struct {
	Size     int      `json:"size"`
	Commands []string `json:"commands"`
}

// --- Conversion helpers ---

func FromBooking(b *booking.Booking) *BookingResponse {
	if b == nil {
		return nil
	}
	resp := &BookingResponse{
		ID:            b.ID.String(),
		CustomerID:    b.CustomerID,
		ProviderID:    b.ProviderID,
		ServiceID:     b.ServiceID,
		BeneficiaryID: b.BeneficiaryID,
		Amount:        b.Amount,
		Currency:      b.Currency,
		Status:        string(b.Status),
		ScheduledAt:   b.ScheduledAt,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	if b.TransactionID != nil {
		tid := b.TransactionID.String()
		resp.TransactionID = &tid
	}
	if b.PaymentProvider != nil {
		p := string(*b.PaymentProvider)
		resp.PaymentProvider = &p
	}
	return resp
}

func FromTransaction(t *transaction.Transaction) *TransactionResponse {
	if t == nil {
		return nil
	}
	resp := &TransactionResponse{
		ID:                    t.ID.String(),
		CustomerID:            t.CustomerID,
		Provider:              string(t.Provider),
		Amount:                t.Amount,
		Currency:              t.Currency,
		Status:                string(t.Status),
		ProviderTransactionID: t.ProviderTransactionID,
		PaymentIntentID:       t.PaymentIntentID,
		RefundID:              t.RefundID,
		RefundedAmount:        t.RefundedAmount,
		FailureReason:         t.FailureReason,
		Metadata:              t.Metadata,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
	if t.BookingID != nil {
		bid := t.BookingID.String()
		resp.BookingID = &bid
	}
	return resp
}

func FromPaymentOutcome(o *service.PaymentOutcome) *PaymentResponse {
	if o == nil {
		return nil
	}
	return &PaymentResponse{Transaction: FromTransaction(o.Transaction), Result: o.Result}
}

func FromStrategy(s providers.Strategy) *ProviderResponse {
	return &ProviderResponse{
		Provider:            string(s.Name()),
		SupportedCurrencies: s.SupportedCurrencies(),
		SupportedCountries:  s.SupportedCountries(),
	}
}

// presentData converts command output into response DTOs. Types that
// already carry JSON tags pass through.
func presentData(data any) any {
	switch v := data.(type) {
	case *service.PaymentOutcome:
		return FromPaymentOutcome(v)
	case *service.BookingWithPayment:
		return &BookingPaymentResponse{Booking: FromBooking(v.Booking), Payment: FromPaymentOutcome(v.Payment)}
	case *transaction.Transaction:
		return FromTransaction(v)
	case *command.RefundOutcome:
		return &RefundResponse{Transaction: FromTransaction(v.Transaction), Refund: v.Refund}
	default:
		return v
	}
}

func fromResult(res command.Result) CommandResponse {
	resp := CommandResponse{
		Success:     res.Success,
		Data:        presentData(res.Data),
		Error:       res.Error,
		CommandName: res.CommandName,
		Timestamp:   res.Timestamp,
	}
	if !res.Success && res.Cause != nil {
		_, resp.Code = errorStatus(res.Cause)
	}
	return resp
}
