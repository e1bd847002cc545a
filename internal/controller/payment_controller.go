package controller

import (
	"net/http"
	"strings"

	"github.com/diaspomoney/payments/internal/command"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/service"
	"github.com/rs/zerolog"
)

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	commandRunner
	payments *service.PaymentService
	logger   zerolog.Logger
}

func NewPaymentController(handler *command.Handler, payments *service.PaymentService, logger zerolog.Logger) *PaymentController {
	return &PaymentController{
		commandRunner: commandRunner{handler: handler},
		payments:      payments,
		logger:        logger,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	bookingID, err := parseOptionalUUID("bookingId", req.BookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	provider, err := optionalProvider(req.Provider)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := command.NewCreatePayment(command.CreatePaymentData{
		Provider:        provider,
		Country:         strings.ToUpper(req.Country),
		BookingID:       bookingID,
		Amount:          req.Amount,
		Currency:        strings.ToUpper(req.Currency),
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.Description,
		ReturnURL:       req.ReturnURL,
		CancelURL:       req.CancelURL,
		Metadata:        req.Metadata,
		Deferred:        req.Deferred,
	}, h.payments, h.logger)

	h.run(w, r, cmd, func(data any) int {
		out, _ := data.(*service.PaymentOutcome)
		return paymentStatus(out)
	})
}

// ConfirmPayment handles POST /api/v1/payments/{id}/confirm
func (h *PaymentController) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ConfirmPaymentRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	cmd := command.NewConfirmPayment(command.ConfirmPaymentData{
		TransactionID:   id,
		PaymentMethodID: req.PaymentMethodID,
	}, h.payments)

	h.run(w, r, cmd, func(data any) int {
		out, _ := data.(*service.PaymentOutcome)
		if s := paymentStatus(out); s != http.StatusCreated {
			return s
		}
		return http.StatusOK
	})
}

func optionalProvider(s string) (payment.Provider, error) {
	if s == "" {
		return "", nil
	}
	return payment.ParseProvider(s)
}
