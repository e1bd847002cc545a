package controller

import (
	"net/http"
	"strings"

	"github.com/diaspomoney/payments/internal/command"
	"github.com/diaspomoney/payments/internal/domain/booking"
	"github.com/diaspomoney/payments/internal/service"
	"github.com/rs/zerolog"
)

// BookingController handles booking-related HTTP requests.
type BookingController struct {
	commandRunner
	facade   *service.BookingFacade
	bookings *service.BookingService
	logger   zerolog.Logger
}

func NewBookingController(
	handler *command.Handler,
	facade *service.BookingFacade,
	bookings *service.BookingService,
	logger zerolog.Logger,
) *BookingController {
	return &BookingController{
		commandRunner: commandRunner{handler: handler},
		facade:        facade,
		bookings:      bookings,
		logger:        logger,
	}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingController) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	provider, err := optionalProvider(req.Provider)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := command.NewCreateBooking(command.CreateBookingData{
		CustomerID:      req.CustomerID,
		ProviderID:      req.ProviderID,
		ServiceID:       req.ServiceID,
		BeneficiaryID:   req.BeneficiaryID,
		Amount:          req.Amount,
		Currency:        strings.ToUpper(req.Currency),
		ScheduledAt:     req.ScheduledAt,
		Provider:        provider,
		Country:         strings.ToUpper(req.Country),
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.Description,
		ReturnURL:       req.ReturnURL,
		CancelURL:       req.CancelURL,
		Metadata:        req.Metadata,
	}, h.facade, h.logger)

	h.run(w, r, cmd, func(data any) int {
		res, ok := data.(*service.BookingWithPayment)
		if !ok {
			return http.StatusCreated
		}
		return paymentStatus(res.Payment)
	})
}

// GetBooking handles GET /api/v1/bookings/{id}
func (h *BookingController) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromBooking(b))
}

// CancelBooking handles POST /api/v1/bookings/{id}/cancel
func (h *BookingController) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req CancelBookingRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	cmd := command.NewCancelBooking(command.CancelBookingData{BookingID: id, Reason: req.Reason}, h.bookings, h.logger)
	h.run(w, r, cmd, nil)
}

// UpdateStatus handles PATCH /api/v1/bookings/{id}/status
func (h *BookingController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req UpdateBookingStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	status, err := booking.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := command.NewUpdateBookingStatus(command.UpdateBookingStatusData{BookingID: id, Status: status}, h.bookings, h.logger)
	h.run(w, r, cmd, nil)
}
