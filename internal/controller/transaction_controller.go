package controller

import (
	"net/http"
	"strings"

	"github.com/diaspomoney/payments/internal/command"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/diaspomoney/payments/internal/service"
	"github.com/rs/zerolog"
)

// TransactionController handles transaction-related HTTP requests.
type TransactionController struct {
	commandRunner
	transactions *service.TransactionService
	logger       zerolog.Logger
}

func NewTransactionController(handler *command.Handler, transactions *service.TransactionService, logger zerolog.Logger) *TransactionController {
	return &TransactionController{
		commandRunner: commandRunner{handler: handler},
		transactions:  transactions,
		logger:        logger,
	}
}

// CreateTransaction handles POST /api/v1/transactions
func (h *TransactionController) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	bookingID, err := parseOptionalUUID("bookingId", req.BookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	provider, err := payment.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := command.NewCreateTransaction(command.CreateTransactionData{
		BookingID:  bookingID,
		CustomerID: req.CustomerID,
		Provider:   provider,
		Amount:     req.Amount,
		Currency:   strings.ToUpper(req.Currency),
		Metadata:   req.Metadata,
	}, h.transactions, h.logger)
	h.run(w, r, cmd, statusCreated)
}

// GetTransaction handles GET /api/v1/transactions/{id}
func (h *TransactionController) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.transactions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromTransaction(t))
}

// SyncTransaction handles POST /api/v1/transactions/{id}/sync
func (h *TransactionController) SyncTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.transactions.Sync(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromTransaction(t))
}

// UpdateStatus handles PATCH /api/v1/transactions/{id}/status
func (h *TransactionController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req UpdateTransactionStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	status, err := transaction.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := command.NewUpdateTransactionStatus(command.UpdateTransactionStatusData{TransactionID: id, Status: status}, h.transactions, h.logger)
	h.run(w, r, cmd, nil)
}

// Refund handles POST /api/v1/transactions/{id}/refund
func (h *TransactionController) Refund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req RefundTransactionRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	cmd := command.NewRefundTransaction(command.RefundTransactionData{
		TransactionID: id,
		Amount:        req.Amount,
		Reason:        req.Reason,
	}, h.transactions)
	h.run(w, r, cmd, nil)
}
