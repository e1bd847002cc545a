package controller

import (
	"net/http"

	"github.com/diaspomoney/payments/internal/command"
	"github.com/diaspomoney/payments/internal/service"
)

// commandRunner executes commands on the shared handler and writes the
// result. success picks the status code for a successful result.
type commandRunner struct {
	handler *command.Handler
}

func (c commandRunner) run(w http.ResponseWriter, r *http.Request, cmd command.Command, success func(data any) int) {
	res, err := c.handler.Execute(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res, success)
}

func writeResult(w http.ResponseWriter, res command.Result, success func(data any) int) {
	if !res.Success {
		status, _ := errorStatus(res.Cause)
		writeJSON(w, status, fromResult(res))
		return
	}
	status := http.StatusOK
	if success != nil {
		status = success(res.Data)
	}
	writeJSON(w, status, fromResult(res))
}

func statusCreated(any) int { return http.StatusCreated }

// paymentStatus maps a charge to 201 when settled, 202 while the customer
// still has to act and 402 when the provider declined it.
func paymentStatus(o *service.PaymentOutcome) int {
	switch {
	case o == nil:
		return http.StatusOK
	case o.Result.RequiresAction, o.Result.Pending:
		return http.StatusAccepted
	case o.Result.Success:
		return http.StatusCreated
	default:
		return http.StatusPaymentRequired
	}
}

// CommandController exposes the command history.
type CommandController struct {
	handler *command.Handler
}

func NewCommandController(handler *command.Handler) *CommandController {
	return &CommandController{handler: handler}
}

// Undo handles POST /api/v1/commands/undo
func (h *CommandController) Undo(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.handler.Undo(r.Context()), nil)
}

// History handles GET /api/v1/commands/history
func (h *CommandController) History(w http.ResponseWriter, r *http.Request) {
	names := h.handler.History()
	writeJSON(w, http.StatusOK, HistoryResponse{Size: len(names), Commands: names})
}

// ClearHistory handles DELETE /api/v1/commands/history
func (h *CommandController) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.handler.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}
