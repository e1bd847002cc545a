package command

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const DefaultMaxHistory = 100

// Audit event types.
const (
	EventExecuted   = "command.executed"
	EventUndone     = "command.undone"
	EventUndoFailed = "command.undo_failed"
)

// Event is the audit record of one execute or undo.
type Event struct {
	Type       string        `json:"type"`
	Command    string        `json:"command"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Data       any           `json:"data,omitempty"`
	Duration   time.Duration `json:"duration"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// Publisher ships audit events somewhere durable.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Handler runs commands one at a time and keeps the undoable ones in a
// bounded history. Undo always targets the newest entry; overflow drops the
// oldest.
type Handler struct {
	executing atomic.Bool

	mu         sync.Mutex
	history    []Command
	maxHistory int

	logger    zerolog.Logger
	metrics   *observability.Metrics
	publisher Publisher
	now       func() time.Time
}

type Option func(*Handler)

// WithMaxHistory bounds the undo history. Values below 1 are ignored.
func WithMaxHistory(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxHistory = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

// WithClock replaces time.Now for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		maxHistory: DefaultMaxHistory,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	h.logger = h.logger.With().Str("component", "command_handler").Logger()
	return h
}

// Execute runs cmd. It returns an error only when another command is
// already running on this handler; every other failure is reported in the
// Result.
func (h *Handler) Execute(ctx context.Context, cmd Command) (Result, error) {
	if !h.executing.CompareAndSwap(false, true) {
		h.logger.Warn().Str("command", cmd.Name()).Msg("rejected: another command is executing")
		return failed(cmd.Name(), domainErrors.ErrCommandInFlight, h.now()), domainErrors.ErrCommandInFlight
	}
	defer h.executing.Store(false)

	name := cmd.Name()
	data := cmd.Data()
	start := h.now()

	h.logger.Debug().Str("command", name).Interface("data", data).Msg("executing command")

	out, err := h.run(ctx, cmd)
	elapsed := h.now().Sub(start)

	if err != nil {
		h.logger.Error().
			Err(err).
			Str("command", name).
			Dur("elapsed", elapsed).
			Msg("command failed")
		h.metrics.RecordCommand(name, "failure", elapsed)
		h.publish(ctx, Event{Type: EventExecuted, Command: name, Error: err.Error(), Data: data, Duration: elapsed})
		return failed(name, err, h.now()), nil
	}

	if cmd.CanUndo() {
		h.push(cmd)
	}

	h.logger.Info().
		Str("command", name).
		Dur("elapsed", elapsed).
		Bool("undoable", cmd.CanUndo()).
		Msg("command executed")
	h.metrics.RecordCommand(name, "success", elapsed)
	h.publish(ctx, Event{Type: EventExecuted, Command: name, Success: true, Data: data, Duration: elapsed})

	return succeeded(name, out, h.now()), nil
}

func (h *Handler) run(ctx context.Context, cmd Command) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v", cmd.Name(), r)
		}
	}()
	return cmd.Execute(ctx)
}

// Undo compensates the most recently executed undoable command. A command
// whose undo fails goes back on the history so it can be retried.
func (h *Handler) Undo(ctx context.Context) Result {
	cmd := h.pop()
	if cmd == nil {
		return failed("", domainErrors.ErrNothingToUndo, h.now())
	}
	name := cmd.Name()

	if !cmd.CanUndo() {
		err := fmt.Errorf("%s: %w", name, domainErrors.ErrNotUndoable)
		h.logger.Warn().Str("command", name).Msg("command cannot be undone")
		h.metrics.RecordUndo(name, "rejected")
		return failed(name, err, h.now())
	}

	h.logger.Debug().Str("command", name).Msg("undoing command")
	start := h.now()

	if err := h.undo(ctx, cmd); err != nil {
		h.push(cmd)
		elapsed := h.now().Sub(start)
		h.logger.Error().
			Err(err).
			Str("command", name).
			Dur("elapsed", elapsed).
			Msg("undo failed, command kept in history")
		h.metrics.RecordUndo(name, "failure")
		h.publish(ctx, Event{Type: EventUndoFailed, Command: name, Error: err.Error(), Duration: elapsed})
		return failed(name, fmt.Errorf("undo %s: %w", name, err), h.now())
	}

	elapsed := h.now().Sub(start)
	h.logger.Info().Str("command", name).Dur("elapsed", elapsed).Msg("command undone")
	h.metrics.RecordUndo(name, "success")
	h.publish(ctx, Event{Type: EventUndone, Command: name, Success: true, Duration: elapsed})
	return succeeded(name, nil, h.now())
}

func (h *Handler) undo(ctx context.Context, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("undo of %s panicked: %v", cmd.Name(), r)
		}
	}()
	return cmd.Undo(ctx)
}

// Executing reports whether a command is running.
func (h *Handler) Executing() bool {
	return h.executing.Load()
}

// HistorySize returns the number of commands that can be undone.
func (h *Handler) HistorySize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}

// History returns the names of the undoable commands, newest last.
func (h *Handler) History() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, len(h.history))
	for i, c := range h.history {
		names[i] = c.Name()
	}
	return names
}

func (h *Handler) ClearHistory() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = nil
	h.metrics.SetHistorySize(0)
}

func (h *Handler) push(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, cmd)
	if over := len(h.history) - h.maxHistory; over > 0 {
		for i := 0; i < over; i++ {
			h.history[i] = nil
		}
		h.history = h.history[over:]
	}
	h.metrics.SetHistorySize(len(h.history))
}

func (h *Handler) pop() Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.history)
	if n == 0 {
		return nil
	}
	cmd := h.history[n-1]
	h.history[n-1] = nil
	h.history = h.history[:n-1]
	h.metrics.SetHistorySize(len(h.history))
	return cmd
}

// publish never fails the command; audit delivery problems are only logged.
func (h *Handler) publish(ctx context.Context, e Event) {
	if h.publisher == nil {
		return
	}
	e.OccurredAt = h.now()
	if err := h.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		h.logger.Warn().Err(err).Str("command", e.Command).Str("event", e.Type).Msg("failed to publish audit event")
	}
}
