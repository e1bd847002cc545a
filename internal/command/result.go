package command

import "time"

// Result is the outcome of executing or undoing a command.
type Result struct {
	Success     bool      `json:"success"`
	Data        any       `json:"data,omitempty"`
	Error       string    `json:"error,omitempty"`
	CommandName string    `json:"commandName"`
	Timestamp   time.Time `json:"timestamp"`

	// Cause is the error behind a failed result, kept for callers that
	// need to classify it.
	Cause error `json:"-"`
}

func succeeded(name string, data any, at time.Time) Result {
	return Result{Success: true, Data: data, CommandName: name, Timestamp: at}
}

func failed(name string, err error, at time.Time) Result {
	return Result{Error: err.Error(), CommandName: name, Timestamp: at, Cause: err}
}
