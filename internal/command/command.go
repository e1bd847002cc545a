// Package command wraps booking, payment and transaction mutations in
// commands that can be compensated after the fact.
package command

import (
	"context"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
)

// Command is one business operation plus the action that compensates it.
// Undo issues a new forward operation (a refund, a status write-back); it
// never rolls state back in place.
type Command interface {
	Name() string
	// Data describes the intent. It is captured before Execute runs.
	Data() any
	Execute(ctx context.Context) (any, error)
	Undo(ctx context.Context) error
	CanUndo() bool
}

// Base carries a command's name and typed input. Commands embedding it are
// undoable unless they say otherwise.
type Base[D any] struct {
	name  string
	input D
}

func NewBase[D any](name string, input D) Base[D] {
	return Base[D]{name: name, input: input}
}

func (b Base[D]) Name() string { return b.name }

func (b Base[D]) Data() any { return b.input }

// Input returns the typed data the command was built with.
func (b Base[D]) Input() D { return b.input }

func (Base[D]) CanUndo() bool { return true }

// NoUndo is a Base for commands with no compensating action.
type NoUndo[D any] struct {
	Base[D]
}

func NewNoUndo[D any](name string, input D) NoUndo[D] {
	return NoUndo[D]{Base: NewBase(name, input)}
}

func (NoUndo[D]) CanUndo() bool { return false }

func (NoUndo[D]) Undo(context.Context) error { return domainErrors.ErrNotUndoable }
