package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step is one unit of work with an optional compensating action.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Outcome describes what a run did.
type Outcome struct {
	Completed   []string
	Compensated []string
	// Failed is the name of the step that failed, empty on success.
	Failed string
}

// Succeeded reports whether every step completed.
func (o Outcome) Succeeded() bool {
	return o.Failed == ""
}

// StepError is returned when a step fails. CompensationErr joins any errors
// raised while rolling back earlier steps.
type StepError struct {
	Saga            string
	Step            string
	Err             error
	CompensationErr error
}

func (e *StepError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("saga %s: step %q failed (%v), compensation also failed: %v", e.Saga, e.Step, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("saga %s: step %q failed: %v", e.Saga, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Saga runs steps in order and rolls back completed ones when a step fails.
type Saga struct {
	name  string
	steps []Step
}

func New(name string) *Saga {
	return &Saga{name: name}
}

func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Run executes every step sequentially. On failure the completed steps are
// compensated in reverse order and a *StepError is returned.
func (s *Saga) Run(ctx context.Context) (Outcome, error) {
	var out Outcome
	done := make([]Step, 0, len(s.steps))

	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, out, done, step.Name, err)
		}
		if err := step.Execute(ctx); err != nil {
			return s.fail(ctx, out, done, step.Name, err)
		}
		done = append(done, step)
		out.Completed = append(out.Completed, step.Name)
	}

	return out, nil
}

func (s *Saga) fail(ctx context.Context, out Outcome, done []Step, failed string, cause error) (Outcome, error) {
	out.Failed = failed

	// Compensation runs even if ctx is already cancelled.
	compCtx := context.WithoutCancel(ctx)

	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(compCtx); err != nil {
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
			continue
		}
		out.Compensated = append(out.Compensated, step.Name)
	}

	return out, &StepError{
		Saga:            s.name,
		Step:            failed,
		Err:             cause,
		CompensationErr: errors.Join(errs...),
	}
}
