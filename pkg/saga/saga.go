// Package saga runs an ordered list of steps and, when one fails, undoes the
// steps that already completed by running their compensations in reverse.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
)

// Status is the lifecycle position of a saga execution.
type Status string

const (
	StatusRunning            Status = "running"
	StatusCompleted          Status = "completed"
	StatusCompensating       Status = "compensating"
	StatusFailed             Status = "failed"
	StatusCompensationFailed Status = "compensation_failed"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCompensationFailed
}

var (
	ErrNoSteps     = errors.New("saga has no steps")
	ErrInvalidStep = errors.New("invalid saga step")
)

// Step is one unit of a saga. Forward performs the action; Compensate
// receives Forward's result and undoes it. A nil Compensate means the step
// has nothing to undo.
type Step struct {
	Name       string
	Forward    func(ctx context.Context) (any, error)
	Compensate func(ctx context.Context, result any) error
}

// NewStep builds a Step from typed functions so callers do not deal with
// type assertions on the forward result. compensate may be nil.
func NewStep[T any](name string, forward func(ctx context.Context) (T, error), compensate func(ctx context.Context, result T) error) Step {
	step := Step{
		Name: name,
		Forward: func(ctx context.Context) (any, error) {
			return forward(ctx)
		},
	}
	if compensate != nil {
		step.Compensate = func(ctx context.Context, result any) error {
			typed, ok := result.(T)
			if !ok {
				return fmt.Errorf("step %s: unexpected result type %T", name, result)
			}
			return compensate(ctx, typed)
		}
	}
	return step
}

// StepError wraps the forward failure that stopped a saga.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CompensationError is the failure of a single compensating action.
type CompensationError struct {
	Step string
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensate %s: %v", e.Step, e.Err)
}

func (e *CompensationError) Unwrap() []error {
	return []error{apperrors.ErrCompensation, e.Err}
}

// CompletedStep is a step whose forward action succeeded.
type CompletedStep struct {
	Name   string
	Result any
}

// CompensationResult is the outcome of one compensating action.
type CompensationResult struct {
	Step     string
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the compensation finished without error.
func (c CompensationResult) Succeeded() bool {
	return c.Err == nil
}

// Report is the terminal outcome of a saga run.
type Report struct {
	SagaID string
	Name   string
	Status Status

	// Err is the forward failure that triggered rollback, or nil when the
	// saga completed. It is a *StepError unless validation failed.
	Err error

	FailedStep string

	// Attempted lists every step whose forward action was started, in order.
	Attempted []string

	Completed     []CompletedStep
	Compensations []CompensationResult

	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether every step completed.
func (r *Report) Succeeded() bool {
	return r.Status == StatusCompleted
}

// Result returns the forward result recorded for a completed step.
func (r *Report) Result(step string) (any, bool) {
	for _, c := range r.Completed {
		if c.Name == step {
			return c.Result, true
		}
	}
	return nil, false
}

// FailedCompensations returns the names of steps whose compensation failed.
func (r *Report) FailedCompensations() []string {
	var names []string
	for _, c := range r.Compensations {
		if !c.Succeeded() {
			names = append(names, c.Step)
		}
	}
	return names
}

// CompensationErr joins every compensation failure, or returns nil.
func (r *Report) CompensationErr() error {
	var errs []error
	for _, c := range r.Compensations {
		if c.Err != nil {
			errs = append(errs, &CompensationError{Step: c.Step, Err: c.Err})
		}
	}
	return errors.Join(errs...)
}

// ResultOf returns the typed forward result of a completed step.
func ResultOf[T any](r *Report, step string) (T, bool) {
	var zero T
	v, ok := r.Result(step)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

type reportJSON struct {
	SagaID        string             `json:"saga_id"`
	Name          string             `json:"name"`
	Status        Status             `json:"status"`
	Error         string             `json:"error,omitempty"`
	ErrorKind     apperrors.Kind     `json:"error_kind,omitempty"`
	FailedStep    string             `json:"failed_step,omitempty"`
	Attempted     []string           `json:"attempted_steps"`
	Completed     []string           `json:"completed_steps"`
	Compensations []compensationJSON `json:"compensations,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
}

type compensationJSON struct {
	Step       string `json:"step"`
	Succeeded  bool   `json:"succeeded"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// MarshalJSON renders the report without forward results, which may hold
// values that do not serialize.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		SagaID:     r.SagaID,
		Name:       r.Name,
		Status:     r.Status,
		FailedStep: r.FailedStep,
		Attempted:  r.Attempted,
		Completed:  make([]string, len(r.Completed)),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if out.Attempted == nil {
		out.Attempted = []string{}
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
		out.ErrorKind = apperrors.KindOf(r.Err)
	}
	for i, c := range r.Completed {
		out.Completed[i] = c.Name
	}
	for _, c := range r.Compensations {
		cj := compensationJSON{
			Step:       c.Step,
			Succeeded:  c.Succeeded(),
			DurationMS: c.Duration.Milliseconds(),
		}
		if c.Err != nil {
			cj.Error = c.Err.Error()
		}
		out.Compensations = append(out.Compensations, cj)
	}
	return json.Marshal(out)
}

func validate(steps []Step) error {
	if len(steps) == 0 {
		return ErrNoSteps
	}
	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			return fmt.Errorf("%w: step %d has no name", ErrInvalidStep, i)
		}
		if s.Forward == nil {
			return fmt.Errorf("%w: step %s has no forward action", ErrInvalidStep, s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: duplicate step name %s", ErrInvalidStep, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
