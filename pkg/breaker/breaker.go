// Package breaker implements a consecutive-failure circuit breaker that
// admits a single trial request while recovering.
//
// A breaker starts Closed. FailureThreshold consecutive failures open it.
// Once RecoveryTimeout has passed since the last failure, the next request
// moves it to HalfOpen and runs as the only trial in flight. Each
// successful trial counts toward HalfOpenSuccessesRequired; reaching it
// closes the breaker, while any trial failure opens it again.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the position of a breaker in its state machine.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the thresholds for a single breaker.
type Config struct {
	// Name identifies the guarded dependency in logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that opens a
	// closed breaker. Must be positive.
	FailureThreshold int

	// RecoveryTimeout is how long an open breaker rejects calls, measured
	// from the most recent failure. Zero means the next call is a trial.
	RecoveryTimeout time.Duration

	// HalfOpenSuccessesRequired is the number of consecutive successful
	// trials needed to close the breaker. Must be positive.
	HalfOpenSuccessesRequired int
}

// DefaultConfig returns the settings used when a service does not override them.
func DefaultConfig(name string) Config {
	return Config{
		Name:                      name,
		FailureThreshold:          5,
		RecoveryTimeout:           30 * time.Second,
		HalfOpenSuccessesRequired: 2,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.FailureThreshold <= 0 {
		errs = append(errs, fmt.Errorf("failure threshold must be positive, got %d", c.FailureThreshold))
	}
	if c.RecoveryTimeout < 0 {
		errs = append(errs, fmt.Errorf("recovery timeout must not be negative, got %s", c.RecoveryTimeout))
	}
	if c.HalfOpenSuccessesRequired <= 0 {
		errs = append(errs, fmt.Errorf("half-open successes required must be positive, got %d", c.HalfOpenSuccessesRequired))
	}
	if len(errs) > 0 {
		return fmt.Errorf("breaker config: %w", errors.Join(errs...))
	}
	return nil
}

// Counts is a copy of the breaker's counters.
type Counts struct {
	ConsecutiveFailures          int    `json:"consecutive_failures"`
	ConsecutiveHalfOpenSuccesses int    `json:"consecutive_half_open_successes"`
	TotalSuccesses               uint64 `json:"total_successes"`
	TotalFailures                uint64 `json:"total_failures"`
	TotalRejections              uint64 `json:"total_rejections"`
	TotalIgnored                 uint64 `json:"total_ignored"`
}

// Outcome is how a finished call is recorded.
type Outcome int

const (
	// OutcomeSuccess closes the gap toward recovery: it resets the failure
	// streak when closed and counts toward closing when half-open.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure counts toward opening the breaker.
	OutcomeFailure
	// OutcomeIgnored says nothing about the dependency's health. The call
	// leaves every counter alone and frees the half-open trial slot.
	OutcomeIgnored
)

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	Counts          Counts    `json:"counts"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	RetryAfter      string    `json:"retry_after,omitempty"`
	TrialInFlight   bool      `json:"trial_in_flight"`
}

// StateChangeFunc is called after every transition, outside the breaker lock.
type StateChangeFunc func(name string, from, to State)

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// WithFailureClassifier decides which errors count as failures. Errors the
// classifier rejects are still returned to the caller but are ignored: they
// neither reset the failure streak nor count as a half-open success. A nil
// error is always a success.
func WithFailureClassifier(isFailure func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		cb.classify = func(err error) Outcome {
			switch {
			case err == nil:
				return OutcomeSuccess
			case isFailure(err):
				return OutcomeFailure
			default:
				return OutcomeIgnored
			}
		}
	}
}

// WithOutcomeClassifier maps every call result, including a nil error, to
// an Outcome. Use it when some errors are genuine answers from the
// dependency and should count as successes.
func WithOutcomeClassifier(classify func(error) Outcome) Option {
	return func(cb *CircuitBreaker) {
		cb.classify = classify
	}
}

// WithStateChangeHook registers an extra callback for transitions.
func WithStateChangeHook(fn StateChangeFunc) Option {
	return func(cb *CircuitBreaker) {
		cb.hooks = append(cb.hooks, fn)
	}
}

// DefaultIsFailure counts every error except caller cancellation. A missed
// deadline is a failure.
func DefaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// DefaultClassify is the classifier breakers use unless configured
// otherwise. A canceled call never got an answer and is ignored.
func DefaultClassify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case DefaultIsFailure(err):
		return OutcomeFailure
	default:
		return OutcomeIgnored
	}
}

// CircuitBreaker guards calls to one downstream dependency. It is safe for
// concurrent use and is meant to be shared by every caller of that
// dependency for the life of the process.
type CircuitBreaker struct {
	name      string
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
	classify  func(error) Outcome
	hooks     []StateChangeFunc

	mu          sync.Mutex
	state       State
	generation  uint64
	trial       bool
	counts      Counts
	lastFailure time.Time
}

// New builds a closed breaker.
func New(cfg Config, opts ...Option) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cb := &CircuitBreaker{
		name:      cfg.Name,
		cfg:       cfg,
		now:       time.Now,
		logger:    slog.Default(),
		classify:  DefaultClassify,
	}
	for _, opt := range opts {
		opt(cb)
	}

	breakerState.WithLabelValues(cb.name).Set(stateValue(StateClosed))
	return cb, nil
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Config returns the thresholds the breaker was built with.
func (cb *CircuitBreaker) Config() Config {
	return cb.cfg
}

// State returns the current state. An open breaker whose recovery timeout
// has elapsed still reports Open until a call claims the trial.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a copy of the counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Snapshot returns the state, counters and retry hint together.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Snapshot{
		Name:            cb.name,
		State:           cb.state,
		Counts:          cb.counts,
		LastFailureTime: cb.lastFailure,
		TrialInFlight:   cb.trial,
	}
	if cb.state == StateOpen {
		s.RetryAfter = cb.retryAfterLocked(cb.now()).String()
	}
	return s
}

// Reset forces the breaker closed and clears its counters. Results of calls
// admitted before the reset are discarded.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.setStateLocked(StateClosed)
	cb.counts = Counts{}
	cb.lastFailure = time.Time{}
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}

// Do runs op through the breaker. See Execute for the generic form.
func (cb *CircuitBreaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Execute runs op if the breaker admits it and records the outcome.
//
// When the call is rejected op is not invoked and the returned error is an
// *OpenError matching ErrOpen. Otherwise op's own result and error are
// returned unchanged. A panic inside op is recorded as a failure and then
// re-raised.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	generation, err := cb.beforeCall()
	if err != nil {
		return zero, err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterCall(generation, OutcomeFailure)
			panic(r)
		}
	}()

	result, err := op(ctx)
	cb.afterCall(generation, cb.classify(err))
	return result, err
}

// beforeCall admits or rejects a call and returns the generation the
// outcome must be recorded against.
func (cb *CircuitBreaker) beforeCall() (uint64, error) {
	cb.mu.Lock()

	now := cb.now()
	from := cb.state

	switch cb.state {
	case StateClosed:
		gen := cb.generation
		cb.mu.Unlock()
		return gen, nil

	case StateOpen:
		if wait := cb.retryAfterLocked(now); wait > 0 {
			err := cb.rejectLocked(wait)
			cb.mu.Unlock()
			return 0, err
		}
		cb.setStateLocked(StateHalfOpen)
		cb.trial = true
		gen := cb.generation
		cb.mu.Unlock()
		cb.notify(from, StateHalfOpen)
		return gen, nil

	default: // half-open
		if cb.trial {
			err := cb.rejectLocked(0)
			cb.mu.Unlock()
			return 0, err
		}
		cb.trial = true
		gen := cb.generation
		cb.mu.Unlock()
		return gen, nil
	}
}

// afterCall records an outcome. Outcomes from an older generation are
// dropped because the state they were admitted under no longer exists.
func (cb *CircuitBreaker) afterCall(generation uint64, outcome Outcome) {
	cb.mu.Lock()

	if generation != cb.generation {
		cb.mu.Unlock()
		return
	}

	from := cb.state
	switch outcome {
	case OutcomeSuccess:
		cb.onSuccessLocked()
	case OutcomeFailure:
		cb.onFailureLocked()
	default:
		cb.onIgnoredLocked()
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	cb.counts.TotalSuccesses++

	switch cb.state {
	case StateClosed:
		cb.counts.ConsecutiveFailures = 0
	case StateHalfOpen:
		cb.trial = false
		cb.counts.ConsecutiveHalfOpenSuccesses++
		if cb.counts.ConsecutiveHalfOpenSuccesses >= cb.cfg.HalfOpenSuccessesRequired {
			cb.setStateLocked(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onIgnoredLocked() {
	cb.counts.TotalIgnored++
	if cb.state == StateHalfOpen {
		cb.trial = false
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.cfg.FailureThreshold {
			cb.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.setStateLocked(StateOpen)
	}
}

// setStateLocked moves to a new state, starting a new generation and
// resetting the counters that belong to the old one.
func (cb *CircuitBreaker) setStateLocked(to State) {
	cb.generation++
	cb.trial = false
	cb.counts.ConsecutiveHalfOpenSuccesses = 0
	if to == StateClosed {
		cb.counts.ConsecutiveFailures = 0
	}
	cb.state = to
}

func (cb *CircuitBreaker) retryAfterLocked(now time.Time) time.Duration {
	wait := cb.lastFailure.Add(cb.cfg.RecoveryTimeout).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func (cb *CircuitBreaker) rejectLocked(wait time.Duration) error {
	cb.counts.TotalRejections++
	breakerRejections.WithLabelValues(cb.name, cb.state.String()).Inc()
	return &OpenError{Name: cb.name, State: cb.state, RetryAfter: wait}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}

	breakerState.WithLabelValues(cb.name).Set(stateValue(to))
	breakerTransitions.WithLabelValues(cb.name, from.String(), to.String()).Inc()

	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	cb.logger.Log(context.Background(), level, "circuit breaker state change",
		slog.String("breaker", cb.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)

	for _, hook := range cb.hooks {
		hook(cb.name, from, to)
	}
}
