package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hellodd/orderflow/pkg/logger"
	"github.com/hellodd/orderflow/pkg/tracing"
)

// Recorder receives every terminal report, e.g. to publish it.
type Recorder interface {
	Record(ctx context.Context, report *Report) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, report *Report) error

func (f RecorderFunc) Record(ctx context.Context, report *Report) error {
	return f(ctx, report)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder sets where terminal reports are sent.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithIDGenerator replaces the UUID saga id generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		c.newID = fn
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithCompensationTimeout bounds each compensating action. Zero disables
// the bound.
func WithCompensationTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.compensationTimeout = d
	}
}

// WithRecordTimeout bounds the Recorder call made when a run finishes.
// Zero disables the bound.
func WithRecordTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.recordTimeout = d
	}
}

// DefaultRecordTimeout is the Recorder bound used unless WithRecordTimeout
// overrides it.
const DefaultRecordTimeout = 5 * time.Second

// Coordinator executes sagas. It holds no per-run state, so one instance
// can serve concurrent runs.
type Coordinator struct {
	logger              *slog.Logger
	recorder            Recorder
	newID               func() string
	now                 func() time.Time
	compensationTimeout time.Duration
	recordTimeout       time.Duration
	tracer              trace.Tracer
}

// NewCoordinator creates a coordinator.
func NewCoordinator(log *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:        log,
		newID:         func() string { return uuid.New().String() },
		now:           time.Now,
		recordTimeout: DefaultRecordTimeout,
		tracer:        tracing.Tracer("saga"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes steps in order. The first forward failure stops execution
// and every completed step is compensated in reverse order, each with its
// own forward result. Compensation failures are recorded in the report and
// do not stop the remaining compensations.
//
// Run always returns a report in a terminal status.
func (c *Coordinator) Run(ctx context.Context, name string, steps []Step) *Report {
	report := &Report{
		SagaID:    c.newID(),
		Name:      name,
		Status:    StatusRunning,
		StartedAt: c.now(),
	}

	ctx, span := c.tracer.Start(ctx, "saga."+name, trace.WithAttributes(
		attribute.String("saga.id", report.SagaID),
		attribute.Int("saga.steps", len(steps)),
	))
	defer span.End()

	ctx = logger.WithSagaID(ctx, report.SagaID)
	log := logger.WithContext(ctx, c.logger).With(slog.String("saga", name))

	if err := validate(steps); err != nil {
		report.Err = err
		return c.finish(ctx, span, log, report, StatusFailed)
	}

	sagasInFlight.WithLabelValues(name, string(StatusRunning)).Inc()
	log.DebugContext(ctx, "saga started", slog.Int("steps", len(steps)))

	for _, step := range steps {
		report.Attempted = append(report.Attempted, step.Name)

		result, err := c.forward(ctx, name, step)
		if err != nil {
			report.Err = &StepError{Step: step.Name, Err: err}
			report.FailedStep = step.Name
			log.WarnContext(ctx, "saga step failed",
				slog.String("step", step.Name),
				slog.String("error", err.Error()),
			)
			break
		}
		report.Completed = append(report.Completed, CompletedStep{Name: step.Name, Result: result})
	}
	sagasInFlight.WithLabelValues(name, string(StatusRunning)).Dec()

	if report.Err == nil {
		return c.finish(ctx, span, log, report, StatusCompleted)
	}

	report.Status = StatusCompensating
	sagasInFlight.WithLabelValues(name, string(StatusCompensating)).Inc()
	c.compensate(ctx, log, name, steps, report)
	sagasInFlight.WithLabelValues(name, string(StatusCompensating)).Dec()

	if len(report.FailedCompensations()) > 0 {
		return c.finish(ctx, span, log, report, StatusCompensationFailed)
	}
	return c.finish(ctx, span, log, report, StatusFailed)
}

func (c *Coordinator) forward(ctx context.Context, sagaName string, step Step) (result any, err error) {
	ctx, span := c.tracer.Start(ctx, "saga.step."+step.Name)
	start := c.now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		stepDuration.WithLabelValues(sagaName, step.Name, outcome).Observe(c.now().Sub(start).Seconds())
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return protect(func() (any, error) { return step.Forward(ctx) })
}

// compensate walks completed steps backwards. Compensations run on a
// context detached from the caller's cancellation so that a client
// disconnect cannot abort a rollback halfway.
func (c *Coordinator) compensate(ctx context.Context, log *slog.Logger, sagaName string, steps []Step, report *Report) {
	byName := make(map[string]Step, len(steps))
	for _, s := range steps {
		byName[s.Name] = s
	}

	base := context.WithoutCancel(ctx)
	for i := len(report.Completed) - 1; i >= 0; i-- {
		done := report.Completed[i]
		step := byName[done.Name]

		start := c.now()
		err := c.runCompensation(base, step, done.Result)
		res := CompensationResult{Step: done.Name, Err: err, Duration: c.now().Sub(start)}
		report.Compensations = append(report.Compensations, res)

		if err != nil {
			compensationFailures.WithLabelValues(sagaName, done.Name).Inc()
			log.ErrorContext(ctx, "saga compensation failed",
				slog.String("step", done.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		log.DebugContext(ctx, "saga step compensated", slog.String("step", done.Name))
	}
}

func (c *Coordinator) runCompensation(ctx context.Context, step Step, result any) error {
	if step.Compensate == nil {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "saga.compensate."+step.Name)
	defer span.End()

	if c.compensationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.compensationTimeout)
		defer cancel()
	}

	_, err := protect(func() (any, error) { return nil, step.Compensate(ctx, result) })
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Coordinator) finish(ctx context.Context, span trace.Span, log *slog.Logger, report *Report, status Status) *Report {
	report.Status = status
	report.FinishedAt = c.now()
	sagaRuns.WithLabelValues(report.Name, string(status)).Inc()

	span.SetAttributes(attribute.String("saga.status", string(status)))
	if status != StatusCompleted {
		span.SetStatus(codes.Error, string(status))
	}

	attrs := []any{
		slog.String("status", string(status)),
		slog.Int("completed", len(report.Completed)),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	}
	switch status {
	case StatusCompleted:
		log.InfoContext(ctx, "saga completed", attrs...)
	case StatusCompensationFailed:
		attrs = append(attrs, slog.Any("failed_compensations", report.FailedCompensations()))
		log.ErrorContext(ctx, "saga rollback incomplete, manual follow-up required", attrs...)
	default:
		if report.Err != nil {
			attrs = append(attrs, slog.String("error", report.Err.Error()))
		}
		log.WarnContext(ctx, "saga rolled back", attrs...)
	}

	if c.recorder != nil {
		c.record(ctx, log, report)
	}
	return report
}

// record hands the report to the recorder. The caller's cancellation does
// not apply, but recordTimeout does, so a stuck sink cannot hold the run.
func (c *Coordinator) record(ctx context.Context, log *slog.Logger, report *Report) {
	recCtx := context.WithoutCancel(ctx)
	if c.recordTimeout > 0 {
		var cancel context.CancelFunc
		recCtx, cancel = context.WithTimeout(recCtx, c.recordTimeout)
		defer cancel()
	}
	if err := c.recorder.Record(recCtx, report); err != nil {
		log.WarnContext(ctx, "failed to record saga report", slog.String("error", err.Error()))
	}
}

// protect converts a panic into an error.
func protect(fn func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
