package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

const tracerName = "github.com/samirrijal/streetblock/internal/core/query"

// QueryFunc runs one query against one endpoint. It must not start any work
// before it is called and must return exactly one outcome per call.
type QueryFunc func(ctx context.Context, endpoint domain.Endpoint) (domain.FeatureCollection, error)

// Attempt describes a single try of a query.
type Attempt struct {
	Operation string
	Endpoint  domain.Endpoint
	Index     int // zero based
	Of        int
	Duration  time.Duration // set once the attempt has finished
}

// Hooks observe executor progress. Any field may be nil.
type Hooks struct {
	OnAttempt func(Attempt)
	OnSuccess func(Attempt)
	OnFailure func(Attempt, *domain.NetworkFailure)
}

// Executor runs a query against successive endpoints until one succeeds.
type Executor struct {
	selector *EndpointSelector
	logger   *slog.Logger
	tracer   trace.Tracer
	hooks    Hooks
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger used for attempt and failure records.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithHooks installs progress observers.
func WithHooks(h Hooks) ExecutorOption {
	return func(e *Executor) {
		e.hooks = h
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t
	}
}

// NewExecutor creates an executor drawing endpoints from selector.
func NewExecutor(selector *EndpointSelector, opts ...ExecutorOption) *Executor {
	e := &Executor{
		selector: selector,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Endpoints returns the configured pool.
func (e *Executor) Endpoints() []domain.Endpoint {
	return e.selector.Endpoints()
}

// control is the verdict of folding one attempt into the outcome.
type control int

const (
	continueAttempts control = iota
	stopAttempts
)

type outcome struct {
	collection domain.FeatureCollection
	succeeded  bool
	failures   []*domain.NetworkFailure
}

func (o *outcome) accumulate(fc domain.FeatureCollection, failure *domain.NetworkFailure) control {
	if failure != nil {
		o.failures = append(o.failures, failure)
		return continueAttempts
	}
	o.collection = fc
	o.succeeded = true
	return stopAttempts
}

// Execute calls fn with the next endpoint up to attempts times and returns
// the first successful result. Later endpoints are never tried once one
// succeeds. attempts <= 0 means one attempt per configured endpoint.
// When every attempt fails the error is a *domain.ExhaustedAttemptsError
// holding the failures in attempt order. If ctx ends first, the error wraps
// ctx.Err() instead, even when it ended during the last attempt.
func (e *Executor) Execute(ctx context.Context, operation string, fn QueryFunc, attempts int) (domain.FeatureCollection, error) {
	if attempts <= 0 {
		attempts = e.selector.Len()
	}

	var out outcome
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return domain.FeatureCollection{}, stopped(operation, len(out.failures), err)
		}
		fc, failure := e.attempt(ctx, operation, fn, i, attempts)
		if out.accumulate(fc, failure) == stopAttempts {
			break
		}
		// A failure caused by our own deadline is not an upstream failure.
		if err := ctx.Err(); err != nil {
			return domain.FeatureCollection{}, stopped(operation, len(out.failures), err)
		}
	}

	if out.succeeded {
		return out.collection, nil
	}
	exhausted := &domain.ExhaustedAttemptsError{Operation: operation, Failures: out.failures}
	e.logger.ErrorContext(ctx, "overpass attempts exhausted",
		"operation", operation,
		"attempts", len(out.failures),
		"causes", exhausted.Err().Error(),
	)
	return domain.FeatureCollection{}, exhausted
}

func stopped(operation string, failed int, err error) error {
	return fmt.Errorf("%s: stopped after %d failed attempts: %w", operation, failed, err)
}

func (e *Executor) attempt(ctx context.Context, operation string, fn QueryFunc, index, of int) (domain.FeatureCollection, *domain.NetworkFailure) {
	endpoint := e.selector.Next()
	a := Attempt{Operation: operation, Endpoint: endpoint, Index: index, Of: of}

	e.logger.InfoContext(ctx, "starting overpass query",
		"operation", operation,
		"attempt", index+1,
		"of", of,
		"endpoint", endpoint.String(),
	)
	if e.hooks.OnAttempt != nil {
		e.hooks.OnAttempt(a)
	}

	ctx, span := e.tracer.Start(ctx, "overpass.attempt", trace.WithAttributes(
		attribute.String("overpass.operation", operation),
		attribute.String("overpass.endpoint", endpoint.String()),
		attribute.Int("overpass.attempt", index+1),
	))
	defer span.End()

	start := time.Now()
	fc, err := fn(ctx, endpoint)
	a.Duration = time.Since(start)

	if err != nil {
		failure := &domain.NetworkFailure{Endpoint: endpoint, Attempt: index, Cause: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.WarnContext(ctx, "overpass query failed",
			"operation", operation,
			"attempt", index+1,
			"endpoint", endpoint.String(),
			"latency", a.Duration.String(),
			"error", err,
		)
		if e.hooks.OnFailure != nil {
			e.hooks.OnFailure(a, failure)
		}
		return domain.FeatureCollection{}, failure
	}

	span.SetAttributes(attribute.Int("overpass.features", fc.Len()))
	if e.hooks.OnSuccess != nil {
		e.hooks.OnSuccess(a)
	}
	return fc, nil
}
