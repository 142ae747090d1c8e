package domain

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ErrEmptyServerPool is returned when no Overpass endpoints are configured.
var ErrEmptyServerPool = errors.New("no overpass servers configured: set OSM_SERVERS to a comma-separated list of interpreter urls, e.g. https://lz4.overpass-api.de/api/interpreter")

// ErrInvalidRequest marks requests that can never succeed as given.
var ErrInvalidRequest = errors.New("invalid request")

// NetworkFailure is a single failed attempt against one endpoint.
type NetworkFailure struct {
	Endpoint Endpoint
	Attempt  int
	Cause    error
}

func (e *NetworkFailure) Error() string {
	return fmt.Sprintf("attempt %d on %s: %v", e.Attempt+1, e.Endpoint, e.Cause)
}

func (e *NetworkFailure) Unwrap() error { return e.Cause }

// ExhaustedAttemptsError is returned when every attempt of a query failed.
// Failures are kept in attempt order.
type ExhaustedAttemptsError struct {
	Operation string
	Failures  []*NetworkFailure
}

func (e *ExhaustedAttemptsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: all %d attempts failed", e.Operation, len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *ExhaustedAttemptsError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Err combines the underlying causes into a single error.
func (e *ExhaustedAttemptsError) Err() error {
	var err error
	for _, f := range e.Failures {
		err = multierr.Append(err, f.Cause)
	}
	return err
}

// MalformedChainError is returned when the ways do not form one continuous
// chain between the two boundary nodes.
type MalformedChainError struct {
	Ways   []Feature
	Nodes  []Feature
	Reason string
}

func (e *MalformedChainError) Error() string {
	return fmt.Sprintf("malformed way chain (%d ways, nodes %s): %s",
		len(e.Ways), featureIDs(e.Nodes), e.Reason)
}

// AmbiguousIntersectionError is returned when a query did not yield exactly
// two intersection nodes and at least one way.
type AmbiguousIntersectionError struct {
	Reason   string
	Attempts []ScopeAttempt
}

func (e *AmbiguousIntersectionError) Error() string {
	if len(e.Attempts) == 0 {
		return "ambiguous intersection: " + e.Reason
	}
	names := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		names[i] = fmt.Sprintf("%s(nodes=%d ways=%d)", a.Scope.Name, a.Nodes, a.Ways)
	}
	return fmt.Sprintf("ambiguous intersection: %s; tried %s", e.Reason, strings.Join(names, ", "))
}

func featureIDs(fs []Feature) string {
	ids := make([]string, len(fs))
	for i, f := range fs {
		ids[i] = f.ID
	}
	return "[" + strings.Join(ids, " ") + "]"
}
