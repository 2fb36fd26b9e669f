// Package errkind classifies adapter errors into the propagation kinds the
// orchestrator and queue runtime act on.
package errkind

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is a closed set of error propagation categories.
type Kind string

const (
	// Transient errors are worth retrying: timeouts, connection resets,
	// 5xx responses.
	Transient Kind = "transient"
	// Permanent errors will never succeed on retry: malformed input,
	// unsupported file type, schema violation after guard exhaustion.
	Permanent Kind = "permanent"
	// NotAvailable means a dependency is known to be unusable (model not
	// loaded, feature disabled) and the caller should degrade, not retry.
	NotAvailable Kind = "not_available"
	// Cancelled means the caller's context was cancelled or its deadline
	// exceeded.
	Cancelled Kind = "cancelled"
)

// KindError pairs an error with its classified Kind.
type KindError struct {
	Kind    Kind
	Wrapped error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Wrapped)
}

func (e *KindError) Unwrap() error { return e.Wrapped }

// New wraps err with an explicit Kind.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Wrapped: err}
}

// Of extracts the Kind from err, defaulting to Transient when err carries
// no explicit classification — an adapter that forgets to classify an
// error should fail safe toward "retry it" rather than "give up".
func Of(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	return Transient
}

// ClassifyHTTP maps an HTTP status code to a Kind for adapters built on
// net/http.
func ClassifyHTTP(status int) Kind {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return Transient
	case status >= 400:
		return Permanent
	default:
		return Transient
	}
}

// ClassifyGRPC maps a gRPC status code to a Kind for adapters built on
// gRPC model-server clients.
func ClassifyGRPC(err error) Kind {
	if err == nil {
		return ""
	}
	st, ok := status.FromError(err)
	if !ok {
		return Transient
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.OutOfRange:
		return Permanent
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return Transient
	case codes.Unimplemented:
		return NotAvailable
	case codes.Canceled:
		return Cancelled
	default:
		return Transient
	}
}
