package faults

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an analysis failure so callers can branch on it
// without string matching.
type Kind string

const (
	// KindNotFound means the photo or its upstream image is absent or not owned.
	KindNotFound Kind = "not_found"
	// KindAccessExpired means upstream authorization or the image URL is no longer valid.
	KindAccessExpired Kind = "access_expired"
	// KindInvalidContent means a non-image payload or an undecodable image.
	KindInvalidContent Kind = "invalid_content"
	// KindTimeout means a collaborator call exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindNetworkUnavailable means a collaborator could not be reached at all.
	KindNetworkUnavailable Kind = "network_unavailable"
	// KindUpstream means a collaborator answered with a failure not covered above.
	KindUpstream Kind = "upstream_error"
	// KindScoring means an unexpected failure inside face detection or scoring math.
	KindScoring Kind = "internal_scoring_error"
)

// Error is a classified failure raised by the analysis pipeline.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a classified error. A nil cause is allowed for failures that
// originate here rather than in a collaborator.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a formatted message.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the classification of err, or an empty Kind when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTransient reports whether err looks like a temporary infrastructure
// failure worth retrying, such as a network timeout or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
