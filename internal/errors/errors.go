// Package errors defines the error taxonomy shared by the portal client packages.
//
// Sentinel errors are compared with errors.Is, typed errors carry the detail
// needed to diagnose a failed attempt (which step, which status, which field)
// and are reached with errors.As.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Session identity errors
	ErrMissingCredentials    = errors.New("missing credentials")
	ErrMissingLocationHeader = errors.New("missing Location header")
	ErrAcIDPatternNotFound   = errors.New("ac_id not found in Location header")

	// Attempt errors
	ErrAttemptUsed = errors.New("attempt already used")

	// Transport errors
	ErrInterfaceNotFound  = errors.New("network interface not found")
	ErrInterfaceNoAddress = errors.New("network interface has no usable address")

	// Codec errors
	ErrLengthOutOfRange = errors.New("encoded length out of range")

	// History errors
	ErrHistoryDisabled = errors.New("history store is not configured")
)

// TransportError reports a request that never produced an HTTP response
// (connection refused, DNS failure, timeout).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnexpectedStatusError reports an HTTP status other than the one the step requires.
type UnexpectedStatusError struct {
	Expected int
	Actual   int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status: expected %d, got %d", e.Expected, e.Actual)
}

// EnvelopeFormatError reports a body that is not wrapped as callback(json).
type EnvelopeFormatError struct {
	Body string
}

func (e *EnvelopeFormatError) Error() string {
	const max = 64
	body := e.Body
	if len(body) > max {
		body = body[:max] + "..."
	}
	return fmt.Sprintf("invalid jsonp envelope: %q", body)
}

// DecodeError reports a mandatory field that is missing or has the wrong JSON type,
// or an optional field whose JSON type cannot be interpreted.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("decode field %q", e.Field)
	}
	return fmt.Sprintf("decode field %q: %s", e.Field, e.Reason)
}

// RejectedError reports a portal response whose error field is not "ok"
// at a step that cannot continue without a successful answer.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("portal rejected request: %s", e.Code)
	}
	return fmt.Sprintf("portal rejected request: %s (%s)", e.Code, e.Message)
}

// StepError ties a failure to the orchestration step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
