package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a candidate fetch failure.
type ErrorCode string

const (
	CodeTimeout      ErrorCode = "timeout"
	CodeCancelled    ErrorCode = "cancelled"
	CodeUnavailable  ErrorCode = "unavailable"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeRejected     ErrorCode = "rejected"
	CodeMalformed    ErrorCode = "malformed"
	CodeUnknown      ErrorCode = "unknown"
)

// DefaultFetchFailureMessage replaces empty or missing failure messages.
const DefaultFetchFailureMessage = "Could not load people to mention"

// FetchError is the diagnostic returned alongside an empty candidate list.
// Message is human-readable and never empty.
type FetchError struct {
	Code    ErrorCode
	Scope   string
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("%s (scope %s, %s)", e.Message, e.Scope, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Is makes every FetchError match ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// Retryable reports whether the failure is likely transient.
func (e *FetchError) Retryable() bool {
	return IsRetryable(e.Code)
}

// NewRejected builds a FetchError for a backend that answered with an
// unsuccessful result. An empty message is replaced by fallback.
func NewRejected(scope, message, fallback string) *FetchError {
	return &FetchError{
		Code:    CodeRejected,
		Scope:   scope,
		Message: messageOr(message, fallback),
	}
}

// NewMalformed builds a FetchError for a response with an unexpected shape.
func NewMalformed(scope, fallback string) *FetchError {
	return &FetchError{
		Code:    CodeMalformed,
		Scope:   scope,
		Message: messageOr("", fallback),
	}
}

// ClassifyFetchError inspects a transport error and returns a *FetchError
// with the matching code. A nil err returns nil.
func ClassifyFetchError(err error, scope, fallback string) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	out := &FetchError{Scope: scope, Cause: err, Message: messageOr(err.Error(), fallback)}

	if errors.Is(err, context.DeadlineExceeded) {
		out.Code = CodeTimeout
		return out
	}
	if errors.Is(err, context.Canceled) {
		out.Code = CodeCancelled
		return out
	}
	if errors.Is(err, ErrUnauthorized) {
		out.Code = CodeUnauthorized
		return out
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout"):
		out.Code = CodeTimeout
	case strings.Contains(lower, "unauthenticated") || strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "401") || strings.Contains(lower, "403"):
		out.Code = CodeUnauthorized
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "503"):
		out.Code = CodeUnavailable
	case strings.Contains(lower, "unmarshal") || strings.Contains(lower, "decode") || strings.Contains(lower, "malformed"):
		out.Code = CodeMalformed
	default:
		out.Code = CodeUnknown
	}
	return out
}

// CodeOf returns the ErrorCode carried by err, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeUnknown
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) != "" {
		return msg
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return DefaultFetchFailureMessage
}
