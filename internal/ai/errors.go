package ai

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Kind classifies failures raised while scoring resumes.
type Kind string

const (
	KindTransientNetwork  Kind = "TransientNetworkError"
	KindProviderRateLimit Kind = "ProviderRateLimitError"
	KindAuth              Kind = "AuthError"
	KindInput             Kind = "InputError"
	KindSchemaValidation  Kind = "SchemaValidationError"
	KindBatchJobFailed    Kind = "BatchJobFailed"
	KindMissingResult     Kind = "MissingResult"
	KindTimeout           Kind = "Timeout"
	KindRetryExhausted    Kind = "RetryExhaustedError"
	// KindContextInvalid is reported when the provider no longer knows the cached context handle.
	KindContextInvalid Kind = "ContextInvalidError"
	// KindProvider covers provider errors that are neither transient nor auth related.
	KindProvider Kind = "ProviderError"
)

// Error is a classified failure. Err keeps the underlying cause for errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	switch {
	case msg != "" && e.Err != nil:
		return msg + ": " + e.Err.Error()
	case msg != "":
		return msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf classifies err. Errors that carry no recognizable signal are reported
// as KindProvider so they are never retried blindly.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return KindTransientNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientNetwork
	}

	return KindProvider
}

// FailureFrom converts err into a failure outcome payload.
func FailureFrom(err error) *Failure {
	kind := KindOf(err)
	retriable := kind == KindTransientNetwork || kind == KindProviderRateLimit || kind == KindRetryExhausted
	return &Failure{Kind: kind, Message: err.Error(), Retriable: retriable}
}
