package openrouter

import (
	"errors"
	"fmt"
)

// Kind is the discriminant of an openrouter Error.
type Kind string

const (
	// KindConfiguration indicates invalid service configuration or rejected
	// credentials (upstream 401/403).
	KindConfiguration Kind = "configuration"

	// KindValidation indicates the request, a constructed message, or the
	// upstream schema check (422) rejected the input.
	KindValidation Kind = "validation"

	// KindRateLimit indicates upstream HTTP 429.
	KindRateLimit Kind = "rate_limit"

	// KindServiceUnavailable indicates upstream HTTP 5xx.
	KindServiceUnavailable Kind = "service_unavailable"

	// KindNetwork indicates a transport failure, a timeout, or an
	// unclassified non-2xx response.
	KindNetwork Kind = "network"

	// KindParse indicates the upstream body or its content did not match
	// the expected shape.
	KindParse Kind = "parse"
)

// maxSnippetLength bounds RawPayload.
const maxSnippetLength = 500

// Error is the only error type returned by Service.Complete and New.
// Optional fields are populated depending on Kind:
//
//	KindRateLimit:          RetryAfter
//	KindServiceUnavailable: StatusCode, CorrelationID
//	KindNetwork:            RequestID
//	KindParse:              RawPayload
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is the upstream retry-after hint in seconds, if supplied.
	RetryAfter *int

	StatusCode    int
	CorrelationID string
	RequestID     string

	// RawPayload is a snippet of the offending upstream data.
	RawPayload string

	err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Retryable reports whether the caller may safely try again later.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServiceUnavailable, KindNetwork:
		return true
	default:
		return false
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or the empty
// Kind if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func errConfiguration(format string, args ...any) *Error {
	return newError(KindConfiguration, fmt.Sprintf(format, args...))
}

func errValidation(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...))
}

func errRateLimit(message string, retryAfter *int) *Error {
	e := newError(KindRateLimit, message)
	e.RetryAfter = retryAfter
	return e
}

func errServiceUnavailable(message string, status int, correlationID string) *Error {
	e := newError(KindServiceUnavailable, message)
	e.StatusCode = status
	e.CorrelationID = correlationID
	return e
}

func errNetwork(message, requestID string, cause error) *Error {
	e := newError(KindNetwork, message)
	e.RequestID = requestID
	e.err = cause
	return e
}

func errParse(message, raw string) *Error {
	e := newError(KindParse, message)
	e.RawPayload = snippet(raw)
	return e
}

// snippet truncates s to maxSnippetLength runes.
func snippet(s string) string {
	r := []rune(s)
	if len(r) <= maxSnippetLength {
		return s
	}
	return string(r[:maxSnippetLength])
}
