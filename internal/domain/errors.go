// Package domain provides the API error codes and the JSON error envelope.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies an API error to clients.
type ErrorCode string

const (
	ErrorCodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden            ErrorCode = "FORBIDDEN"
	ErrorCodeKudoNotFound         ErrorCode = "KUDO_NOT_FOUND"
	ErrorCodeInvalidUUID          ErrorCode = "INVALID_UUID"
	ErrorCodeInvalidRecipient     ErrorCode = "INVALID_RECIPIENT"
	ErrorCodeSelfKudoNotAllowed   ErrorCode = "SELF_KUDO_NOT_ALLOWED"
	ErrorCodeInvalidMessage       ErrorCode = "INVALID_MESSAGE"
	ErrorCodeMessageTooShort      ErrorCode = "MESSAGE_TOO_SHORT"
	ErrorCodeMessageTooLong       ErrorCode = "MESSAGE_TOO_LONG"
	ErrorCodeProfileNotFound      ErrorCode = "PROFILE_NOT_FOUND"
	ErrorCodeInvalidPrompt        ErrorCode = "INVALID_PROMPT"
	ErrorCodePromptTooShort       ErrorCode = "PROMPT_TOO_SHORT"
	ErrorCodePromptTooLong        ErrorCode = "PROMPT_TOO_LONG"
	ErrorCodeAIServiceUnavailable ErrorCode = "AI_SERVICE_UNAVAILABLE"
	ErrorCodeInvalidParameters    ErrorCode = "INVALID_PARAMETERS"
	ErrorCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// APIError is an error rendered to clients in the error envelope.
type APIError struct {
	// Code is the machine-readable error code
	Code ErrorCode `json:"code"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Details carries structured context such as per-field messages
	Details map[string]any `json:"details,omitempty"`

	// StatusCode overrides the status derived from Code
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatusCode returns the HTTP status for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Code {
	case ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrorCodeForbidden:
		return http.StatusForbidden
	case ErrorCodeKudoNotFound, ErrorCodeProfileNotFound:
		return http.StatusNotFound
	case ErrorCodeInvalidUUID, ErrorCodeInvalidRecipient, ErrorCodeSelfKudoNotAllowed,
		ErrorCodeInvalidMessage, ErrorCodeMessageTooShort, ErrorCodeMessageTooLong,
		ErrorCodeInvalidPrompt, ErrorCodePromptTooShort, ErrorCodePromptTooLong,
		ErrorCodeInvalidParameters:
		return http.StatusBadRequest
	case ErrorCodeAIServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds one entry to the error details.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithDetails merges details into the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// ErrorResponse is the envelope every error response uses.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// ErrInternal creates the generic internal error. Causes are never exposed.
func ErrInternal() *APIError {
	return NewAPIError(ErrorCodeInternal, "Unexpected error occurred.")
}

// ErrUnauthorized creates an authentication error.
func ErrUnauthorized(message string) *APIError {
	return NewAPIError(ErrorCodeUnauthorized, message)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes err in the error envelope. Errors that are not an
// *APIError are reported as INTERNAL_ERROR.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = ErrInternal()
	}
	WriteJSON(w, apiErr.HTTPStatusCode(), ErrorResponse{Error: apiErr})
}
