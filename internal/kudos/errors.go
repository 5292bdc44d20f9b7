package kudos

import (
	"fmt"
	"net/http"

	"github.com/tjfontaine/kudospace/internal/domain"
)

// ServiceError is a rule violation the caller can report to the client.
type ServiceError struct {
	Code    domain.ErrorCode
	Message string
	Status  int
	Details map[string]any
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// APIError converts e for the error envelope.
func (e *ServiceError) APIError() *domain.APIError {
	return domain.NewAPIError(e.Code, e.Message).
		WithDetails(e.Details).
		WithStatusCode(e.Status)
}

func newError(code domain.ErrorCode, status int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message, Status: status}
}

func (e *ServiceError) with(details map[string]string) *ServiceError {
	if len(details) == 0 {
		return e
	}
	e.Details = make(map[string]any, len(details))
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func errInvalidParameters(message string, details map[string]string) *ServiceError {
	return newError(domain.ErrorCodeInvalidParameters, http.StatusBadRequest, message).with(details)
}
