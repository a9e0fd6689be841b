package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Error codes
const (
	CodeAppError   = "APP_ERROR"
	CodeTransport  = "TRANSPORT_ERROR"
	CodeService    = "SERVICE_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeCache      = "CACHE_ERROR"
)

// GenericUserMessage is shown when an error carries no human-readable text.
const GenericUserMessage = "Something went wrong. Please try again."

type AppError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(message, code string, statusCode int, context map[string]any) *AppError {
	return &AppError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// TransportError covers unreachable hosts, timeouts, malformed responses and
// an open circuit. Always recoverable by retry.
type TransportError struct {
	*AppError
	Operation string
}

func NewTransportError(message, operation string, cause error) *TransportError {
	return &TransportError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeTransport,
			StatusCode: 503,
			Context: map[string]any{
				"operation": operation,
			},
			Cause: cause,
		},
		Operation: operation,
	}
}

// ServiceError means the remote explicitly rejected the request. Message is
// the remote's own text and may be shown to the user when HumanReadable is set.
type ServiceError struct {
	*AppError
	Service       string
	Operation     string
	HumanReadable bool
}

func NewServiceError(message, service, operation string, statusCode int) *ServiceError {
	return &ServiceError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeService,
			StatusCode: statusCode,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
		},
		Service:       service,
		Operation:     operation,
		HumanReadable: isHumanReadable(message),
	}
}

type ValidationError struct {
	*AppError
	Field string
	Value any
}

func NewValidationError(message, field string, value any) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type CacheError struct {
	*AppError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

func IsTransport(err error) bool {
	var te *TransportError
	return stderrors.As(err, &te)
}

func IsService(err error) bool {
	var se *ServiceError
	return stderrors.As(err, &se)
}

// UserMessage converts any slice-level failure into text fit for an inline
// error message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var se *ServiceError
	if stderrors.As(err, &se) {
		if se.HumanReadable {
			return se.Message
		}
		return GenericUserMessage
	}

	var te *TransportError
	if stderrors.As(err, &te) {
		return "Couldn't reach Astro.FM. Check your connection and try again."
	}

	return GenericUserMessage
}

// isHumanReadable rejects empty strings, stack traces, JSON blobs and HTML.
func isHumanReadable(message string) bool {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" || len(trimmed) > 280 {
		return false
	}
	switch trimmed[0] {
	case '{', '[', '<':
		return false
	}
	if strings.Contains(trimmed, "\n\t") || strings.Contains(trimmed, "Traceback") {
		return false
	}
	return true
}
