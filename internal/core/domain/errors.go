package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the category of a provider failure.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAuthentication indicates an authentication failure.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypePermission indicates a permission/authorization failure.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimit indicates rate limiting was triggered.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeOverloaded indicates the service is overloaded.
	ErrorTypeOverloaded ErrorType = "overloaded"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeContextLength indicates the context length was exceeded.
	ErrorTypeContextLength ErrorType = "context_length"

	// ErrorTypeMaxTokens indicates a max_tokens limit issue.
	ErrorTypeMaxTokens ErrorType = "max_tokens"

	// ErrorTypeUnsupportedParam indicates the provider rejected an optional
	// request parameter.
	ErrorTypeUnsupportedParam ErrorType = "unsupported_parameter"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeContextLengthExceeded ErrorCode = "context_length_exceeded"
	ErrorCodeRateLimitExceeded     ErrorCode = "rate_limit_exceeded"
	ErrorCodeInvalidAPIKey         ErrorCode = "invalid_api_key"
	ErrorCodeModelNotFound         ErrorCode = "model_not_found"
	ErrorCodeMaxTokensExceeded     ErrorCode = "max_tokens_exceeded"
	ErrorCodeUnsupportedParameter  ErrorCode = "unsupported_parameter"
)

// Sentinel errors surfaced to listeners.
var (
	// ErrCanceled is delivered when the user cancels an in-flight request.
	ErrCanceled = errors.New("request canceled")

	// ErrNoAttempts means the attempt chain was empty.
	ErrNoAttempts = errors.New("no attempts configured")
)

// APIError represents a canonical provider error.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Param is the parameter that caused the error (if applicable)
	Param string `json:"param,omitempty"`

	// StatusCode is the HTTP status reported by the provider, if any
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest, ErrorTypeContextLength, ErrorTypeMaxTokens, ErrorTypeUnsupportedParam:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithStatusCode sets the provider's HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message).
		WithCode(ErrorCodeRateLimitExceeded)
}

// ErrMaxTokens creates a max tokens error.
func ErrMaxTokens(message string) *APIError {
	return NewAPIError(ErrorTypeMaxTokens, message).
		WithCode(ErrorCodeMaxTokensExceeded)
}

// ErrContextLength creates a context length exceeded error.
func ErrContextLength(message string) *APIError {
	return NewAPIError(ErrorTypeContextLength, message).
		WithCode(ErrorCodeContextLengthExceeded)
}

// ErrUnsupportedParam creates an unsupported-parameter error naming param.
func ErrUnsupportedParam(param, message string) *APIError {
	return NewAPIError(ErrorTypeUnsupportedParam, message).
		WithCode(ErrorCodeUnsupportedParameter).
		WithParam(param)
}

// ToAPIError converts any error to an *APIError. Errors that are not
// already canonical are classified from their message text.
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	errType, code := ClassifyMessage(err.Error())
	if errType == "" {
		return ErrServer(err.Error())
	}
	return NewAPIError(errType, err.Error()).WithCode(code)
}

// ClassifyMessage detects the error type from free-form provider text.
// It returns empty values when nothing matches.
func ClassifyMessage(message string) (ErrorType, ErrorCode) {
	msgLower := strings.ToLower(message)

	switch {
	case containsAny(msgLower, unsupportedParamMarkers):
		return ErrorTypeUnsupportedParam, ErrorCodeUnsupportedParameter

	case strings.Contains(msgLower, "context length") ||
		strings.Contains(msgLower, "context_length") ||
		strings.Contains(msgLower, "context window") ||
		strings.Contains(msgLower, "too many tokens"):
		return ErrorTypeContextLength, ErrorCodeContextLengthExceeded

	case strings.Contains(msgLower, "max_tokens") ||
		strings.Contains(msgLower, "max_completion_tokens") ||
		strings.Contains(msgLower, "max_output_tokens") ||
		strings.Contains(msgLower, "maximum tokens") ||
		strings.Contains(msgLower, "token limit"):
		return ErrorTypeMaxTokens, ErrorCodeMaxTokensExceeded

	case strings.Contains(msgLower, "rate limit"):
		return ErrorTypeRateLimit, ErrorCodeRateLimitExceeded

	case strings.Contains(msgLower, "api key") ||
		strings.Contains(msgLower, "authentication") ||
		strings.Contains(msgLower, "unauthorized"):
		return ErrorTypeAuthentication, ErrorCodeInvalidAPIKey

	case strings.Contains(msgLower, "model not found") ||
		strings.Contains(msgLower, "does not exist"):
		return ErrorTypeNotFound, ErrorCodeModelNotFound

	case strings.Contains(msgLower, "overloaded"):
		return ErrorTypeOverloaded, ""
	}

	return "", ""
}

var unsupportedParamMarkers = []string{
	"unsupported parameter",
	"unsupported_parameter",
	"unsupported value",
	"unknown parameter",
	"unrecognized request argument",
	"not supported with this model",
	"is not supported",
	"does not support",
	"extra inputs are not permitted",
	"invalid parameter",
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
