package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "error with type and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"},
			expected: "invalid_request: bad request",
		},
		{
			name:     "error with type, code, and message",
			err:      &APIError{Type: ErrorTypeRateLimit, Code: ErrorCodeRateLimitExceeded, Message: "rate limited"},
			expected: "rate_limit (rate_limit_exceeded): rate limited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{"invalid request", &APIError{Type: ErrorTypeInvalidRequest}, http.StatusBadRequest},
		{"authentication error", &APIError{Type: ErrorTypeAuthentication}, http.StatusUnauthorized},
		{"permission error", &APIError{Type: ErrorTypePermission}, http.StatusForbidden},
		{"not found error", &APIError{Type: ErrorTypeNotFound}, http.StatusNotFound},
		{"rate limit error", &APIError{Type: ErrorTypeRateLimit}, http.StatusTooManyRequests},
		{"overloaded error", &APIError{Type: ErrorTypeOverloaded}, http.StatusServiceUnavailable},
		{"server error", &APIError{Type: ErrorTypeServer}, http.StatusInternalServerError},
		{"max tokens error", &APIError{Type: ErrorTypeMaxTokens}, http.StatusBadRequest},
		{"unsupported parameter", &APIError{Type: ErrorTypeUnsupportedParam}, http.StatusBadRequest},
		{"unknown error type", &APIError{Type: ErrorType("unknown")}, http.StatusInternalServerError},
		{"explicit status code", &APIError{Type: ErrorTypeInvalidRequest, StatusCode: http.StatusConflict}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Chaining(t *testing.T) {
	err := NewAPIError(ErrorTypeInvalidRequest, "test").
		WithCode(ErrorCodeContextLengthExceeded).
		WithParam("messages").
		WithStatusCode(http.StatusBadRequest)

	if err.Type != ErrorTypeInvalidRequest {
		t.Errorf("Type = %v, want %v", err.Type, ErrorTypeInvalidRequest)
	}
	if err.Code != ErrorCodeContextLengthExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrorCodeContextLengthExceeded)
	}
	if err.Param != "messages" {
		t.Errorf("Param = %q, want %q", err.Param, "messages")
	}
	if err.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, http.StatusBadRequest)
	}
}

func TestErrUnsupportedParam(t *testing.T) {
	err := ErrUnsupportedParam("temperature", "temperature is not supported")
	if err.Type != ErrorTypeUnsupportedParam || err.Param != "temperature" || err.Code != ErrorCodeUnsupportedParameter {
		t.Errorf("unexpected error: %+v", err)
	}
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		message  string
		wantType ErrorType
	}{
		{"Unsupported parameter: 'temperature' is not supported with this model.", ErrorTypeUnsupportedParam},
		{"This model's maximum context length is 8192 tokens", ErrorTypeContextLength},
		{"max_tokens must be <= 4096", ErrorTypeMaxTokens},
		{"Rate limit reached for requests", ErrorTypeRateLimit},
		{"Incorrect API key provided", ErrorTypeAuthentication},
		{"The model `foo` does not exist", ErrorTypeNotFound},
		{"Anthropic is overloaded", ErrorTypeOverloaded},
		{"connection reset by peer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, _ := ClassifyMessage(tt.message)
			if got != tt.wantType {
				t.Errorf("ClassifyMessage(%q) = %q, want %q", tt.message, got, tt.wantType)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	if ToAPIError(nil) != nil {
		t.Fatal("ToAPIError(nil) should be nil")
	}

	canonical := ErrRateLimit("slow down")
	wrapped := fmt.Errorf("attempt 0: %w", canonical)
	if got := ToAPIError(wrapped); got != canonical {
		t.Errorf("ToAPIError should unwrap canonical errors, got %v", got)
	}

	got := ToAPIError(errors.New("max_tokens must be <= 4096"))
	if got.Type != ErrorTypeMaxTokens {
		t.Errorf("Type = %v, want %v", got.Type, ErrorTypeMaxTokens)
	}

	got = ToAPIError(errors.New("boom"))
	if got.Type != ErrorTypeServer {
		t.Errorf("Type = %v, want %v", got.Type, ErrorTypeServer)
	}
}

func TestTriState(t *testing.T) {
	if Unknown.Known() {
		t.Error("Unknown.Known() = true")
	}
	if !TriStateOf(false).Known() || TriStateOf(false).Or(true) {
		t.Error("False should be known and override the fallback")
	}
	if !Unknown.Or(true) || Unknown.Or(false) {
		t.Error("Unknown should return the fallback")
	}
	if True.String() != "true" || False.String() != "false" || Unknown.String() != "unknown" {
		t.Error("unexpected String() values")
	}
}

func TestAttemptResolution(t *testing.T) {
	a := Attempt{Provider: ProviderProfile{BaseURL: "https://primary"}}
	if a.StreamMode() != StreamModeStream {
		t.Errorf("StreamMode() = %q, want stream by default", a.StreamMode())
	}
	if a.BaseURL() != "https://primary" {
		t.Errorf("BaseURL() = %q", a.BaseURL())
	}

	a.StreamModeOverride = StreamModeTypewriter
	a.BaseURLOverride = "https://backup"
	if a.StreamMode() != StreamModeTypewriter || a.BaseURL() != "https://backup" {
		t.Errorf("overrides not applied: %q %q", a.StreamMode(), a.BaseURL())
	}
}

func TestProviderProfile_Clone(t *testing.T) {
	temp := 0.7
	p := ProviderProfile{ID: "openai", Temperature: &temp}
	c := p.Clone()
	*c.Temperature = 1.5
	if *p.Temperature != 0.7 {
		t.Errorf("Clone aliased Temperature: %v", *p.Temperature)
	}
}
