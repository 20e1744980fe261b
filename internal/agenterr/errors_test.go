package agenterr

import (
	"errors"
	"testing"
)

func TestNewToolErrorClassifies(t *testing.T) {
	tests := []struct {
		name      string
		cause     error
		wantType  ToolErrorType
		wantRetry bool
	}{
		{"timeout", errors.New("context deadline exceeded"), ToolErrorTimeout, true},
		{"network", errors.New("dial tcp: connection refused"), ToolErrorNetwork, true},
		{"rate limit", errors.New("429 too many requests"), ToolErrorRateLimit, true},
		{"permission", errors.New("forbidden: access denied"), ToolErrorPermission, false},
		{"invalid input", errors.New("missing required field"), ToolErrorInvalidInput, false},
		{"unknown", errors.New("something broke"), ToolErrorExecution, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := NewToolError("mytool", tt.cause)
			if te.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", te.Type, tt.wantType)
			}
			if te.Retryable != tt.wantRetry {
				t.Errorf("Retryable = %v, want %v", te.Retryable, tt.wantRetry)
			}
		})
	}
}

func TestToolErrorBuilderChain(t *testing.T) {
	cause := errors.New("boom")
	te := NewToolError("mytool", cause).
		WithType(ToolErrorTimeout).
		WithToolCallID("call-1").
		WithMessage("overridden message").
		WithAttempts(3)

	if te.Type != ToolErrorTimeout {
		t.Errorf("Type = %v, want %v", te.Type, ToolErrorTimeout)
	}
	if !te.Retryable {
		t.Error("WithType(ToolErrorTimeout) should mark Retryable true")
	}
	if te.ToolCallID != "call-1" {
		t.Errorf("ToolCallID = %q, want call-1", te.ToolCallID)
	}
	if te.Message != "overridden message" {
		t.Errorf("Message = %q, want overridden message", te.Message)
	}
	if !errors.Is(te, cause) {
		t.Error("errors.Is(te, cause) = false, want true (Unwrap must expose cause)")
	}
}

func TestIsToolRetryable(t *testing.T) {
	if !IsToolRetryable(errors.New("rate_limit exceeded")) {
		t.Error("IsToolRetryable(rate_limit) = false, want true")
	}
	if IsToolRetryable(errors.New("invalid argument")) {
		t.Error("IsToolRetryable(invalid argument) = true, want false")
	}
}

func TestProviderErrorIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want bool
	}{
		{"429 status", &ProviderError{Status: 429}, true},
		{"5xx status", &ProviderError{Status: 503}, true},
		{"4xx status", &ProviderError{Status: 404}, false},
		{"timeout reason", &ProviderError{Reason: "request timeout"}, true},
		{"connection refused cause", &ProviderError{Cause: errors.New("connection refused")}, true},
		{"plain failure", &ProviderError{Reason: "invalid api key"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCycleErrorUnwrap(t *testing.T) {
	cause := errors.New("inner")
	ce := &CycleError{Phase: PhaseToolDispatch, Cycle: 2, Cause: cause}
	if !errors.Is(ce, cause) {
		t.Error("errors.Is(ce, cause) = false, want true")
	}
}
