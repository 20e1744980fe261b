// Package agenterr holds the structured error taxonomy shared by the tool
// executor, the providers, and the event loop.
package agenterr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMaxCycles indicates the event loop exceeded its cycle limit.
	ErrMaxCycles = errors.New("max cycles exceeded")

	// ErrCancelled indicates execution was cancelled by the caller.
	ErrCancelled = errors.New("cancelled")

	// ErrTimeout indicates the configured max_duration was exceeded.
	ErrTimeout = errors.New("duration limit")

	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolNotFound indicates a requested tool doesn't exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolTimeout indicates a tool execution timed out.
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolPanic indicates a tool panicked during execution.
	ErrToolPanic = errors.New("tool panicked")
)

// ToolErrorType categorizes a tool failure for retry logic.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorPermission   ToolErrorType = "permission"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// IsRetryable reports whether errors of this type are worth retrying.
func (t ToolErrorType) IsRetryable() bool {
	switch t {
	case ToolErrorTimeout, ToolErrorNetwork, ToolErrorRateLimit:
		return true
	default:
		return false
	}
}

// ToolError is a structured, classified tool failure.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
	Retryable  bool
	Attempts   int
}

func (e *ToolError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}
	return strings.Join(parts, " ")
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError classifies cause's message and wraps it as a ToolError.
func NewToolError(toolName string, cause error) *ToolError {
	e := &ToolError{ToolName: toolName, Cause: cause, Type: ToolErrorUnknown, Attempts: 1}
	if cause != nil {
		e.Message = cause.Error()
		e.Type = classify(cause)
		e.Retryable = e.Type.IsRetryable()
	}
	return e
}

func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	e.Retryable = t.IsRetryable()
	return e
}

func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Message = msg
	return e
}

func (e *ToolError) WithAttempts(n int) *ToolError {
	e.Attempts = n
	return e
}

func classify(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}
	if errors.Is(err, ErrToolNotFound) {
		return ToolErrorNotFound
	}
	if errors.Is(err, ErrToolTimeout) {
		return ToolErrorTimeout
	}
	if errors.Is(err, ErrToolPanic) {
		return ToolErrorPanic
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"), strings.Contains(s, "context deadline"):
		return ToolErrorTimeout
	case strings.Contains(s, "connection"), strings.Contains(s, "network"), strings.Contains(s, "dns"), strings.Contains(s, "refused"), strings.Contains(s, "unreachable"):
		return ToolErrorNetwork
	case strings.Contains(s, "rate limit"), strings.Contains(s, "rate_limit"), strings.Contains(s, "too many requests"), strings.Contains(s, "429"):
		return ToolErrorRateLimit
	case strings.Contains(s, "permission"), strings.Contains(s, "forbidden"), strings.Contains(s, "unauthorized"), strings.Contains(s, "access denied"):
		return ToolErrorPermission
	case strings.Contains(s, "invalid"), strings.Contains(s, "validation"), strings.Contains(s, "required"), strings.Contains(s, "missing"):
		return ToolErrorInvalidInput
	default:
		return ToolErrorExecution
	}
}

// IsToolError reports whether err is or wraps a *ToolError.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}

// AsToolError extracts a *ToolError from err's chain.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsToolRetryable reports whether err should be retried.
func IsToolRetryable(err error) bool {
	if te, ok := AsToolError(err); ok {
		return te.Retryable
	}
	return classify(err).IsRetryable()
}

// CyclePhase identifies where, within a single cycle, an error occurred.
type CyclePhase string

const (
	PhaseInvoking     CyclePhase = "invoking"
	PhaseToolDispatch CyclePhase = "tool_dispatch"
	PhaseEvaluating   CyclePhase = "evaluating"
)

// CycleError wraps an error with the cycle phase and index it occurred in.
type CycleError struct {
	Phase   CyclePhase
	Cycle   int
	Message string
	Cause   error
}

func (e *CycleError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cycle error at %s (cycle %d): %s", e.Phase, e.Cycle, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("cycle error at %s (cycle %d): %v", e.Phase, e.Cycle, e.Cause)
	}
	return fmt.Sprintf("cycle error at %s (cycle %d)", e.Phase, e.Cycle)
}

func (e *CycleError) Unwrap() error { return e.Cause }

// ProviderError is returned by an LLMProvider implementation on a failed
// call. Status/Code/RequestID are optional transport details a provider may
// attach for diagnostics.
type ProviderError struct {
	Provider  string
	Reason    string
	Status    int
	Code      string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("provider %s error: %s", e.Provider, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("provider %s error: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("provider %s error", e.Provider)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable classifies a provider error by message content, matching the
// pattern used to classify retryable Anthropic/OpenAI failures: rate
// limits, 5xx, and transient network errors are retryable.
func (e *ProviderError) IsRetryable() bool {
	s := strings.ToLower(e.Reason)
	if e.Cause != nil {
		s += " " + strings.ToLower(e.Cause.Error())
	}
	switch {
	case e.Status == 429, strings.Contains(s, "rate_limit"), strings.Contains(s, "rate limit"), strings.Contains(s, "too many requests"):
		return true
	case e.Status >= 500 && e.Status < 600:
		return true
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return true
	case strings.Contains(s, "connection reset"), strings.Contains(s, "connection refused"), strings.Contains(s, "no such host"):
		return true
	default:
		return false
	}
}
