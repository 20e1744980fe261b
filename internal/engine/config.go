// Package engine implements the EventLoop: the agentic cycle engine that
// drives repeated (model invocation -> tool round(s) -> evaluation) cycles
// until the task is satisfied, a limit is hit, or execution is cancelled.
package engine

import (
	"time"

	"github.com/haasonsaas/agentcore/internal/evaluator"
)

// Config configures one EventLoop instance.
type Config struct {
	// MaxCycles bounds the outer loop. Default: 10.
	MaxCycles int

	// MaxDuration bounds wall-clock time across the whole Execute call.
	// Default: 5 minutes.
	MaxDuration time.Duration

	// MaxToolIterations bounds tool rounds within a single cycle. Default: 10.
	MaxToolIterations int

	// MaxParallelTools bounds concurrent tool dispatch within a round.
	// 1 means strictly sequential. Default: 5.
	MaxParallelTools int

	// EnableStreaming selects the streaming provider path.
	EnableStreaming bool

	// EnableTelemetry opens OTel spans per cycle/evaluation (see engine/trace.go).
	EnableTelemetry bool

	// EvaluationStrategy decides continuation after each cycle. Defaults to
	// evaluator.ModelDriven{} (exactly one cycle, no extra provider call).
	EvaluationStrategy evaluator.Evaluator

	// StreamRetries is the number of retries for a failed stream
	// creation attempt (not mid-stream errors, which are always fatal
	// for the cycle). Default: 2.
	StreamRetries      int
	StreamRetryBackoff time.Duration

	// StreamCompletionBuffer is how long the loop waits after a streamed
	// cycle before evaluating, so trailing callback delivery settles.
	// Default: 100ms. Zero disables the buffer.
	StreamCompletionBuffer time.Duration

	// Model/Temperature/MaxTokens are forwarded to every provider call this
	// loop makes.
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns the loop's baseline configuration.
func DefaultConfig() Config {
	return Config{
		MaxCycles:              10,
		MaxDuration:            5 * time.Minute,
		MaxToolIterations:      10,
		MaxParallelTools:       5,
		EvaluationStrategy:     evaluator.ModelDriven{},
		StreamRetries:          2,
		StreamRetryBackoff:     500 * time.Millisecond,
		StreamCompletionBuffer: 100 * time.Millisecond,
		MaxTokens:              4096,
	}
}

func sanitize(c Config) Config {
	if c.MaxCycles <= 0 {
		c.MaxCycles = 10
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 5 * time.Minute
	}
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = 10
	}
	if c.MaxParallelTools <= 0 {
		c.MaxParallelTools = 5
	}
	if c.EvaluationStrategy == nil {
		c.EvaluationStrategy = evaluator.ModelDriven{}
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	return c
}
