// Package toolexec implements the bounded-concurrency Tool Executor: it
// dispatches a batch of tool calls, preserving input order in the output,
// with per-tool timeout and retry.
package toolexec

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/agentcore/internal/agenterr"
	"github.com/haasonsaas/agentcore/internal/tooling"
	"github.com/haasonsaas/agentcore/pkg/message"
)

// Config controls concurrency, timeout, and retry for a batch dispatch.
type Config struct {
	// MaxParallel is the maximum number of tool calls executing at once.
	// 1 means strictly sequential. Default: 5.
	MaxParallel int

	// PerToolTimeout bounds a single tool call's wall-clock time. Default: 30s.
	PerToolTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt. Default: 2.
	MaxRetries int

	// RetryBackoff is the initial backoff between retries, doubled per
	// attempt up to MaxRetryBackoff. Default: 100ms.
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff. Default: 5s.
	MaxRetryBackoff time.Duration
}

// DefaultConfig returns the executor's baseline configuration.
func DefaultConfig() Config {
	return Config{
		MaxParallel:     5,
		PerToolTimeout:  30 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

func sanitize(c Config) Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 1
	}
	if c.PerToolTimeout <= 0 {
		c.PerToolTimeout = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = 5 * time.Second
	}
	return c
}

// Event is a tool lifecycle notification emitted during ExecuteAll.
type Event struct {
	Type       string // "started", "succeeded", "failed" (a timeout is reported as "failed")
	ToolName   string
	ToolCallID string
	Attempt    int
	Duration   time.Duration
}

// EventFunc receives lifecycle events. It must not block; the executor
// invokes it synchronously from dispatch goroutines.
type EventFunc func(Event)

// Executor dispatches tool call batches against a tooling.Registry.
type Executor struct {
	registry *tooling.Registry
	config   Config
}

func New(registry *tooling.Registry, config Config) *Executor {
	return &Executor{registry: registry, config: sanitize(config)}
}

// ExecutionResult is one tool call's outcome plus timing.
type ExecutionResult struct {
	Index     int
	Call      message.ToolCall
	Result    message.ToolResult
	StartTime time.Time
	EndTime   time.Time
}

// ExecuteAll dispatches calls under the Executor's configured concurrency
// bound, returning results in the same order as the input. Every input
// index gets exactly one output slot, even for an unknown tool, a panic, or
// a cancelled context.
func (e *Executor) ExecuteAll(ctx context.Context, calls []message.ToolCall, emit EventFunc) []ExecutionResult {
	return e.ExecuteAllWithLimit(ctx, calls, emit, e.config.MaxParallel)
}

// ExecuteAllWithLimit is ExecuteAll with the concurrency bound overridden
// for this call, without mutating the Executor's own Config — a single
// Executor is shared across every EventLoop a caller constructs, but each
// EventLoop's Config.MaxParallelTools may differ. maxParallel <= 0 falls
// back to the Executor's configured bound.
func (e *Executor) ExecuteAllWithLimit(ctx context.Context, calls []message.ToolCall, emit EventFunc, maxParallel int) []ExecutionResult {
	if maxParallel <= 0 {
		maxParallel = e.config.MaxParallel
	}
	results := make([]ExecutionResult, len(calls))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c message.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = ExecutionResult{
					Index:  idx,
					Call:   c,
					Result: message.ErrorResult(c.ID, c.Name, "context canceled"),
				}
				return
			}

			results[idx] = e.executeOne(ctx, idx, c, emit)
		}(i, call)
	}

	wg.Wait()
	return results
}

func (e *Executor) executeOne(ctx context.Context, idx int, call message.ToolCall, emit EventFunc) ExecutionResult {
	start := time.Now()
	attempts := 1 + e.config.MaxRetries
	backoff := e.config.RetryBackoff

	var result message.ToolResult
	for attempt := 1; attempt <= attempts; attempt++ {
		if emit != nil {
			emit(Event{Type: "started", ToolName: call.Name, ToolCallID: call.ID, Attempt: attempt})
		}

		result = e.executeWithTimeout(ctx, call)

		if !result.IsError {
			if emit != nil {
				emit(Event{Type: "succeeded", ToolName: call.Name, ToolCallID: call.ID, Attempt: attempt, Duration: time.Since(start)})
			}
			break
		}

		if attempt == attempts || !agenterr.IsToolRetryable(errForResult(result)) {
			if emit != nil {
				emit(Event{Type: "failed", ToolName: call.Name, ToolCallID: call.ID, Attempt: attempt, Duration: time.Since(start)})
			}
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			result = message.ErrorResult(call.ID, call.Name, "tool execution canceled")
			attempt = attempts // stop looping
		}
		backoff *= 2
		if backoff > e.config.MaxRetryBackoff {
			backoff = e.config.MaxRetryBackoff
		}
	}

	end := time.Now()
	result.Duration = end.Sub(start)
	return ExecutionResult{Index: idx, Call: call, Result: result, StartTime: start, EndTime: end}
}

// executeWithTimeout runs a single attempt with a per-tool timeout and
// panic recovery, so a misbehaving tool can never take down the batch.
func (e *Executor) executeWithTimeout(ctx context.Context, call message.ToolCall) (result message.ToolResult) {
	toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
	defer cancel()

	type outcome struct {
		result message.ToolResult
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{message.ErrorResult(call.ID, call.Name, "panic: "+panicMessage(r, debug.Stack()))}
			}
		}()
		done <- outcome{e.registry.Execute(toolCtx, call)}
	}()

	select {
	case <-toolCtx.Done():
		if toolCtx.Err() == context.DeadlineExceeded {
			return message.ErrorResult(call.ID, call.Name, "tool execution timed out")
		}
		return message.ErrorResult(call.ID, call.Name, "tool execution canceled")
	case o := <-done:
		return o.result
	}
}

func panicMessage(r any, stack []byte) string {
	return toString(r) + "\n" + string(stack)
}

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}

func errForResult(r message.ToolResult) error {
	if !r.IsError {
		return nil
	}
	return toolResultError(r.Content)
}

type toolResultError string

func (e toolResultError) Error() string { return string(e) }
