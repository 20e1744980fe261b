// Package agent implements the Agent façade (§4.C8): it holds
// configuration, the owned conversation, the tool registry, and the
// provider, and owns a fresh EventLoop per Execute call, syncing the
// conversation back when the call returns.
package agent

import (
	"context"
	"time"

	"github.com/haasonsaas/agentcore/internal/engine"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/internal/tooling"
	"github.com/haasonsaas/agentcore/internal/toolexec"
	"github.com/haasonsaas/agentcore/pkg/message"
)

// Config holds an Agent's static configuration.
type Config struct {
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
}

// ExecutionConfig is per-Execute-call configuration layered onto an
// Agent's static Config: the streaming flag, an event callback, and the
// EventLoop cycle limits/evaluation strategy.
type ExecutionConfig struct {
	Loop     engine.Config
	Callback engine.Callback
}

// Agent is the library's caller-facing façade. Its ConversationManager is
// exclusively owned by the Agent; an EventLoop operates on a clone for the
// duration of one Execute call and the final state is copied back.
type Agent struct {
	config   Config
	conv     *message.ConversationManager
	registry *tooling.Registry
	executor *toolexec.Executor
	provider provider.LLMProvider
}

// New constructs an Agent. The registry and provider are shared — many
// Agents/EventLoops may reference the same instances — so tools must be
// safe to call from concurrent tasks and the provider safe for concurrent
// calls.
func New(cfg Config, registry *tooling.Registry, executor *toolexec.Executor, llm provider.LLMProvider) *Agent {
	return &Agent{
		config:   cfg,
		conv:     message.NewConversationManager(cfg.System),
		registry: registry,
		executor: executor,
		provider: llm,
	}
}

// Result is the caller-facing outcome of one Execute call (§6 Agent result
// surface).
type Result struct {
	Response        string
	Success         bool
	Error           string
	Duration        time.Duration
	UsedTools       bool
	ToolsCalled     []string
	Cycles          int
	TokensIn        int
	TokensOut       int
	TokensTotal     int
	WasStreamed     bool
	EventsPerSecond float64
}

// Execute runs one task to completion against a freshly cloned
// conversation, then writes the EventLoop's final conversation state back
// into the Agent before returning.
func (a *Agent) Execute(ctx context.Context, prompt string) (*Result, error) {
	res, err := a.executeWith(ctx, prompt, ExecutionConfig{Loop: a.defaultLoopConfig()})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ExecuteWithConfig runs Execute with caller-supplied per-call overrides
// (streaming, callback, evaluation strategy, limits).
func (a *Agent) ExecuteWithConfig(ctx context.Context, prompt string, execConfig ExecutionConfig) (*Result, error) {
	return a.executeWith(ctx, prompt, execConfig)
}

func (a *Agent) defaultLoopConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Model = a.config.Model
	cfg.System = a.config.System
	cfg.Temperature = a.config.Temperature
	if a.config.MaxTokens > 0 {
		cfg.MaxTokens = a.config.MaxTokens
	}
	return cfg
}

func (a *Agent) executeWith(ctx context.Context, prompt string, execConfig ExecutionConfig) (*Result, error) {
	// 1. Snapshot self into an EventLoop-owned clone.
	clone := a.conv.Clone()

	loopConfig := execConfig.Loop
	if loopConfig.Model == "" {
		loopConfig.Model = a.config.Model
	}
	if loopConfig.System == "" {
		loopConfig.System = a.config.System
	}

	// 2/3. Apply ExecutionConfig and run the EventLoop.
	loop := engine.New(clone, a.registry, a.executor, a.provider, loopConfig, execConfig.Callback)
	loopResult, err := loop.Execute(ctx, prompt)
	if err != nil {
		return nil, err
	}

	// 4. Copy the EventLoop's final conversation back to self.
	a.conv.ReplaceFrom(clone)

	// 5. Derive AgentResult from EventLoopResult.
	return &Result{
		Response:        loopResult.Response,
		Success:         loopResult.Success,
		Error:           loopResult.Error,
		Duration:        loopResult.TotalDuration,
		UsedTools:       loopResult.UsedTools,
		ToolsCalled:     loopResult.ToolsCalled,
		Cycles:          loopResult.CyclesExecuted,
		TokensIn:        loopResult.Metrics.TotalTokensIn,
		TokensOut:       loopResult.Metrics.TotalTokensOut,
		TokensTotal:     loopResult.Metrics.TotalTokensTotal,
		WasStreamed:     loopResult.WasStreamed,
		EventsPerSecond: loopResult.EventsPerSecond,
	}, nil
}

// Conversation exposes the Agent's owned conversation for inspection
// between Execute calls (e.g. to print history). Mutating it directly
// while an Execute call is in flight is undefined — the clone boundary
// only protects against concurrent *EventLoop* mutation, not concurrent
// caller mutation of the same Agent.
func (a *Agent) Conversation() *message.ConversationManager {
	return a.conv
}

// RegisterTool adds a tool to the Agent's shared registry.
func (a *Agent) RegisterTool(t tooling.Tool) error {
	return a.registry.Register(t)
}

// AsEvaluatorAgent adapts the Agent to evaluator.Executor, so it can be
// used as the delegate in an AgentBased evaluation strategy.
func (a *Agent) AsEvaluatorAgent() evaluatorExecutor {
	return evaluatorExecutor{a}
}

type evaluatorExecutor struct{ agent *Agent }

func (e evaluatorExecutor) Execute(ctx context.Context, prompt string) (string, error) {
	res, err := e.agent.Execute(ctx, prompt)
	if err != nil {
		return "", err
	}
	return res.Response, nil
}
