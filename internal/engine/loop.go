package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/agentcore/internal/agenterr"
	"github.com/haasonsaas/agentcore/internal/assembler"
	"github.com/haasonsaas/agentcore/internal/evaluator"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/internal/tooling"
	"github.com/haasonsaas/agentcore/internal/toolexec"
	"github.com/haasonsaas/agentcore/pkg/message"
)

const defaultContinuationInstruction = "Please continue."

// CycleMetrics reports per-cycle accounting.
type CycleMetrics struct {
	CycleID          uuid.UUID
	StartTime        time.Time
	Duration         time.Duration
	ModelInvocations int
	ToolCalls        int
	TokensIn         int
	TokensOut        int
	TokensTotal      int
	Success          bool
	Error            string
}

// Metrics aggregates CycleMetrics across one Execute call.
type Metrics struct {
	Cycles             []CycleMetrics
	TotalTokensIn      int
	TotalTokensOut     int
	TotalTokensTotal   int
	ToolExecutionCount int
}

// Result is what Execute returns: the final response plus full accounting.
type Result struct {
	Response        string
	CyclesExecuted  int
	TotalDuration   time.Duration
	Metrics         Metrics
	Success         bool
	Error           string
	WasStreamed     bool
	UsedTools       bool
	ToolsCalled     []string
	EventsPerSecond float64
}

// EventLoop is the per-Execute orchestrator implementing the cycle state
// machine described in SPEC_FULL.md §4.C7. It operates on a conversation
// the caller already owns the lifetime of — the Agent façade is
// responsible for cloning before construction and syncing back after.
type EventLoop struct {
	conversation *message.ConversationManager
	registry     *tooling.Registry
	executor     *toolexec.Executor
	provider     provider.LLMProvider
	config       Config
	emit         *emitter
}

// New constructs an EventLoop. Exactly one concurrent Execute call per
// instance is supported; callers needing concurrent executions construct
// one EventLoop per call (this is what the Agent façade does).
func New(conversation *message.ConversationManager, registry *tooling.Registry, executor *toolexec.Executor, llm provider.LLMProvider, config Config, cb Callback) *EventLoop {
	return &EventLoop{
		conversation: conversation,
		registry:     registry,
		executor:     executor,
		provider:     llm,
		config:       sanitize(config),
		emit:         newEmitter(cb),
	}
}

// Execute runs the cycle loop to completion: it repeats (model invocation,
// zero or more tool rounds, evaluation) until the evaluator stops, a limit
// is hit, or ctx is cancelled.
func (l *EventLoop) Execute(ctx context.Context, prompt string) (*Result, error) {
	start := time.Now()
	l.emit.emit(Event{Type: EventLoopStart})
	l.conversation.AddUserText(prompt)

	var metrics Metrics
	var toolsCalled []string
	usedTools := false
	cyclesExecuted := 0
	var lastResponse *provider.ChatResponse
	var terminalErr error
	cancelledOrTimedOut := false

	for {
		if err := ctx.Err(); err != nil {
			terminalErr = agenterr.ErrCancelled
			cancelledOrTimedOut = true
			break
		}
		if time.Since(start) >= l.config.MaxDuration {
			terminalErr = agenterr.ErrTimeout
			cancelledOrTimedOut = true
			break
		}
		if cyclesExecuted >= l.config.MaxCycles {
			break
		}

		cycleID := uuid.New()
		l.emit.setCycle(cycleID)
		l.emit.emit(Event{Type: EventCycleStart})
		cycleCtx, span := startCycleSpan(ctx, l.config.EnableTelemetry, l.emit.runID, cycleID)
		cm := CycleMetrics{CycleID: cycleID, StartTime: time.Now()}

		resp, cycleErr := l.runCycle(cycleCtx, &cm, &usedTools, &toolsCalled)
		endSpan(span)

		if cycleErr != nil {
			if cycleErr == errCancelledMidCycle {
				terminalErr = &agenterr.CycleError{Phase: agenterr.PhaseToolDispatch, Cycle: cyclesExecuted, Cause: agenterr.ErrCancelled}
				cancelledOrTimedOut = true
				cm.Success = false
				cm.Error = terminalErr.Error()
				cm.Duration = time.Since(cm.StartTime)
				metrics.Cycles = append(metrics.Cycles, cm)
				break
			}
			// Fatal provider/stream error on the primary call: loop exits.
			terminalErr = &agenterr.CycleError{Phase: agenterr.PhaseInvoking, Cycle: cyclesExecuted, Cause: cycleErr}
			cm.Success = false
			cm.Error = terminalErr.Error()
			cm.Duration = time.Since(cm.StartTime)
			metrics.Cycles = append(metrics.Cycles, cm)
			break
		}

		lastResponse = resp
		cm.Success = true
		cm.Duration = time.Since(cm.StartTime)
		if resp.Usage != nil {
			cm.TokensIn = resp.Usage.InputTokens
			cm.TokensOut = resp.Usage.OutputTokens
			cm.TokensTotal = resp.Usage.TotalTokens
			metrics.TotalTokensIn += cm.TokensIn
			metrics.TotalTokensOut += cm.TokensOut
			metrics.TotalTokensTotal += cm.TokensTotal
		}
		metrics.Cycles = append(metrics.Cycles, cm)
		cyclesExecuted++

		l.emit.emit(Event{Type: EventCycleComplete})

		// Let trailing stream callback delivery settle before evaluating.
		if l.config.EnableStreaming && l.config.StreamCompletionBuffer > 0 {
			select {
			case <-time.After(l.config.StreamCompletionBuffer):
			case <-ctx.Done():
			}
		}

		if ctx.Err() != nil {
			// Evaluation is skipped if cancelled — short-circuit to cleanup.
			terminalErr = agenterr.ErrCancelled
			cancelledOrTimedOut = true
			break
		}

		l.emit.emit(Event{Type: EventEvaluationStart})
		evalCtx, evalSpan := startEvaluationSpan(ctx, l.config.EnableTelemetry, l.emit.runID, cycleID, l.config.EvaluationStrategy.Name())
		decision, evalErr := l.config.EvaluationStrategy.Evaluate(evalCtx, evaluator.CycleSummary{
			Prompt:       prompt,
			LastResponse: resp.Text,
			CycleCount:   cyclesExecuted,
			Transcript:   l.evaluationTranscript(),
		})
		endSpan(evalSpan)
		if evalErr != nil {
			// EvaluatorError is treated as "stop" and logged, not fatal.
			slog.Warn("evaluation failed, treating as stop", "strategy", l.config.EvaluationStrategy.Name(), "error", evalErr)
			decision = evaluator.Result{Continue: false}
		}
		l.emit.emit(Event{Type: EventEvaluationDone, Continue: decision.Continue})

		if !decision.Continue {
			break
		}
		respText := decision.Response
		if respText == "" {
			respText = defaultContinuationInstruction
		}
		l.conversation.AddUserText(respText)
	}

	totalDuration := time.Since(start)
	eps := l.emit.eventsPerSecond(totalDuration)

	if cancelledOrTimedOut {
		errText := "cancelled"
		respText := "Execution cancelled by user request"
		if errors.Is(terminalErr, agenterr.ErrTimeout) {
			errText = "duration limit"
		}
		l.emit.emit(Event{Type: EventError, Err: terminalErr})
		l.emit.emit(Event{Type: EventLoopComplete})
		return &Result{
			Response:        respText,
			CyclesExecuted:  cyclesExecuted,
			TotalDuration:   totalDuration,
			Metrics:         metrics,
			Success:         false,
			Error:           errText,
			WasStreamed:     l.config.EnableStreaming,
			UsedTools:       usedTools,
			ToolsCalled:     toolsCalled,
			EventsPerSecond: eps,
		}, nil
	}

	if terminalErr != nil {
		l.emit.emit(Event{Type: EventError, Err: terminalErr})
		l.emit.emit(Event{Type: EventLoopComplete})
		return &Result{
			Response:        "",
			CyclesExecuted:  cyclesExecuted,
			TotalDuration:   totalDuration,
			Metrics:         metrics,
			Success:         false,
			Error:           terminalErr.Error(),
			WasStreamed:     l.config.EnableStreaming,
			UsedTools:       usedTools,
			ToolsCalled:     toolsCalled,
			EventsPerSecond: eps,
		}, nil
	}

	responseText := ""
	if lastResponse != nil {
		responseText = lastResponse.Text
	}
	l.emit.emit(Event{Type: EventLoopComplete})
	return &Result{
		Response:        responseText,
		CyclesExecuted:  cyclesExecuted,
		TotalDuration:   totalDuration,
		Metrics:         metrics,
		Success:         true,
		WasStreamed:     l.config.EnableStreaming,
		UsedTools:       usedTools,
		ToolsCalled:     toolsCalled,
		EventsPerSecond: eps,
	}, nil
}

// evaluationTranscript renders the conversation's plain text turns for the
// evaluator's isolated context. Tool use, tool result, and thinking blocks
// are omitted, as is any turn whose text is exactly the default
// continuation instruction. Continuation text that an evaluator supplied
// and the loop injected stays in the transcript as an ordinary user turn.
func (l *EventLoop) evaluationTranscript() string {
	var b strings.Builder
	for _, m := range l.conversation.Messages() {
		text := m.Text()
		if text == "" || text == defaultContinuationInstruction {
			continue
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

var errCancelledMidCycle = fmt.Errorf("cancelled mid-cycle")

// runCycle executes one cycle: the primary model invocation, zero or more
// tool rounds, and appends the final assistant text to the conversation.
// It returns the response used for evaluation. A fatal error on the
// primary call is returned as-is; cancellation observed between a tool_use
// append and dispatch completion returns errCancelledMidCycle after
// synthesizing error tool_results for every pending call.
func (l *EventLoop) runCycle(ctx context.Context, cm *CycleMetrics, usedTools *bool, toolsCalled *[]string) (*provider.ChatResponse, error) {
	resp, err := l.invokeModel(ctx)
	if err != nil {
		return nil, err
	}
	cm.ModelInvocations++

	toolRounds := 0
	for len(resp.ToolCalls) > 0 {
		toolRounds++
		if toolRounds > l.config.MaxToolIterations {
			resp.Text = "[limit reached — please rephrase]"
			resp.ToolCalls = nil
			break
		}

		assistantMsg := assistantMessage(resp)
		l.conversation.Append(assistantMsg)
		pending := resp.ToolCalls

		if ctx.Err() != nil {
			l.conversation.Append(cancelledToolResultMessage(pending))
			return nil, errCancelledMidCycle
		}

		for _, tc := range pending {
			l.emit.emit(Event{Type: EventToolStart, ToolName: tc.Name, ToolCallID: tc.ID})
		}
		results := l.executor.ExecuteAllWithLimit(ctx, pending, func(ev toolexec.Event) {}, l.config.MaxParallelTools)
		for _, r := range results {
			l.emit.emit(Event{Type: EventToolComplete, ToolName: r.Call.Name, ToolCallID: r.Call.ID, IsError: r.Result.IsError})
			*toolsCalled = append(*toolsCalled, r.Call.Name)
		}
		*usedTools = true
		cm.ToolCalls += len(results)

		l.conversation.Append(toolResultMessage(results))

		if ctx.Err() != nil {
			return nil, errCancelledMidCycle
		}

		resp, err = l.invokeModel(ctx)
		if err != nil {
			// ProviderError on a follow-up call (after tool results) is
			// recoverable: convert to graceful text and continue the cycle.
			resp = &provider.ChatResponse{Text: fmt.Sprintf("[error contacting model: %v]", err)}
		}
		cm.ModelInvocations++

		if resp.Text == "" && len(resp.ToolCalls) == 0 && anySucceeded(results) {
			resp.Text = summarizeToolOutputs(results)
		}
	}

	l.conversation.Append(message.NewTextMessage(message.RoleAssistant, resp.Text))
	return resp, nil
}

func anySucceeded(results []toolexec.ExecutionResult) bool {
	for _, r := range results {
		if !r.Result.IsError {
			return true
		}
	}
	return false
}

func summarizeToolOutputs(results []toolexec.ExecutionResult) string {
	s := ""
	for _, r := range results {
		if r.Result.IsError {
			continue
		}
		s += r.Call.Name + ": " + r.Result.Content + "\n"
	}
	return s
}

func assistantMessage(resp *provider.ChatResponse) message.Message {
	var blocks []message.ContentBlock
	if resp.Text != "" {
		blocks = append(blocks, message.TextBlock(resp.Text))
	}
	for _, tc := range resp.ToolCalls {
		blocks = append(blocks, message.ToolUseBlock(tc.ID, tc.Name, tc.Input))
	}
	return message.Message{Role: message.RoleAssistant, Blocks: blocks}
}

func toolResultMessage(results []toolexec.ExecutionResult) message.Message {
	blocks := make([]message.ContentBlock, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, message.ToolResultBlock(r.Result))
	}
	return message.Message{Role: message.RoleUser, Blocks: blocks}
}

func cancelledToolResultMessage(pending []message.ToolCall) message.Message {
	blocks := make([]message.ContentBlock, 0, len(pending))
	for _, tc := range pending {
		blocks = append(blocks, message.ToolResultBlock(message.ErrorResult(tc.ID, tc.Name, "tool execution cancelled")))
	}
	return message.Message{Role: message.RoleUser, Blocks: blocks}
}

// invokeModel dispatches the primary or follow-up model call, using the
// streaming assembler when EnableStreaming is set. Stream creation (not
// mid-stream delivery) is retried up to StreamRetries times.
func (l *EventLoop) invokeModel(ctx context.Context) (*provider.ChatResponse, error) {
	l.emit.emit(Event{Type: EventModelStart})
	req := provider.CompletionRequest{
		Model:       l.config.Model,
		System:      l.config.System,
		Messages:    l.conversation.Messages(),
		Tools:       l.registry.AsToolSpecs(),
		MaxTokens:   l.config.MaxTokens,
		Temperature: l.config.Temperature,
	}

	if !l.config.EnableStreaming {
		resp, err := l.provider.ChatWithTools(ctx, req)
		if err == nil {
			l.emit.emit(Event{Type: EventModelComplete})
		}
		return resp, err
	}

	var lastErr error
	backoff := l.config.StreamRetryBackoff
	for attempt := 0; attempt <= l.config.StreamRetries; attempt++ {
		ch, err := l.provider.ChatStreamingWithTools(ctx, req)
		if err != nil {
			lastErr = err
			if pe, ok := err.(*agenterr.ProviderError); ok && !pe.IsRetryable() {
				break
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if backoff <= 0 {
				backoff = 250 * time.Millisecond
			}
			backoff *= 2
			continue
		}
		// Drain the whole channel rather than returning at MessageStop:
		// some providers report usage in a Metadata event trailing the
		// stop, and the assembler keeps folding those in.
		asm := assembler.New(nil)
		for ev := range ch {
			if ev.Text != "" && (ev.Kind == provider.EventContentBlockDelta || ev.Kind == provider.EventContentDelta) {
				l.emit.emit(Event{
					Type:      EventContentDelta,
					Text:      ev.Text,
					Reasoning: ev.BlockType == provider.BlockTypeThinking,
				})
			}
			if _, streamErr := asm.Feed(ev); streamErr != nil {
				return nil, streamErr
			}
		}
		// The assembler returns a best-effort response if the channel
		// closed without a MessageStop.
		resp := asm.Response()
		l.emit.emit(Event{Type: EventModelComplete})
		return resp, nil
	}
	return nil, lastErr
}
