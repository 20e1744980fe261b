// Package provider defines the abstract LLM backend the event loop drives:
// a chat/chat-with-tools/streaming API plus the typed stream-event sequence
// a Stream Assembler consumes to reconstruct a ChatResponse.
package provider

import (
	"context"
	"time"

	"github.com/haasonsaas/agentcore/pkg/message"
)

// Model describes one model a provider exposes.
type Model struct {
	ID             string
	ContextWindow  int
	SupportsVision bool
}

// ToolSpec is the provider-facing tool descriptor: name, description, and
// JSON-schema shaped input.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema []byte
}

// Usage reports token accounting for a single model invocation.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompletionRequest is one model invocation's full input.
type CompletionRequest struct {
	Model          string
	System         string
	Messages       []message.Message
	Tools          []ToolSpec
	MaxTokens      int
	Temperature    float64
	ThinkingBudget int
}

// ChatResponse is the provider-agnostic result of a single model
// invocation, whether produced directly or assembled from a stream.
type ChatResponse struct {
	Text       string
	Thinking   string
	ToolCalls  []message.ToolCall
	StopReason string
	Usage      *Usage
}

// BlockType distinguishes the kind of content block a stream event refers to.
type BlockType string

const (
	BlockTypeText     BlockType = "text"
	BlockTypeToolUse  BlockType = "tool_use"
	BlockTypeThinking BlockType = "thinking"
)

// StreamEventKind tags the StreamEvent union.
type StreamEventKind string

const (
	EventContentBlockStart StreamEventKind = "content_block_start"
	EventContentBlockDelta StreamEventKind = "content_block_delta"
	EventContentBlockStop  StreamEventKind = "content_block_stop"
	EventMessageStop       StreamEventKind = "message_stop"
	EventMetadata          StreamEventKind = "metadata"
	EventError             StreamEventKind = "error"

	// Legacy events, accepted for interop with simpler providers that do
	// not distinguish block boundaries.
	EventContentDelta  StreamEventKind = "content_delta"
	EventToolCallStart StreamEventKind = "tool_call_start"
	EventToolCallDelta StreamEventKind = "tool_call_delta"
	EventDone          StreamEventKind = "done"
)

// StreamEvent is one item of a provider's streaming response. Only the
// fields relevant to Kind are populated.
type StreamEvent struct {
	Kind       StreamEventKind
	BlockIndex int
	BlockType  BlockType

	// Text carries a text or thinking delta for EventContentBlockDelta /
	// EventContentDelta, and the final text for EventDone.
	Text string

	// ToolCallID/ToolName/InputDelta apply to tool-use block events.
	ToolCallID string
	ToolName   string
	InputDelta string

	StopReason string
	Usage      *Usage
	Err        error
}

// HealthStatus reports provider reachability.
type HealthStatus struct {
	Healthy bool
	Latency time.Duration
	Error   string
}

// Capabilities summarizes what a provider supports.
type Capabilities struct {
	AvailableModels   []string
	MaxTokens         int
	SupportsStreaming bool
	SupportsTools     bool
}

// LLMProvider is the interface the event loop consumes. A provider is any
// type implementing this set; the core never depends on a concrete
// backend.
type LLMProvider interface {
	Name() string
	Models() []Model
	SupportsTools() bool

	Chat(ctx context.Context, req CompletionRequest) (*ChatResponse, error)
	ChatWithTools(ctx context.Context, req CompletionRequest) (*ChatResponse, error)
	ChatStreaming(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
	ChatStreamingWithTools(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	HealthCheck(ctx context.Context) (*HealthStatus, error)
	Capabilities() Capabilities
}
