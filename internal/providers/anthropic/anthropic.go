// Package anthropic implements provider.LLMProvider against Anthropic's
// Messages API via github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/agentcore/internal/agenterr"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/message"
)

// Config configures a Provider.
type Config struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string

	// BaseURL overrides the default Anthropic API base URL.
	BaseURL string

	// DefaultModel is used when a CompletionRequest doesn't specify one.
	DefaultModel string
}

// Provider adapts the Anthropic Messages API to provider.LLMProvider.
type Provider struct {
	client       anthropic.Client
	defaultModel string
}

// New constructs a Provider. config.APIKey is required.
func New(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Models() []provider.Model {
	return []provider.Model{
		{ID: "claude-sonnet-4-20250514", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-opus-20240229", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-sonnet-20240229", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", ContextWindow: 200000, SupportsVision: true},
	}
}

func (p *Provider) SupportsTools() bool { return true }

func (p *Provider) Capabilities() provider.Capabilities {
	models := p.Models()
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	return provider.Capabilities{
		AvailableModels:   ids,
		MaxTokens:         4096,
		SupportsStreaming: true,
		SupportsTools:     true,
	}
}

func (p *Provider) HealthCheck(ctx context.Context) (*provider.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel("")),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	latency := time.Since(start)
	if err != nil {
		return &provider.HealthStatus{Healthy: false, Latency: latency, Error: err.Error()}, nil
	}
	return &provider.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *Provider) getMaxTokens(maxTokens int) int64 {
	if maxTokens <= 0 {
		return 4096
	}
	return int64(maxTokens)
}

// Chat performs one non-streaming, tool-less completion.
func (p *Provider) Chat(ctx context.Context, req provider.CompletionRequest) (*provider.ChatResponse, error) {
	return p.complete(ctx, req, false)
}

// ChatWithTools performs one non-streaming completion with tool definitions attached.
func (p *Provider) ChatWithTools(ctx context.Context, req provider.CompletionRequest) (*provider.ChatResponse, error) {
	return p.complete(ctx, req, true)
}

func (p *Provider) complete(ctx context.Context, req provider.CompletionRequest, withTools bool) (*provider.ChatResponse, error) {
	params, err := p.buildParams(req, withTools)
	if err != nil {
		return nil, err
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	resp := &provider.ChatResponse{
		StopReason: string(msg.StopReason),
		Usage: &provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += variant.Text
		case anthropic.ThinkingBlock:
			resp.Thinking += variant.Thinking
		case anthropic.ToolUseBlock:
			input, _ := variant.Input.MarshalJSON()
			resp.ToolCalls = append(resp.ToolCalls, message.ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: input,
			})
		}
	}
	return resp, nil
}

// ChatStreaming streams a tool-less completion as provider.StreamEvent values.
func (p *Provider) ChatStreaming(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamEvent, error) {
	return p.stream(ctx, req, false)
}

// ChatStreamingWithTools streams a completion with tool definitions attached.
func (p *Provider) ChatStreamingWithTools(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamEvent, error) {
	return p.stream(ctx, req, true)
}

func (p *Provider) stream(ctx context.Context, req provider.CompletionRequest, withTools bool) (<-chan provider.StreamEvent, error) {
	params, err := p.buildParams(req, withTools)
	if err != nil {
		return nil, err
	}
	sdkStream := p.client.Messages.NewStreaming(ctx, params)

	out := make(chan provider.StreamEvent, 16)
	go p.pump(sdkStream, out)
	return out, nil
}

// pump translates Anthropic's SSE event sequence into provider.StreamEvent
// values for an assembler.Assembler to consume. It owns out and always
// closes it.
func (p *Provider) pump(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- provider.StreamEvent) {
	defer close(out)

	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}

		case "content_block_start":
			start := event.AsContentBlockStart()
			switch block := start.ContentBlock.AsAny().(type) {
			case anthropic.TextBlock:
				out <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: int(start.Index), BlockType: provider.BlockTypeText}
			case anthropic.ThinkingBlock:
				out <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: int(start.Index), BlockType: provider.BlockTypeThinking}
			case anthropic.ToolUseBlock:
				out <- provider.StreamEvent{
					Kind:       provider.EventContentBlockStart,
					BlockIndex: int(start.Index),
					BlockType:  provider.BlockTypeToolUse,
					ToolCallID: block.ID,
					ToolName:   block.Name,
				}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta()
			switch d := delta.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					out <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: int(delta.Index), BlockType: provider.BlockTypeText, Text: d.Text}
				}
			case anthropic.ThinkingDelta:
				if d.Thinking != "" {
					out <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: int(delta.Index), BlockType: provider.BlockTypeThinking, Text: d.Thinking}
				}
			case anthropic.InputJSONDelta:
				if d.PartialJSON != "" {
					out <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: int(delta.Index), BlockType: provider.BlockTypeToolUse, InputDelta: d.PartialJSON}
				}
			}

		case "content_block_stop":
			stop := event.AsContentBlockStop()
			out <- provider.StreamEvent{Kind: provider.EventContentBlockStop, BlockIndex: int(stop.Index)}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}

		case "message_stop":
			out <- provider.StreamEvent{
				Kind: provider.EventMessageStop,
				Usage: &provider.Usage{
					InputTokens:  inputTokens,
					OutputTokens: outputTokens,
					TotalTokens:  inputTokens + outputTokens,
				},
			}
			return

		case "error":
			out <- provider.StreamEvent{Kind: provider.EventError, Err: p.wrapError(errors.New("anthropic stream error"))}
			return
		}
	}

	if err := stream.Err(); err != nil {
		out <- provider.StreamEvent{Kind: provider.EventError, Err: p.wrapError(err)}
	}
}

func (p *Provider) buildParams(req provider.CompletionRequest, withTools bool) (anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel(req.Model)),
		Messages:  messages,
		MaxTokens: p.getMaxTokens(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if withTools && len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}
	if req.ThinkingBudget > 0 {
		budget := int64(req.ThinkingBudget)
		if budget < 1024 {
			budget = 1024
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

// convertMessages maps our unified message.Message slice onto Anthropic's
// MessageParam, collapsing one internal message with mixed blocks into one
// Anthropic content-block array per message, consistent with how the stream
// assembler and event loop build messages (one assistant message per cycle,
// one user message per tool-result round).
func (p *Provider) convertMessages(messages []message.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == message.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		for _, b := range msg.Blocks {
			switch b.Kind {
			case message.BlockText:
				if b.Text != "" {
					content = append(content, anthropic.NewTextBlock(b.Text))
				}
			case message.BlockToolResult:
				content = append(content, anthropic.NewToolResultBlock(b.ToolUseID, b.ToolResultContent, b.IsError))
			case message.BlockToolUse:
				var input map[string]any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						return nil, fmt.Errorf("invalid tool call input for %s: %w", b.ToolName, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(b.ToolUseID, input, b.ToolName))
			}
		}
		if len(content) == 0 {
			continue
		}

		var out anthropic.MessageParam
		if msg.Role == message.RoleAssistant {
			out = anthropic.NewAssistantMessage(content...)
		} else {
			out = anthropic.NewUserMessage(content...)
		}
		result = append(result, out)
	}

	return result, nil
}

func (p *Provider) convertTools(tools []provider.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func (p *Provider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &agenterr.ProviderError{
			Provider:  "anthropic",
			Reason:    apiErr.Error(),
			Status:    apiErr.StatusCode,
			RequestID: apiErr.RequestID,
			Cause:     err,
		}
	}
	return &agenterr.ProviderError{Provider: "anthropic", Reason: err.Error(), Cause: err}
}
