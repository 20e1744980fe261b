// Package openai implements provider.LLMProvider against OpenAI's Chat
// Completions API via github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentcore/internal/agenterr"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/message"
)

// Config configures a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Provider adapts OpenAI's Chat Completions API to provider.LLMProvider.
type Provider struct {
	client       *openai.Client
	defaultModel string
}

// New constructs a Provider. config.APIKey is required.
func New(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	cc := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		cc.BaseURL = config.BaseURL
	}

	return &Provider{
		client:       openai.NewClientWithConfig(cc),
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Models() []provider.Model {
	return []provider.Model{
		{ID: "gpt-4o", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-3.5-turbo", ContextWindow: 16385, SupportsVision: false},
		{ID: "gpt-4", ContextWindow: 8192, SupportsVision: false},
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
	_, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.getModel(""),
		MaxTokens: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
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

func (p *Provider) Chat(ctx context.Context, req provider.CompletionRequest) (*provider.ChatResponse, error) {
	return p.complete(ctx, req, false)
}

func (p *Provider) ChatWithTools(ctx context.Context, req provider.CompletionRequest) (*provider.ChatResponse, error) {
	return p.complete(ctx, req, true)
}

func (p *Provider) complete(ctx context.Context, req provider.CompletionRequest, withTools bool) (*provider.ChatResponse, error) {
	chatReq := p.buildRequest(req, withTools, false)

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return &provider.ChatResponse{}, nil
	}

	choice := resp.Choices[0]
	out := &provider.ChatResponse{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: &provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, message.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: []byte(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (p *Provider) ChatStreaming(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamEvent, error) {
	return p.stream(ctx, req, false)
}

func (p *Provider) ChatStreamingWithTools(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamEvent, error) {
	return p.stream(ctx, req, true)
}

func (p *Provider) stream(ctx context.Context, req provider.CompletionRequest, withTools bool) (<-chan provider.StreamEvent, error) {
	chatReq := p.buildRequest(req, withTools, true)

	sdkStream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err)
	}

	out := make(chan provider.StreamEvent, 16)
	go p.pump(sdkStream, out)
	return out, nil
}

// pump translates OpenAI's delta-accumulation stream into provider.StreamEvent
// values. Unlike Anthropic, OpenAI never emits an explicit block-start/stop
// pair for tool calls — deltas carry an index and are finalized only once the
// stream reports FinishReason "tool_calls" or "stop", or ends. We emit a
// synthetic content_block_start on a tool call's first delta (by index) and a
// content_block_stop for every started index when that finish reason or EOF
// arrives, so internal/assembler can treat both providers uniformly.
func (p *Provider) pump(stream *openai.ChatCompletionStream, out chan<- provider.StreamEvent) {
	defer close(out)
	defer stream.Close()

	started := make(map[int]bool)

	finalize := func() {
		for idx := range started {
			out <- provider.StreamEvent{Kind: provider.EventContentBlockStop, BlockIndex: idx}
		}
		started = make(map[int]bool)
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				finalize()
				out <- provider.StreamEvent{Kind: provider.EventMessageStop}
				return
			}
			out <- provider.StreamEvent{Kind: provider.EventError, Err: p.wrapError(err)}
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			out <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockType: provider.BlockTypeText, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if !started[index] {
				started[index] = true
				out <- provider.StreamEvent{
					Kind:       provider.EventContentBlockStart,
					BlockIndex: index,
					BlockType:  provider.BlockTypeToolUse,
					ToolCallID: tc.ID,
					ToolName:   tc.Function.Name,
				}
			} else if tc.ID != "" || tc.Function.Name != "" {
				// OpenAI sometimes splits id/name across a later delta on
				// the same index; forward as another start-shaped event so
				// the assembler can pick up the name/id it missed.
				out <- provider.StreamEvent{
					Kind:       provider.EventContentBlockStart,
					BlockIndex: index,
					BlockType:  provider.BlockTypeToolUse,
					ToolCallID: tc.ID,
					ToolName:   tc.Function.Name,
				}
			}
			if tc.Function.Arguments != "" {
				out <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: index, BlockType: provider.BlockTypeToolUse, InputDelta: tc.Function.Arguments}
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls || choice.FinishReason == openai.FinishReasonStop {
			finalize()
		}
	}
}

func (p *Provider) buildRequest(req provider.CompletionRequest, withTools, streaming bool) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.getModel(req.Model),
		Messages: p.convertMessages(req.Messages, req.System),
		Stream:   streaming,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if withTools && len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}
	return chatReq
}

func (p *Provider) convertMessages(messages []message.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		if msg.Role == message.RoleSystem {
			continue
		}

		// Tool results arrive as their own user-role message (one
		// message.Message per tool round); OpenAI wants one "tool" role
		// message per result, not folded into a user turn.
		var toolResults []message.ContentBlock
		var text string
		var toolUses []message.ContentBlock
		for _, b := range msg.Blocks {
			switch b.Kind {
			case message.BlockText:
				text += b.Text
			case message.BlockToolResult:
				toolResults = append(toolResults, b)
			case message.BlockToolUse:
				toolUses = append(toolUses, b)
			}
		}

		if len(toolResults) > 0 {
			for _, tr := range toolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.ToolResultContent,
					ToolCallID: tr.ToolUseID,
				})
			}
			continue
		}

		role := openai.ChatMessageRoleUser
		if msg.Role == message.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		oaiMsg := openai.ChatCompletionMessage{Role: role, Content: text}
		if len(toolUses) > 0 {
			oaiMsg.ToolCalls = make([]openai.ToolCall, len(toolUses))
			for i, tu := range toolUses {
				oaiMsg.ToolCalls[i] = openai.ToolCall{
					ID:   tu.ToolUseID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tu.ToolName,
						Arguments: string(tu.Input),
					},
				}
			}
		}
		result = append(result, oaiMsg)
	}

	return result
}

func (p *Provider) convertTools(tools []provider.ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func (p *Provider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &agenterr.ProviderError{
			Provider: "openai",
			Reason:   apiErr.Message,
			Status:   apiErr.HTTPStatusCode,
			Code:     fmt.Sprintf("%v", apiErr.Code),
			Cause:    err,
		}
	}
	return &agenterr.ProviderError{Provider: "openai", Reason: err.Error(), Cause: err}
}
