package openai

import (
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentcore/internal/agenterr"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/message"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewDefaultsModel(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.defaultModel != "gpt-4o" {
		t.Errorf("defaultModel = %q, want gpt-4o", p.defaultModel)
	}
}

func TestProviderIdentity(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	if p.Name() != "openai" {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.SupportsTools() {
		t.Error("SupportsTools() = false, want true")
	}
	caps := p.Capabilities()
	if !caps.SupportsStreaming || !caps.SupportsTools {
		t.Errorf("Capabilities() = %+v, want streaming+tools", caps)
	}
}

func TestGetModelFallsBackToDefault(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test", DefaultModel: "gpt-4-turbo"})
	if got := p.getModel(""); got != "gpt-4-turbo" {
		t.Errorf("getModel(\"\") = %q", got)
	}
	if got := p.getModel("gpt-4o"); got != "gpt-4o" {
		t.Errorf("getModel(explicit) = %q", got)
	}
}

func TestConvertMessagesPrependsSystem(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	out := p.convertMessages([]message.Message{message.NewTextMessage(message.RoleUser, "hi")}, "be terse")
	if len(out) != 2 {
		t.Fatalf("convertMessages() returned %d messages, want 2 (system + user)", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "be terse" {
		t.Errorf("first message = %+v, want system prompt", out[0])
	}
}

func TestConvertMessagesToolResultsBecomeOwnMessages(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	msgs := []message.Message{
		{
			Role: message.RoleUser,
			Blocks: []message.ContentBlock{
				message.ToolResultBlock(message.ToolResult{ToolUseID: "tu_1", ToolName: "calculator", Content: "5"}),
				message.ToolResultBlock(message.ToolResult{ToolUseID: "tu_2", ToolName: "calculator", Content: "6"}),
			},
		},
	}
	out := p.convertMessages(msgs, "")
	if len(out) != 2 {
		t.Fatalf("convertMessages() returned %d messages, want 2 tool messages", len(out))
	}
	for i, m := range out {
		if m.Role != openai.ChatMessageRoleTool {
			t.Errorf("message %d role = %q, want tool", i, m.Role)
		}
	}
	if out[0].ToolCallID != "tu_1" || out[1].ToolCallID != "tu_2" {
		t.Errorf("tool_call_id order not preserved: %+v", out)
	}
}

func TestConvertMessagesAssistantToolUse(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	msgs := []message.Message{
		{
			Role: message.RoleAssistant,
			Blocks: []message.ContentBlock{
				message.TextBlock("let me compute"),
				message.ToolUseBlock("tu_1", "calculator", json.RawMessage(`{"expression":"2+3"}`)),
			},
		},
	}
	out := p.convertMessages(msgs, "")
	if len(out) != 1 {
		t.Fatalf("convertMessages() returned %d messages, want 1", len(out))
	}
	if len(out[0].ToolCalls) != 1 || out[0].ToolCalls[0].Function.Name != "calculator" {
		t.Errorf("assistant tool calls = %+v", out[0].ToolCalls)
	}
}

func TestConvertToolsFallsBackOnInvalidSchema(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	out := p.convertTools([]provider.ToolSpec{
		{Name: "broken", Description: "d", InputSchema: json.RawMessage(`not json`)},
	})
	if len(out) != 1 {
		t.Fatalf("convertTools() returned %d tools, want 1", len(out))
	}
	fn := out[0].Function
	if fn == nil || fn.Name != "broken" {
		t.Fatalf("convertTools() function = %+v", fn)
	}
}

func TestBuildRequestOmitsToolsWhenDisabled(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	req := provider.CompletionRequest{
		Messages: []message.Message{message.NewTextMessage(message.RoleUser, "hi")},
		Tools: []provider.ToolSpec{
			{Name: "calculator", Description: "adds", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
	}
	chatReq := p.buildRequest(req, false, false)
	if len(chatReq.Tools) != 0 {
		t.Errorf("buildRequest(withTools=false) produced %d tools, want 0", len(chatReq.Tools))
	}
}

func TestBuildRequestSetsStreamFlag(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	req := provider.CompletionRequest{Messages: []message.Message{message.NewTextMessage(message.RoleUser, "hi")}}
	chatReq := p.buildRequest(req, false, true)
	if !chatReq.Stream {
		t.Error("buildRequest(streaming=true) did not set Stream")
	}
}

func TestWrapErrorNilIsNil(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	if p.wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
}

func TestWrapErrorWrapsGenericError(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	err := p.wrapError(errors.New("boom"))
	var pe *agenterr.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("wrapError() did not produce a *agenterr.ProviderError: %v", err)
	}
	if pe.Provider != "openai" {
		t.Errorf("ProviderError.Provider = %q", pe.Provider)
	}
}

func TestWrapErrorExtractsAPIError(t *testing.T) {
	p, _ := New(Config{APIKey: "sk-test"})
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}
	err := p.wrapError(apiErr)
	var pe *agenterr.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("wrapError() did not unwrap to *agenterr.ProviderError: %v", err)
	}
	if pe.Status != 429 || pe.Reason != "rate limited" {
		t.Errorf("ProviderError = %+v", pe)
	}
	if !pe.IsRetryable() {
		t.Error("429 provider error should be retryable")
	}
}
