package message

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageText(t *testing.T) {
	m := Message{Blocks: []ContentBlock{
		TextBlock("hello "),
		ThinkingBlock("ignored reasoning"),
		TextBlock("world"),
	}}
	if got := m.Text(); got != "hello world" {
		t.Errorf("Text() = %q, want %q", got, "hello world")
	}
}

func TestMessageToolUses(t *testing.T) {
	m := Message{Blocks: []ContentBlock{
		TextBlock("thinking about it"),
		ToolUseBlock("call-1", "search", json.RawMessage(`{"q":"x"}`)),
		ToolResultBlock(ToolResult{ToolUseID: "call-0", Content: "prior result"}),
	}}
	uses := m.ToolUses()
	if len(uses) != 1 {
		t.Fatalf("ToolUses() returned %d blocks, want 1", len(uses))
	}
	if uses[0].ToolUseID != "call-1" || uses[0].ToolName != "search" {
		t.Errorf("ToolUses()[0] = %+v, want call-1/search", uses[0])
	}
}

func TestConversationManagerCloneIsIndependent(t *testing.T) {
	cm := NewConversationManager("system prompt")
	cm.AddUserText("hi")

	clone := cm.Clone()
	clone.AddUserText("added only to clone")

	if cm.Len() != 1 {
		t.Errorf("original Len() = %d after cloning, want 1 (clone must not alias)", cm.Len())
	}
	if clone.Len() != 2 {
		t.Errorf("clone Len() = %d, want 2", clone.Len())
	}
}

func TestConversationManagerReplaceFrom(t *testing.T) {
	cm := NewConversationManager("system")
	cm.AddUserText("original")

	other := NewConversationManager("replaced system")
	other.AddUserText("a")
	other.AddUserText("b")

	cm.ReplaceFrom(other)

	if cm.System() != "replaced system" {
		t.Errorf("System() = %q, want %q", cm.System(), "replaced system")
	}
	if cm.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cm.Len())
	}

	// Mutating other afterward must not affect cm.
	other.AddUserText("c")
	if cm.Len() != 2 {
		t.Errorf("Len() = %d after mutating other, want 2 (ReplaceFrom must deep-copy)", cm.Len())
	}
}

func TestValidateToolPairingMatched(t *testing.T) {
	cm := NewConversationManager("")
	cm.Append(Message{Role: RoleAssistant, Blocks: []ContentBlock{
		ToolUseBlock("1", "search", nil),
	}})
	cm.Append(Message{Role: RoleUser, Blocks: []ContentBlock{
		ToolResultBlock(ToolResult{ToolUseID: "1", Content: "ok"}),
	}})

	if err := cm.ValidateToolPairing(); err != nil {
		t.Errorf("ValidateToolPairing() = %v, want nil", err)
	}
}

func TestValidateToolPairingUnmatched(t *testing.T) {
	cm := NewConversationManager("")
	cm.Append(Message{Role: RoleAssistant, Blocks: []ContentBlock{
		ToolUseBlock("1", "search", nil),
	}})
	cm.Append(Message{Role: RoleUser, Blocks: []ContentBlock{TextBlock("no result attached")}})

	err := cm.ValidateToolPairing()
	if err == nil {
		t.Fatal("ValidateToolPairing() = nil, want error for unmatched tool_use")
	}
	if !strings.Contains(err.Error(), "1") {
		t.Errorf("error %q does not reference the unmatched tool_use id", err.Error())
	}
}

func TestValidateToolPairingTrailingToolUse(t *testing.T) {
	cm := NewConversationManager("")
	cm.Append(Message{Role: RoleAssistant, Blocks: []ContentBlock{
		ToolUseBlock("1", "search", nil),
	}})

	if err := cm.ValidateToolPairing(); err == nil {
		t.Error("ValidateToolPairing() = nil, want error for trailing tool_use with no following message")
	}
}

func TestErrorResult(t *testing.T) {
	r := ErrorResult("id-1", "mytool", "boom")
	if !r.IsError {
		t.Error("ErrorResult().IsError = false, want true")
	}
	if r.Content != "boom" {
		t.Errorf("Content = %q, want %q", r.Content, "boom")
	}
}
