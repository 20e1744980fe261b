package assembler

import (
	"testing"

	"github.com/haasonsaas/agentcore/internal/provider"
)

func TestConsumeTextOnly(t *testing.T) {
	ch := make(chan provider.StreamEvent, 4)
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: 0, BlockType: provider.BlockTypeText}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, BlockType: provider.BlockTypeText, Text: "hello "}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, BlockType: provider.BlockTypeText, Text: "world"}
	ch <- provider.StreamEvent{Kind: provider.EventMessageStop, StopReason: "end_turn"}
	close(ch)

	resp, err := New(nil).Consume(ch)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if resp.Text != "hello world" {
		t.Errorf("Text = %q, want %q", resp.Text, "hello world")
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("StopReason = %q, want end_turn", resp.StopReason)
	}
}

func TestConsumeAssemblesToolCall(t *testing.T) {
	ch := make(chan provider.StreamEvent, 8)
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: 0, BlockType: provider.BlockTypeToolUse, ToolCallID: "call-1", ToolName: "search"}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, InputDelta: `{"q":`}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, InputDelta: `"hi"}`}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStop, BlockIndex: 0}
	ch <- provider.StreamEvent{Kind: provider.EventMessageStop}
	close(ch)

	resp, err := New(nil).Consume(ch)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls len = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call-1" || tc.Name != "search" {
		t.Errorf("tool call = %+v, want id=call-1 name=search", tc)
	}
	if string(tc.Input) != `{"q":"hi"}` {
		t.Errorf("Input = %s, want {\"q\":\"hi\"}", tc.Input)
	}
}

func TestConsumeMalformedToolInputSubstitutesEmptyObject(t *testing.T) {
	ch := make(chan provider.StreamEvent, 8)
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: 0, BlockType: provider.BlockTypeToolUse, ToolCallID: "call-1", ToolName: "search"}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, InputDelta: `{not valid json`}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStop, BlockIndex: 0}
	ch <- provider.StreamEvent{Kind: provider.EventMessageStop}
	close(ch)

	resp, err := New(nil).Consume(ch)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls len = %d, want 1 (malformed input should still fire the call)", len(resp.ToolCalls))
	}
	if string(resp.ToolCalls[0].Input) != "{}" {
		t.Errorf("Input = %s, want {} substituted for malformed json", resp.ToolCalls[0].Input)
	}
}

func TestConsumeThinkingNeverFoldedIntoText(t *testing.T) {
	ch := make(chan provider.StreamEvent, 8)
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: 0, BlockType: provider.BlockTypeThinking}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, BlockType: provider.BlockTypeThinking, Text: "reasoning..."}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStop, BlockIndex: 0}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: 1, BlockType: provider.BlockTypeText}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 1, BlockType: provider.BlockTypeText, Text: "final answer"}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStop, BlockIndex: 1}
	ch <- provider.StreamEvent{Kind: provider.EventMessageStop}
	close(ch)

	resp, err := New(nil).Consume(ch)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if resp.Text != "final answer" {
		t.Errorf("Text = %q, want %q", resp.Text, "final answer")
	}
	if resp.Thinking != "reasoning..." {
		t.Errorf("Thinking = %q, want %q", resp.Thinking, "reasoning...")
	}
}

func TestConsumeChannelClosedWithoutMessageStop(t *testing.T) {
	ch := make(chan provider.StreamEvent, 2)
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: 0, BlockType: provider.BlockTypeText}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, BlockType: provider.BlockTypeText, Text: "partial"}
	close(ch)

	resp, err := New(nil).Consume(ch)
	if err != nil {
		t.Fatalf("Consume() error = %v, want nil (best-effort fallback)", err)
	}
	if resp.Text != "partial" {
		t.Errorf("Text = %q, want %q", resp.Text, "partial")
	}
}

func TestConsumeCapturesTrailingMetadataAfterMessageStop(t *testing.T) {
	ch := make(chan provider.StreamEvent, 8)
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: 0, BlockType: provider.BlockTypeText}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, BlockType: provider.BlockTypeText, Text: "hi"}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStop, BlockIndex: 0}
	ch <- provider.StreamEvent{Kind: provider.EventMessageStop, StopReason: "end_turn"}
	ch <- provider.StreamEvent{Kind: provider.EventMetadata, Usage: &provider.Usage{InputTokens: 3, OutputTokens: 1, TotalTokens: 4}}
	close(ch)

	resp, err := New(nil).Consume(ch)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if resp.Text != "hi" {
		t.Errorf("Text = %q, want %q", resp.Text, "hi")
	}
	if resp.Usage == nil {
		t.Fatal("Usage = nil, want the usage from the metadata event trailing message_stop")
	}
	if resp.Usage.TotalTokens != 4 {
		t.Errorf("Usage.TotalTokens = %d, want 4", resp.Usage.TotalTokens)
	}
}

func TestFeedErrorEventSurfacesError(t *testing.T) {
	a := New(nil)
	done, err := a.Feed(provider.StreamEvent{Kind: provider.EventError, Err: errBoom})
	if !done {
		t.Fatal("Feed() done = false on EventError, want true")
	}
	if err != errBoom {
		t.Errorf("Feed() err = %v, want errBoom", err)
	}
	if a.Response() == nil {
		t.Error("Response() = nil, want a best-effort response")
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestConsumeLegacyEventSequence(t *testing.T) {
	ch := make(chan provider.StreamEvent, 8)
	ch <- provider.StreamEvent{Kind: provider.EventContentDelta, Text: "calling the calculator"}
	ch <- provider.StreamEvent{Kind: provider.EventToolCallStart, BlockIndex: 1, ToolCallID: "c1", ToolName: "calc"}
	ch <- provider.StreamEvent{Kind: provider.EventToolCallDelta, BlockIndex: 1, InputDelta: `{"x":`}
	ch <- provider.StreamEvent{Kind: provider.EventToolCallDelta, BlockIndex: 1, InputDelta: `1}`}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStop, BlockIndex: 1}
	ch <- provider.StreamEvent{Kind: provider.EventDone}
	close(ch)

	resp, err := New(nil).Consume(ch)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if resp.Text != "calling the calculator" {
		t.Errorf("Text = %q, want the legacy content delta folded in", resp.Text)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls len = %d, want 1", len(resp.ToolCalls))
	}
	if string(resp.ToolCalls[0].Input) != `{"x":1}` {
		t.Errorf("Input = %s, want {\"x\":1}", resp.ToolCalls[0].Input)
	}
}

func TestConsumeLateToolIdentityKeepsAccumulatedInput(t *testing.T) {
	// Some providers deliver a tool call's id/name in a later start-shaped
	// event on the same index, after input deltas have already arrived.
	ch := make(chan provider.StreamEvent, 8)
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: 0, BlockType: provider.BlockTypeToolUse}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, InputDelta: `{"q":`}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStart, BlockIndex: 0, BlockType: provider.BlockTypeToolUse, ToolCallID: "call-9", ToolName: "search"}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockDelta, BlockIndex: 0, InputDelta: `"late"}`}
	ch <- provider.StreamEvent{Kind: provider.EventContentBlockStop, BlockIndex: 0}
	ch <- provider.StreamEvent{Kind: provider.EventMessageStop}
	close(ch)

	resp, err := New(nil).Consume(ch)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls len = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call-9" || tc.Name != "search" {
		t.Errorf("tool call identity = %q/%q, want call-9/search picked up from the late event", tc.ID, tc.Name)
	}
	if string(tc.Input) != `{"q":"late"}` {
		t.Errorf("Input = %s, want both delta fragments preserved", tc.Input)
	}
}
