// Package assembler reconstructs a provider.ChatResponse from a sequence of
// provider.StreamEvent values. It is generalized out of the Anthropic
// provider's original inline SSE state machine so any provider — Anthropic,
// OpenAI, or a future backend — can feed the same assembly rules.
package assembler

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/message"
)

type blockState struct {
	blockType provider.BlockType
	toolID    string
	toolName  string
	input     strings.Builder
}

// Assembler accumulates stream events into a single ChatResponse. It is not
// safe for concurrent use; one Assembler is created per model invocation.
type Assembler struct {
	logger *slog.Logger

	text     strings.Builder
	thinking strings.Builder

	active map[int]*blockState

	toolCalls []message.ToolCall
	usage     *provider.Usage
	stopReason string

	done bool
}

// New creates an Assembler. A nil logger defaults to slog.Default().
func New(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger, active: make(map[int]*blockState)}
}

// Consume drains events from ch until it closes or an Error event is
// observed, then returns the assembled response. Draining continues past
// MessageStop so a trailing Metadata event (some providers report usage
// after the stop) is still captured before the channel closes.
//
// If the channel closes without a MessageStop (a provider error mid-stream
// that still closed the channel cleanly), Consume returns a best-effort
// response built from whatever accumulated, with Usage left nil.
func (a *Assembler) Consume(ch <-chan provider.StreamEvent) (*provider.ChatResponse, error) {
	for ev := range ch {
		if _, err := a.Feed(ev); err != nil {
			return a.Response(), err
		}
	}
	return a.Response(), nil
}

// Feed processes one event. done reports that a terminal event
// (MessageStop or Done) has been observed; callers should keep feeding
// any remaining events — Metadata after the stop still updates usage —
// and call Response once the stream is exhausted. A non-nil err means the
// provider emitted an Error event: the stream must be abandoned and the
// error surfaced.
func (a *Assembler) Feed(ev provider.StreamEvent) (done bool, err error) {
	switch ev.Kind {
	case provider.EventContentBlockStart:
		// Some providers split a tool call's id/name across a later
		// start-shaped event on the same index; fill in what was missing
		// rather than replacing the state and losing accumulated input.
		if bs := a.active[ev.BlockIndex]; bs != nil {
			if bs.toolID == "" {
				bs.toolID = ev.ToolCallID
			}
			if bs.toolName == "" {
				bs.toolName = ev.ToolName
			}
		} else {
			a.active[ev.BlockIndex] = &blockState{blockType: ev.BlockType, toolID: ev.ToolCallID, toolName: ev.ToolName}
		}

	case provider.EventContentBlockDelta, provider.EventContentDelta:
		bs := a.active[ev.BlockIndex]
		switch {
		case bs != nil && bs.blockType == provider.BlockTypeToolUse:
			bs.input.WriteString(ev.InputDelta)
		case bs != nil && bs.blockType == provider.BlockTypeThinking:
			a.thinking.WriteString(ev.Text)
		default:
			a.text.WriteString(ev.Text)
		}

	case provider.EventToolCallStart:
		if bs := a.active[ev.BlockIndex]; bs != nil {
			if bs.toolID == "" {
				bs.toolID = ev.ToolCallID
			}
			if bs.toolName == "" {
				bs.toolName = ev.ToolName
			}
		} else {
			a.active[ev.BlockIndex] = &blockState{blockType: provider.BlockTypeToolUse, toolID: ev.ToolCallID, toolName: ev.ToolName}
		}

	case provider.EventToolCallDelta:
		if bs := a.active[ev.BlockIndex]; bs != nil {
			bs.input.WriteString(ev.InputDelta)
		}

	case provider.EventContentBlockStop:
		bs := a.active[ev.BlockIndex]
		if bs != nil && bs.blockType == provider.BlockTypeToolUse {
			a.finalizeToolCall(bs)
		}
		delete(a.active, ev.BlockIndex)

	case provider.EventMetadata:
		if ev.Usage != nil {
			a.usage = ev.Usage
		}

	case provider.EventMessageStop, provider.EventDone:
		if ev.Usage != nil {
			a.usage = ev.Usage
		}
		if ev.Text != "" && a.text.Len() == 0 {
			a.text.WriteString(ev.Text)
		}
		a.stopReason = ev.StopReason
		a.done = true
		return true, nil

	case provider.EventError:
		a.done = true
		return true, ev.Err
	}
	return a.done, nil
}

// finalizeToolCall parses the accumulated input string exactly once, at
// block close. On malformed JSON it substitutes an empty object and logs —
// the tool call still fires so the conversation stays valid (per the
// "JSON for a tool input is parsed exactly once" invariant).
func (a *Assembler) finalizeToolCall(bs *blockState) {
	raw := bs.input.String()
	var input json.RawMessage
	if raw == "" {
		input = json.RawMessage("{}")
	} else if json.Valid([]byte(raw)) {
		input = json.RawMessage(raw)
	} else {
		a.logger.Warn("tool input json parse failed, substituting empty object", "tool", bs.toolName, "tool_call_id", bs.toolID)
		input = json.RawMessage("{}")
	}
	name := bs.toolName
	if name == "" {
		name = bs.toolID
	}
	a.toolCalls = append(a.toolCalls, message.ToolCall{ID: bs.toolID, Name: name, Input: input})
}

// Response builds the ChatResponse from whatever has accumulated. Called
// both after a clean MessageStop (plus any trailing Metadata) and when the
// channel closed without one.
func (a *Assembler) Response() *provider.ChatResponse {
	usage := a.usage
	if !a.done {
		a.logger.Warn("stream closed without message_stop, returning best-effort response")
		usage = nil
	}
	// Any block still open at channel close (provider error mid-stream) is
	// dropped rather than finalized with a partial, likely-invalid JSON
	// fragment.
	return &provider.ChatResponse{
		Text:       a.text.String(),
		Thinking:   a.thinking.String(),
		ToolCalls:  a.toolCalls,
		StopReason: a.stopReason,
		Usage:      usage,
	}
}
