// Package message defines the conversation data model shared by the tool
// registry, the stream assembler, the evaluator, and the event loop: typed
// messages built from content blocks, plus the tool call/result pair that
// ties a model-emitted ToolUse block to its dispatched outcome.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// BlockKind distinguishes the variants of ContentBlock.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockThinking   BlockKind = "thinking"
)

// ContentBlock is a single segment of a Message. Only the fields relevant to
// Kind are populated; the others are zero. Thinking blocks carry a reasoning
// delta and are never persisted back into provider-facing history text.
type ContentBlock struct {
	Kind BlockKind

	// Text holds the body for BlockText and the reasoning delta for BlockThinking.
	Text string

	// ToolUseID identifies the tool invocation for BlockToolUse and BlockToolResult.
	ToolUseID string
	// ToolName is set on BlockToolUse; may be empty on BlockToolResult.
	ToolName string
	// Input is the structured arguments for BlockToolUse.
	Input json.RawMessage

	// ToolResultContent and IsError apply to BlockToolResult.
	ToolResultContent string
	IsError           bool
	Attachments       []Attachment
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

func ThinkingBlock(delta string) ContentBlock {
	return ContentBlock{Kind: BlockThinking, Text: delta}
}

func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Kind: BlockToolUse, ToolUseID: id, ToolName: name, Input: input}
}

func ToolResultBlock(r ToolResult) ContentBlock {
	return ContentBlock{
		Kind:              BlockToolResult,
		ToolUseID:         r.ToolUseID,
		ToolName:          r.ToolName,
		ToolResultContent: r.Content,
		IsError:           r.IsError,
		Attachments:       r.Attachments,
	}
}

// Attachment is a binary or referenced artifact attached to a tool result or
// a user message (e.g. an image a tool produced).
type Attachment struct {
	MediaType string
	Data      []byte
	URL       string
}

// ToolCall is a model-requested tool invocation, extracted from an
// assistant message's ToolUse blocks.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the single, unified result shape produced by tool
// dispatch. Every package that needs a tool result — the registry, the
// executor, the event loop — uses this type rather than defining its own.
type ToolResult struct {
	ToolUseID   string
	ToolName    string
	Content     string
	IsError     bool
	Duration    time.Duration
	Attachments []Attachment
}

// ErrorResult builds a failed ToolResult carrying a human-readable message.
func ErrorResult(toolUseID, toolName, msg string) ToolResult {
	return ToolResult{ToolUseID: toolUseID, ToolName: toolName, Content: msg, IsError: true}
}

// Message is one turn in a conversation: a role plus an ordered sequence of
// content blocks.
type Message struct {
	Role      Role
	Blocks    []ContentBlock
	Timestamp time.Time
}

// NewTextMessage builds a single-block text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Blocks: []ContentBlock{TextBlock(text)}, Timestamp: time.Now()}
}

// ToolUses returns the ToolUse blocks in this message, in order.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Blocks {
		if b.Kind == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// Text concatenates the Text blocks in this message (thinking blocks excluded).
func (m Message) Text() string {
	var s string
	for _, b := range m.Blocks {
		if b.Kind == BlockText {
			s += b.Text
		}
	}
	return s
}

func (m Message) clone() Message {
	blocks := make([]ContentBlock, len(m.Blocks))
	copy(blocks, m.Blocks)
	return Message{Role: m.Role, Blocks: blocks, Timestamp: m.Timestamp}
}

// ConversationManager owns an ordered message history plus an optional
// system prompt. It is single-writer: callers must not mutate it
// concurrently from multiple goroutines. Cloning produces an independent
// copy suitable for handing to an EventLoop for the duration of one
// execution.
type ConversationManager struct {
	system   string
	messages []Message
}

func NewConversationManager(system string) *ConversationManager {
	return &ConversationManager{system: system}
}

func (c *ConversationManager) System() string { return c.system }

func (c *ConversationManager) SetSystem(system string) { c.system = system }

func (c *ConversationManager) Append(m Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	c.messages = append(c.messages, m)
}

func (c *ConversationManager) AddUserText(text string) {
	c.Append(NewTextMessage(RoleUser, text))
}

// Messages returns the live slice of messages. Callers that need a
// snapshot should use Clone instead.
func (c *ConversationManager) Messages() []Message {
	return c.messages
}

func (c *ConversationManager) Len() int { return len(c.messages) }

// Clone returns a deep copy whose message slice and blocks are independent
// of the receiver's.
func (c *ConversationManager) Clone() *ConversationManager {
	clone := &ConversationManager{system: c.system, messages: make([]Message, len(c.messages))}
	for i, m := range c.messages {
		clone.messages[i] = m.clone()
	}
	return clone
}

// ReplaceFrom overwrites the receiver's system prompt and history with
// copies of other's.
// Used by the Agent façade to write a child EventLoop's final state back
// into the owning Agent's conversation.
func (c *ConversationManager) ReplaceFrom(other *ConversationManager) {
	c.system = other.system
	c.messages = make([]Message, len(other.messages))
	for i, m := range other.messages {
		c.messages[i] = m.clone()
	}
}

// ValidateToolPairing checks the invariant that every ToolUse block is
// immediately followed, in the next message, by a ToolResult with a
// matching ToolUseID. It is used by tests and can be called defensively
// before a provider call.
func (c *ConversationManager) ValidateToolPairing() error {
	for i, m := range c.messages {
		uses := m.ToolUses()
		if len(uses) == 0 {
			continue
		}
		if i+1 >= len(c.messages) {
			return fmt.Errorf("message %d has unmatched tool_use blocks: no following message", i)
		}
		next := c.messages[i+1]
		have := make(map[string]bool, len(uses))
		for _, b := range next.Blocks {
			if b.Kind == BlockToolResult {
				have[b.ToolUseID] = true
			}
		}
		for _, u := range uses {
			if !have[u.ToolUseID] {
				return fmt.Errorf("tool_use %s in message %d has no matching tool_result in message %d", u.ToolUseID, i, i+1)
			}
		}
	}
	return nil
}
