package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/agentcore/pkg/message"
)

type echoTool struct {
	schema json.RawMessage
	fail   error
}

func (e *echoTool) Name() string                       { return "echo" }
func (e *echoTool) Description() string                 { return "echoes its input" }
func (e *echoTool) ParametersSchema() json.RawMessage   { return e.schema }
func (e *echoTool) Execute(_ context.Context, input json.RawMessage) (Result, error) {
	if e.fail != nil {
		return Result{}, e.fail
	}
	return Result{Success: true, Output: string(input)}, nil
}

func TestRegistryExecuteSuccess(t *testing.T) {
	r := NewRegistry(false)
	if err := r.Register(&echoTool{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := r.Execute(context.Background(), message.ToolCall{ID: "1", Name: "echo", Input: json.RawMessage(`{"x":1}`)})
	if result.IsError {
		t.Fatalf("Execute() IsError = true, content = %q", result.Content)
	}
	if result.Content != `{"x":1}` {
		t.Errorf("Content = %q, want input echoed back", result.Content)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(false)
	result := r.Execute(context.Background(), message.ToolCall{ID: "1", Name: "missing"})
	if !result.IsError {
		t.Fatal("Execute() IsError = false for unknown tool, want true")
	}
	if !strings.Contains(result.Content, "not found") {
		t.Errorf("Content = %q, want a not-found message", result.Content)
	}
}

func TestRegistryExecuteToolError(t *testing.T) {
	r := NewRegistry(false)
	if err := r.Register(&echoTool{fail: errors.New("boom")}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	result := r.Execute(context.Background(), message.ToolCall{ID: "1", Name: "echo"})
	if !result.IsError {
		t.Fatal("Execute() IsError = false, want true on tool error")
	}
}

func TestRegistryExecuteToolReportsFailure(t *testing.T) {
	r := NewRegistry(false)
	r.Register(failingResultTool{})
	result := r.Execute(context.Background(), message.ToolCall{ID: "1", Name: "fails"})
	if !result.IsError {
		t.Fatal("Execute() IsError = false, want true when Result.Success is false")
	}
	if result.Content != "explicit failure" {
		t.Errorf("Content = %q, want the tool's Error field surfaced", result.Content)
	}
}

type failingResultTool struct{}

func (failingResultTool) Name() string                     { return "fails" }
func (failingResultTool) Description() string               { return "" }
func (failingResultTool) ParametersSchema() json.RawMessage { return nil }
func (failingResultTool) Execute(context.Context, json.RawMessage) (Result, error) {
	return Result{Success: false, Error: "explicit failure"}, nil
}

func TestRegistryValidatesInputAgainstSchema(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)
	r := NewRegistry(true)
	if err := r.Register(&echoTool{schema: schema}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := r.Execute(context.Background(), message.ToolCall{ID: "1", Name: "echo", Input: json.RawMessage(`{}`)})
	if !result.IsError {
		t.Fatal("Execute() IsError = false for input missing a required field, want true")
	}

	ok := r.Execute(context.Background(), message.ToolCall{ID: "2", Name: "echo", Input: json.RawMessage(`{"name":"x"}`)})
	if ok.IsError {
		t.Errorf("Execute() IsError = true for valid input, content = %q", ok.Content)
	}
}

func TestRegisterRejectsInvalidSchema(t *testing.T) {
	r := NewRegistry(true)
	err := r.Register(&echoTool{schema: json.RawMessage(`{"type": 123}`)})
	if err == nil {
		t.Fatal("Register() error = nil, want a schema compile error")
	}
}

func TestRegistryNameLengthBound(t *testing.T) {
	r := NewRegistry(false)
	longName := strings.Repeat("a", MaxToolNameLength+1)
	result := r.Execute(context.Background(), message.ToolCall{ID: "1", Name: longName})
	if !result.IsError {
		t.Fatal("Execute() IsError = false for over-length tool name, want true")
	}
}

func TestAsToolSpecs(t *testing.T) {
	r := NewRegistry(false)
	r.Register(&echoTool{})
	specs := r.AsToolSpecs()
	if len(specs) != 1 || specs[0].Name != "echo" {
		t.Errorf("AsToolSpecs() = %+v, want one spec named echo", specs)
	}
}
