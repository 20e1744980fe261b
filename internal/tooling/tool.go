// Package tooling implements the Tool Registry: name-to-tool mapping,
// schema export for the model, and dispatch by name with input validation.
package tooling

import (
	"context"
	"encoding/json"
)

// Tool is the interface every callable tool implements.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (Result, error)
}

// Result is a tool's raw execution outcome, before it is wrapped into the
// conversation's unified message.ToolResult by the executor. Duration is
// measured by the executor, not the tool, so it is not part of this type.
type Result struct {
	Success bool
	Output  string
	Error   string
}
