package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/haasonsaas/agentcore/internal/agenterr"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/message"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxToolNameLength bounds a tool name accepted by Execute.
const MaxToolNameLength = 256

// MaxToolParamsSize bounds the raw size of a tool's input payload (10MB).
const MaxToolParamsSize = 10 << 20

// Registry is a concurrency-safe name-to-tool map with schema export and
// dispatch by name.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	schemas   map[string]*jsonschema.Schema
	validate  bool
}

// NewRegistry creates an empty Registry. When validateInput is true,
// Execute validates a tool's input against its declared JSON schema before
// invocation, using github.com/santhosh-tekuri/jsonschema/v5.
func NewRegistry(validateInput bool) *Registry {
	return &Registry{tools: make(map[string]Tool), schemas: make(map[string]*jsonschema.Schema), validate: validateInput}
}

// Register adds a tool, compiling its declared schema if validation is
// enabled. A schema compile failure is returned immediately — this is a
// construction-time ConfigurationError, not a runtime one.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if r.validate {
		schema := t.ParametersSchema()
		if len(schema) > 0 {
			compiler := jsonschema.NewCompiler()
			if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
				return fmt.Errorf("tool %q: compile schema: %w", name, err)
			}
			compiled, err := compiler.Compile(name)
			if err != nil {
				return fmt.Errorf("tool %q: compile schema: %w", name, err)
			}
			r.schemas[name] = compiled
		}
	}
	r.tools[name] = t
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// AsToolSpecs exports the registry's contents as provider-facing tool
// descriptors.
func (r *Registry) AsToolSpecs() []provider.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]provider.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, provider.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.ParametersSchema(),
		})
	}
	return specs
}

// Execute dispatches a single named tool call. Rather than returning a Go
// error for "tool not found" or "invalid input", it returns a failed
// message.ToolResult — per §4.C3, a missing tool must not abort a batch,
// it must produce a failed result in the output slot.
func (r *Registry) Execute(ctx context.Context, call message.ToolCall) message.ToolResult {
	if len(call.Name) > MaxToolNameLength {
		return message.ErrorResult(call.ID, call.Name, "tool name exceeds maximum length")
	}
	if len(call.Input) > MaxToolParamsSize {
		return message.ErrorResult(call.ID, call.Name, "tool input exceeds maximum size")
	}

	t, ok := r.Get(call.Name)
	if !ok {
		return message.ErrorResult(call.ID, call.Name, fmt.Sprintf("Tool '%s' not found", call.Name))
	}

	if r.validate {
		if schema, ok := r.schemaFor(call.Name); ok {
			var v any
			if err := json.Unmarshal(call.Input, &v); err == nil {
				if err := schema.Validate(v); err != nil {
					return message.ErrorResult(call.ID, call.Name, fmt.Sprintf("invalid input: %v", err))
				}
			}
		}
	}

	res, err := t.Execute(ctx, call.Input)
	if err != nil {
		te := agenterr.NewToolError(call.Name, err).WithToolCallID(call.ID)
		return message.ErrorResult(call.ID, call.Name, te.Error())
	}
	if !res.Success {
		return message.ErrorResult(call.ID, call.Name, res.Error)
	}
	return message.ToolResult{ToolUseID: call.ID, ToolName: call.Name, Content: res.Output}
}

func (r *Registry) schemaFor(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}
