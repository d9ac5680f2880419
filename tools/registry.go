// Package tools is the dispatch table the orchestrator and the MCP server
// call actions through: each registered tool has a schema for the model and
// a handler that decodes arguments and runs an executor.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/JamesWemyss/psyclone/llm"
	"github.com/JamesWemyss/psyclone/tools/schemas"
	"github.com/rs/zerolog"
)

// ToolHandler runs one tool call with JSON arguments.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// UnknownToolError is returned by Handle for a name nothing registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

type tool struct {
	spec    llm.ToolSpec
	handler ToolHandler
}

// Registry maps tool names to handlers.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]tool
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "tool_registry").Logger()
	logger.Info().Msg("Creating new tool Registry")
	return &Registry{
		tools:  make(map[string]tool),
		logger: logger,
	}
}

// Register adds a handler under name, describing it with the schema of the
// same name from the schemas package when one exists.
func (r *Registry) Register(name string, h ToolHandler) {
	r.logger.Debug().Str("name", name).Msg("Registering tool handler")
	spec := llm.ToolSpec{Name: name, Schema: llm.ToolSchema{Type: "object", Properties: map[string]interface{}{}}}
	if s, ok := schemas.All()[name]; ok {
		spec = toSpec(name, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool{spec: spec, handler: h}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Specs returns the registered tool definitions sorted by name.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Handle dispatches a tool call. An unregistered name yields an
// *UnknownToolError.
func (r *Registry) Handle(ctx context.Context, toolName string, args []byte) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[toolName]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error().Str("tool", toolName).Msg("Unknown tool requested")
		return nil, &UnknownToolError{Name: toolName}
	}
	if len(args) == 0 {
		args = []byte("{}")
	}
	r.logger.Debug().Str("tool", toolName).RawJSON("args", compactJSON(args)).Msg("Executing tool")

	result, err := t.handler(ctx, json.RawMessage(args))
	if err != nil {
		r.logger.Warn().Str("tool", toolName).Err(err).Msg("Tool returned error")
		return nil, err
	}
	if b, e := json.Marshal(result); e == nil {
		r.logger.Debug().Str("tool", toolName).Str("result", truncate(string(b), 500)).Msg("Tool returned result")
	}
	return result, nil
}

func toSpec(name string, s schemas.ToolSchema) llm.ToolSpec {
	schema := llm.ToolSchema{Type: "object", Properties: map[string]interface{}{}}
	if t, ok := s.Schema["type"].(string); ok {
		schema.Type = t
	}
	if props, ok := s.Schema["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	if req, ok := s.Schema["required"].([]string); ok {
		schema.Required = req
	}
	return llm.ToolSpec{Name: name, Description: s.Description, Schema: schema}
}

// compactJSON returns args unchanged if valid, else a JSON string of them, so
// the log line stays valid JSON.
func compactJSON(args []byte) []byte {
	if json.Valid(args) {
		return args
	}
	b, _ := json.Marshal(string(args))
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}
