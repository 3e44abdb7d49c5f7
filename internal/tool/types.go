package tool

import (
	"context"
	"encoding/json"
)

// Tool is the unified interface for all tools reachable through the
// registry, whether backed by a local handler or a remote MCP-style
// routing endpoint.
type Tool interface {
	// Name returns the tool identifier (LLM uses this name to invoke the tool).
	Name() string

	// Description returns a natural-language description for LLM prompt injection.
	Description() string

	// InputSchema returns a standard JSON Schema defining the tool's parameters.
	// Compatible with MCP protocol and OpenAI Function Calling.
	InputSchema() json.RawMessage

	// Execute runs the tool with JSON-encoded arguments already coerced by
	// the registry against InputSchema.
	Execute(ctx context.Context, args json.RawMessage) (Result, error)

	// Init initializes tool resources (e.g. remote connection warmup).
	// Native tools may return nil.
	Init(ctx context.Context) error

	// Close releases tool resources.
	Close() error
}

// Decision marks a tool interface member as carrying observable
// side effects on the ledger. Tools implementing it are subject to the
// at-most-one-per-turn cap described in spec §4.4.
type Decision interface {
	IsDecisionTool() bool
}

// Result is the outcome of invoking a tool through the registry.
// Success is always populated; Summary is mandatory so callers can embed
// it directly into a downstream prompt without additional formatting.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// SchemaParam describes a single parameter for the BuildSchema helper.
type SchemaParam struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "string", "integer", "boolean", "number", "object", "array"
	Description string   `json:"description"`
	Required    bool     `json:"-"`
	Enum        []string `json:"enum,omitempty"`
}

// BuildSchema generates a standard JSON Schema object from a list of
// SchemaParams. Output is OpenAI-function-calling and MCP compatible:
//
//	{"type":"object","properties":{"symbol":{"type":"string","description":"trading pair"}},"required":["symbol"]}
func BuildSchema(params ...SchemaParam) json.RawMessage {
	properties := make(map[string]any)
	var required []string

	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	data, _ := json.Marshal(schema)
	return data
}

// ToolDefinition is the OpenAI-compatible tool-schema entry shape
// (spec §9 "Tool schemas") used when building an LLM tool-calling request.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function ToolDefinitionFunc `json:"function"`
}

// ToolDefinitionFunc is the "function" member of a ToolDefinition.
type ToolDefinitionFunc struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}
