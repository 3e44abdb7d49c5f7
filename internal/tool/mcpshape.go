package tool

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToMCPTool converts a registered Tool into the mark3labs/mcp-go wire
// shape, so internal/web's tool-listing endpoint can advertise the
// catalogue to MCP-aware clients without a second schema dialect: the
// remote resolver already talks MCP-shaped JSON to tool-routing servers
// (spec.md §6), this is the same shape surfaced outward.
func ToMCPTool(t Tool) mcp.Tool {
	var schema mcp.ToolInputSchema
	if raw := t.InputSchema(); len(raw) > 0 {
		_ = json.Unmarshal(raw, &schema)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return mcp.Tool{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: schema,
	}
}

// MCPCatalogue converts every tool in a registry's List() to the MCP wire
// shape, sorted the same way Registry.List already sorts.
func MCPCatalogue(r *Registry) []mcp.Tool {
	tools := r.List()
	out := make([]mcp.Tool, len(tools))
	for i, t := range tools {
		out[i] = ToMCPTool(t)
	}
	return out
}
