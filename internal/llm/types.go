package llm

import (
	"context"
	"encoding/json"
)

// Message represents a chat message for LLM communication.
type Message struct {
	Role             string `json:"role"`                        // "system", "user", "assistant", "tool"
	Content          string `json:"content"`                     // The message text
	ReasoningContent string `json:"reasoning_content,omitempty"` // Native thinking output

	// Tool-calling fields, populated when Role == RoleAssistant and the
	// model elected to call one or more tools, or when Role == RoleTool
	// and this message carries a tool's result back to the model.
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is one function-call the model requested.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// StreamCallback is invoked for each chunk of streamed text.
// Implementations should be lightweight; heavy work should be deferred.
type StreamCallback func(chunk string)

// LLMProvider defines the interface for all LLM implementations.
// Any OpenAI-compatible endpoint (litellm, Ollama, Azure, vLLM, the
// gateway's own /chat shim) can be used by implementing this interface.
type LLMProvider interface {
	// CallLLM sends messages to the LLM and returns the complete response.
	CallLLM(ctx context.Context, messages []Message) (Message, error)

	// CallLLMStream sends messages and streams the response token-by-token.
	// Each chunk of text triggers the onChunk callback.
	// Returns the full assembled message once streaming finishes.
	CallLLMStream(ctx context.Context, messages []Message, onChunk StreamCallback) (Message, error)

	// GetName returns the provider name/identifier.
	GetName() string
}

// Role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)
