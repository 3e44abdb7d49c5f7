// Package gateway implements the spec's LLM client (C2) against an
// OpenAI-compatible gateway, grounded on the teacher's internal/llm/openai
// client: same retry-loop shape and go-openai wiring, extended with
// tool-calling Response values and a degraded-sentinel return path instead
// of a terminal error on exhausted retries.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dealroom/orchestrator/internal/llm"
	"github.com/dealroom/orchestrator/internal/tool"
	openailib "github.com/sashabaranov/go-openai"
)

// Response is the result of a tool-calling turn: either plain content or a
// set of tool calls the caller must dispatch through the registry before
// the agent's turn can continue (spec.md §4.2).
type Response struct {
	Content   string
	ToolCalls []llm.ToolCall
	Degraded  bool // true when this is the placeholder returned after exhausted retries
}

// degradedContent is the parseable placeholder content returned instead of
// propagating an error once retries are exhausted, so a turn can still
// produce a Vote Record-shaped "abstain" rather than aborting outright.
const degradedContent = `{"direction":"hold","confidence":0,"rationale":"llm gateway unavailable"}`

// Client implements llm.LLMProvider plus the tool-calling extension,
// against any OpenAI-compatible endpoint (litellm, vLLM, Azure, ...).
type Client struct {
	client *openailib.Client
	config *Config
}

// NewClient builds a Client from an already-validated Config.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clientConfig := openailib.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(config.HTTPTimeout) * time.Second}

	return &Client{
		client: openailib.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// NewClientFromEnv builds a Client from the LLM_* environment variables.
func NewClientFromEnv() (*Client, error) {
	cfg, err := NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}
	return NewClient(cfg)
}

func toOpenAIMessages(messages []llm.Message) []openailib.ChatCompletionMessage {
	out := make([]openailib.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = openailib.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if msg.Role == llm.RoleTool && msg.ToolCallID != "" {
			out[i].ToolCallID = msg.ToolCallID
			out[i].Name = msg.Name
		}
		if msg.Role == llm.RoleAssistant && len(msg.ToolCalls) > 0 {
			tcs := make([]openailib.ToolCall, len(msg.ToolCalls))
			for j, tc := range msg.ToolCalls {
				tcs[j] = openailib.ToolCall{
					ID:   tc.ID,
					Type: openailib.ToolTypeFunction,
					Function: openailib.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			out[i].ToolCalls = tcs
		}
	}
	return out
}

// retryWait implements the spec's exponential 503 backoff: 2s, 4s, then
// give up (default MaxRetries == 2 retries, 3 attempts total).
func retryWait(attempt int) time.Duration {
	return time.Duration(2<<uint(attempt)) * time.Second
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openailib.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusServiceUnavailable || apiErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) completionWithRetry(ctx context.Context, req openailib.ChatCompletionRequest) (openailib.ChatCompletionResponse, error) {
	var resp openailib.ChatCompletionResponse
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, lastErr = c.client.CreateChatCompletion(ctx, req)
		if lastErr == nil {
			return resp, nil
		}
		if attempt == c.config.MaxRetries || !isRetryable(lastErr) {
			break
		}
		wait := retryWait(attempt)
		log.Printf("[LLM] retry %d/%d after %v, error: %v", attempt+1, c.config.MaxRetries, wait, lastErr)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return resp, ctx.Err()
		}
	}
	return resp, lastErr
}

// ChatText sends messages and returns plain assistant text, degrading to
// the sentinel placeholder rather than returning an error when the gateway
// is unreachable after retries (spec.md §4.2).
func (c *Client) ChatText(ctx context.Context, messages []llm.Message) (Response, error) {
	if len(messages) == 0 {
		return Response{}, fmt.Errorf("no messages to send")
	}

	req := openailib.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: toOpenAIMessages(messages),
	}
	c.applySampling(&req)

	resp, err := c.completionWithRetry(ctx, req)
	if err != nil {
		log.Printf("[LLM] chat text degraded after retries: %v", err)
		return Response{Content: degradedContent, Degraded: true}, nil
	}
	if len(resp.Choices) == 0 {
		return Response{Content: degradedContent, Degraded: true}, nil
	}
	return Response{Content: resp.Choices[0].Message.Content}, nil
}

// ChatWithTools sends messages plus a tool schema subset and returns either
// content or the model's requested tool calls (spec.md §4.2). toolChoice
// follows the OpenAI convention ("auto", "none", or a forced function name);
// empty defaults to "auto".
func (c *Client) ChatWithTools(ctx context.Context, messages []llm.Message, tools []tool.ToolDefinition, toolChoice string) (Response, error) {
	if len(messages) == 0 {
		return Response{}, fmt.Errorf("no messages to send")
	}

	openaiTools := make([]openailib.Tool, len(tools))
	for i, t := range tools {
		openaiTools[i] = openailib.Tool{
			Type: openailib.ToolTypeFunction,
			Function: &openailib.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		}
	}

	req := openailib.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: toOpenAIMessages(messages),
		Tools:    openaiTools,
	}
	if toolChoice != "" && toolChoice != "auto" {
		req.ToolChoice = toolChoice
	}
	c.applySampling(&req)

	resp, err := c.completionWithRetry(ctx, req)
	if err != nil {
		log.Printf("[LLM] tool-call turn degraded after retries: %v", err)
		return Response{Content: degradedContent, Degraded: true}, nil
	}
	if len(resp.Choices) == 0 {
		return Response{Content: degradedContent, Degraded: true}, nil
	}

	choice := resp.Choices[0].Message
	out := Response{Content: choice.Content}
	if len(choice.ToolCalls) > 0 {
		out.ToolCalls = make([]llm.ToolCall, len(choice.ToolCalls))
		for i, tc := range choice.ToolCalls {
			out.ToolCalls[i] = llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			}
		}
		names := make([]string, len(out.ToolCalls))
		for i, tc := range out.ToolCalls {
			names[i] = tc.Name
		}
		log.Printf("[LLM] tool-call turn returned %d call(s): %s", len(out.ToolCalls), strings.Join(names, ", "))
	}
	return out, nil
}

func (c *Client) applySampling(req *openailib.ChatCompletionRequest) {
	if c.config.Temperature != nil {
		req.Temperature = *c.config.Temperature
	}
	if c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}
}

// CallLLM implements llm.LLMProvider for components that only need text.
func (c *Client) CallLLM(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	resp, err := c.ChatText(ctx, messages)
	if err != nil {
		return llm.Message{}, err
	}
	return llm.Message{Role: llm.RoleAssistant, Content: resp.Content}, nil
}

// CallLLMStream falls back to CallLLM: the gateway client doesn't stream
// (spec.md's /chat and /v1/chat/completions surfaces are request/response).
func (c *Client) CallLLMStream(ctx context.Context, messages []llm.Message, onChunk llm.StreamCallback) (llm.Message, error) {
	msg, err := c.CallLLM(ctx, messages)
	if err == nil && onChunk != nil && msg.Content != "" {
		onChunk(msg.Content)
	}
	return msg, err
}

// GetName returns the provider identifier.
func (c *Client) GetName() string {
	return fmt.Sprintf("gateway(%s)", c.config.Model)
}
