package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultRemoteTimeout bounds every remote tool invocation per spec §4.1.
const defaultRemoteTimeout = 30 * time.Second

// RemoteDescriptor addresses a tool hosted behind the MCP-style routing
// endpoint of spec §6: POST {ServerURL}/mcp/tools/{RemoteName}.
type RemoteDescriptor struct {
	ServerURL  string
	RemoteName string
}

// remoteTool adapts a RemoteDescriptor to the Tool interface. Unlike the
// teacher's internal/mcp.Client, there is no stdio/SSE handshake: spec §6
// describes a plain HTTP POST against a pre-addressed routing endpoint,
// so this talks directly over net/http.
type remoteTool struct {
	name        string
	description string
	schema      json.RawMessage
	desc        RemoteDescriptor
	httpClient  *http.Client
}

// NewRemoteTool registers a tool whose resolver forwards to a remote
// tool-routing endpoint.
func NewRemoteTool(name, description string, schema json.RawMessage, desc RemoteDescriptor) Tool {
	return &remoteTool{
		name:        name,
		description: description,
		schema:      schema,
		desc:        desc,
		httpClient:  &http.Client{Timeout: defaultRemoteTimeout},
	}
}

func (t *remoteTool) Name() string                 { return t.name }
func (t *remoteTool) Description() string          { return t.description }
func (t *remoteTool) InputSchema() json.RawMessage { return t.schema }
func (t *remoteTool) Init(context.Context) error   { return nil }
func (t *remoteTool) Close() error                 { return nil }

// remoteResponse mirrors the {success, result, error?} shape of spec §6's
// tool-routing endpoint.
type remoteResponse struct {
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Error   string `json:"error"`
}

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	url := fmt.Sprintf("%s/mcp/tools/%s", t.desc.ServerURL, t.desc.RemoteName)

	body := args
	if len(body) == 0 {
		body = []byte("{}")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: err.Error(), Summary: fmt.Sprintf("%s: failed to build request", t.name)}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Result{Success: false, Error: err.Error(), Summary: fmt.Sprintf("%s: remote call failed (%v)", t.name, err)}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Success: false, Error: err.Error(), Summary: fmt.Sprintf("%s: failed to read remote response", t.name)}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{
			Success: false,
			Error:   fmt.Sprintf("remote returned HTTP %d: %s", resp.StatusCode, string(raw)),
			Summary: fmt.Sprintf("%s: remote service error (HTTP %d)", t.name, resp.StatusCode),
		}, nil
	}

	var parsed remoteResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{Success: false, Error: err.Error(), Summary: fmt.Sprintf("%s: malformed remote response", t.name)}, nil
	}

	if !parsed.Success {
		return Result{Success: false, Error: parsed.Error, Summary: fmt.Sprintf("%s: %s", t.name, parsed.Error)}, nil
	}

	return Result{
		Success: true,
		Result:  parsed.Result,
		Summary: fmt.Sprintf("%s completed successfully", t.name),
	}, nil
}
