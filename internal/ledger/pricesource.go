package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPPriceSource implements PriceSource against the financial-data
// tool-routing endpoint spec.md §6 names (FINANCIAL_DATA_URL), using the
// same POST {server}/mcp/tools/{name} shape as
// internal/tool/remote.go's remoteTool — the ledger needs a mark price
// independent of any agent's tool call, so it talks to the endpoint
// directly rather than going through the tool registry.
type HTTPPriceSource struct {
	ServerURL  string
	httpClient *http.Client
}

// NewHTTPPriceSource builds a PriceSource backed by serverURL.
func NewHTTPPriceSource(serverURL string) *HTTPPriceSource {
	return &HTTPPriceSource{ServerURL: serverURL, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

type priceResponse struct {
	Success bool    `json:"success"`
	Result  float64 `json:"result"`
	Error   string  `json:"error"`
}

func (p *HTTPPriceSource) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/mcp/tools/financial_data", p.ServerURL)
	body, _ := json.Marshal(map[string]string{"symbol": symbol})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("financial data request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("financial data returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var parsed priceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("malformed financial data response: %w", err)
	}
	if !parsed.Success {
		return 0, fmt.Errorf("financial data error: %s", parsed.Error)
	}
	return parsed.Result, nil
}

// FixedPriceSource is a constant-price PriceSource for running without a
// configured FINANCIAL_DATA_URL (local dev, tests).
type FixedPriceSource struct {
	Price float64
}

func (p FixedPriceSource) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	return p.Price, nil
}
