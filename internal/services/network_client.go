package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// NetworkClient is the HTTP implementation of NetworkAPI against the
// payment network's case API.
type NetworkClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func NewNetworkClient(baseURL, apiKey string, log *zap.Logger) *NetworkClient {
	return &NetworkClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

func (c *NetworkClient) CreateCase(ctx context.Context, summary NetworkCaseSummary) (string, error) {
	var out struct {
		CaseID string `json:"case_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/cases", summary, &out); err != nil {
		return "", err
	}
	if out.CaseID == "" {
		return "", fmt.Errorf("network returned empty case id")
	}
	return out.CaseID, nil
}

func (c *NetworkClient) FetchCaseStatus(ctx context.Context, caseID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/cases/"+caseID, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *NetworkClient) IssueRefund(ctx context.Context, caseID string, amountMinor int64, currency string) error {
	body := map[string]any{
		"amount_minor": amountMinor,
		"currency":     currency,
	}
	return c.do(ctx, http.MethodPost, "/v1/cases/"+caseID+"/refund", body, nil)
}

func (c *NetworkClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("network request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Warn("network api error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", payload))
		return fmt.Errorf("network api %s: status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
