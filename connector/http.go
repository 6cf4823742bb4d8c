package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowbothq/flowbot/interp"
)

// HTTP calls an arbitrary endpoint with the step payload. It needs no
// stored connection. On a non-success status it still reports the status
// and response body alongside the error so the run log shows what the
// endpoint said.
type HTTP struct {
	client *http.Client
}

type HTTPOption func(*HTTP)

func WithHTTPTransport(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		if client != nil {
			h.client = client
		}
	}
}

func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{client: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTP) Kind() Kind { return KindHTTP }

func (h *HTTP) Execute(ctx context.Context, req Request) (map[string]any, error) {
	url, err := requireString(req.Config, "url", "webhook_url")
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(optionalString(req.Config, "method"))
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet {
		payload := req.Config["payload"]
		if payload == nil {
			payload = req.Context
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := req.Config["headers"].(map[string]any); ok {
		for name, value := range headers {
			httpReq.Header.Set(name, interp.Stringify(value))
		}
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	var response any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &response); err != nil {
			response = string(raw)
		}
	}

	output := map[string]any{
		"status":   resp.StatusCode,
		"response": response,
		"url":      url,
	}
	if resp.StatusCode >= 300 {
		return output, &APIError{Service: "http", Status: resp.StatusCode, Message: truncate(string(raw), 500)}
	}
	return output, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
