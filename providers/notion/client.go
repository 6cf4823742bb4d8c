// Package notion is a minimal Notion API client for creating pages.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const apiVersion = "2022-06-28"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL: "https://api.notion.com",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageRequest describes the page to create. Exactly one of DatabaseID or
// ParentPageID must be set.
type PageRequest struct {
	DatabaseID   string
	ParentPageID string
	Title        string
	Content      string
}

// Page is the created page reference.
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreatePage creates a titled page whose body is a single paragraph block.
func (c *Client) CreatePage(ctx context.Context, accessToken string, req PageRequest) (Page, error) {
	var parent map[string]any
	switch {
	case req.DatabaseID != "":
		parent = map[string]any{"database_id": req.DatabaseID}
	case req.ParentPageID != "":
		parent = map[string]any{"page_id": req.ParentPageID}
	default:
		return Page{}, fmt.Errorf("notion page needs a database_id or parent_page_id")
	}

	body := map[string]any{
		"parent": parent,
		"properties": map[string]any{
			"title": map[string]any{
				"title": []any{
					map[string]any{
						"text": map[string]any{"content": req.Title},
					},
				},
			},
		},
	}
	if req.Content != "" {
		body["children"] = []any{
			map[string]any{
				"object": "block",
				"type":   "paragraph",
				"paragraph": map[string]any{
					"rich_text": []any{
						map[string]any{
							"type": "text",
							"text": map[string]any{"content": req.Content},
						},
					},
				},
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Page{}, fmt.Errorf("failed to marshal notion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/pages", bytes.NewReader(payload))
	if err != nil {
		return Page{}, fmt.Errorf("failed to create notion request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Notion-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Page{}, fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("failed to read notion response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Page{}, &StatusError{Status: resp.StatusCode, Body: describeError(raw, resp.Status)}
	}

	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return Page{}, fmt.Errorf("failed to decode notion response: %w", err)
	}
	return page, nil
}

func describeError(raw []byte, fallback string) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// StatusError is a non-success Notion API response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notion API error (%d): %s", e.Status, e.Body)
}
