// Package telegram is a minimal Telegram Bot API client for sending
// messages and polling inbound updates.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

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
		baseURL: "https://api.telegram.org",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage posts text to a chat and returns the provider message id.
func (c *Client) SendMessage(ctx context.Context, botToken, chatID, text string) (int64, error) {
	payload, err := json.Marshal(map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal telegram request: %w", err)
	}

	var result struct {
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := c.call(ctx, botToken, "sendMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.Result.MessageID, nil
}

// Update is one inbound bot update carrying a message.
type Update struct {
	UpdateID int64         `json:"update_id"`
	Message  UpdateMessage `json:"message"`
}

type UpdateMessage struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Date      int64  `json:"date"`
	From      User   `json:"from"`
	Chat      Chat   `json:"chat"`
}

type User struct {
	Username string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// GetUpdates polls for updates after the given offset. Passing offset+1 of
// the last seen update id keeps the poll idempotent.
func (c *Client) GetUpdates(ctx context.Context, botToken string, offset int64) ([]Update, error) {
	body := map[string]any{}
	if offset > 0 {
		body["offset"] = offset
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal telegram request: %w", err)
	}

	var result struct {
		Result []Update `json:"result"`
	}
	if err := c.call(ctx, botToken, "getUpdates", payload, &result); err != nil {
		return nil, err
	}
	return result.Result, nil
}

func (c *Client) call(ctx context.Context, botToken, method string, payload []byte, out any) error {
	endpoint := c.baseURL + "/bot" + botToken + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Body: describeError(raw, resp.StatusCode)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode telegram response: %w", err)
	}
	return nil
}

func describeError(raw []byte, status int) string {
	var apiErr struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Description != "" {
		return apiErr.Description
	}
	return strconv.Itoa(status)
}

// StatusError is a non-success Telegram Bot API response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telegram API error (%d): %s", e.Status, e.Body)
}
