// Package gmail is a minimal Gmail REST client covering the send and
// list/read paths the workflow engine needs.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultMaxResults = 5

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
		baseURL: "https://gmail.googleapis.com",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Message is the metadata the engine cares about for one inbox item.
type Message struct {
	ID      string `json:"id"`
	Subject string `json:"subject,omitempty"`
	From    string `json:"from,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Send submits an RFC822 message and returns the provider message id.
func (c *Client) Send(ctx context.Context, accessToken, to, subject, body string) (string, error) {
	envelope := strings.Join([]string{
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\n")

	payload, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(envelope)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal gmail send request: %w", err)
	}

	var result struct {
		ID string `json:"id"`
	}
	err = c.do(ctx, accessToken, http.MethodPost, "/gmail/v1/users/me/messages/send", payload, &result)
	if err != nil {
		return "", err
	}
	return result.ID, nil
}

// ListNew returns messages matching query with an id strictly greater than
// afterID (Gmail ids are time-ordered hex strings, so a plain string
// comparison gives "newer than the watermark").
func (c *Client) ListNew(ctx context.Context, accessToken, query, afterID string) ([]Message, error) {
	params := url.Values{}
	if strings.TrimSpace(query) != "" {
		params.Set("q", query)
	}
	params.Set("maxResults", fmt.Sprintf("%d", defaultMaxResults))

	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	path := "/gmail/v1/users/me/messages?" + params.Encode()
	if err := c.do(ctx, accessToken, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		if afterID != "" && ref.ID <= afterID {
			continue
		}
		msg, err := c.getMessage(ctx, accessToken, ref.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Client) getMessage(ctx context.Context, accessToken, id string) (Message, error) {
	var raw struct {
		ID      string `json:"id"`
		Snippet string `json:"snippet"`
		Payload struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
		} `json:"payload"`
	}
	path := "/gmail/v1/users/me/messages/" + url.PathEscape(id) + "?format=metadata"
	if err := c.do(ctx, accessToken, http.MethodGet, path, nil, &raw); err != nil {
		return Message{}, err
	}

	msg := Message{ID: raw.ID, Snippet: raw.Snippet}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.From = h.Value
		case "date":
			msg.Date = h.Value
		}
	}
	return msg, nil
}

func (c *Client) do(ctx context.Context, accessToken, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create gmail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gmail response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode gmail response: %w", err)
	}
	return nil
}

// StatusError is a non-success Gmail API response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gmail API error (%d): %s", e.Status, e.Body)
}
