package connector

import (
	"context"
	"fmt"

	"github.com/flowbothq/flowbot/interp"
	"github.com/flowbothq/flowbot/providers/gmail"
)

// GmailAPI is the slice of the Gmail client the connector needs.
type GmailAPI interface {
	Send(ctx context.Context, accessToken, to, subject, body string) (string, error)
	ListNew(ctx context.Context, accessToken, query, afterID string) ([]gmail.Message, error)
}

// Gmail sends mail (the default action) or fetches recent messages on the
// user's behalf. Both actions require an active gmail connection.
type Gmail struct {
	client GmailAPI
}

func NewGmail(client GmailAPI) *Gmail {
	return &Gmail{client: client}
}

func (g *Gmail) Kind() Kind { return KindGmail }

func (g *Gmail) Execute(ctx context.Context, req Request) (map[string]any, error) {
	if req.Connection == nil || !req.Connection.Active {
		return nil, &ConnectionMissingError{Service: string(KindGmail)}
	}
	token := req.Connection.AccessToken

	if optionalString(req.Config, "action") == "fetch" {
		return g.fetch(ctx, token, req)
	}
	return g.send(ctx, token, req)
}

func (g *Gmail) send(ctx context.Context, token string, req Request) (map[string]any, error) {
	to, err := requireString(req.Config, "to", "recipient")
	if err != nil {
		return nil, err
	}
	subject := optionalString(req.Config, "subject")
	if subject == "" {
		subject = "Automated message"
	}
	body := optionalString(req.Config, "body", "content")
	if body == "" {
		body = interp.ResolveContent(req.Context)
	}

	id, err := g.client.Send(ctx, token, to, subject, body)
	if err != nil {
		return nil, fmt.Errorf("failed to send gmail message: %w", err)
	}
	return map[string]any{
		"message_id": id,
		"to":         to,
		"subject":    subject,
	}, nil
}

func (g *Gmail) fetch(ctx context.Context, token string, req Request) (map[string]any, error) {
	query := optionalString(req.Config, "query")
	if query == "" {
		query = "is:unread"
	}
	afterID := optionalString(req.Config, "after_id")

	messages, err := g.client.ListNew(ctx, token, query, afterID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gmail messages: %w", err)
	}

	emails := make([]any, 0, len(messages))
	for _, m := range messages {
		emails = append(emails, map[string]any{
			"id":      m.ID,
			"subject": m.Subject,
			"from":    m.From,
			"body":    m.Snippet,
			"date":    m.Date,
		})
	}
	return map[string]any{
		"emails": emails,
		"count":  len(emails),
	}, nil
}
