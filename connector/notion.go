package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/flowbothq/flowbot/interp"
	"github.com/flowbothq/flowbot/providers/notion"
)

// NotionAPI is the slice of the Notion client the connector needs.
type NotionAPI interface {
	CreatePage(ctx context.Context, accessToken string, req notion.PageRequest) (notion.Page, error)
}

// Notion creates a page in a database or under a parent page.
type Notion struct {
	client NotionAPI
	now    func() time.Time
}

func NewNotion(client NotionAPI) *Notion {
	return &Notion{client: client, now: time.Now}
}

func (n *Notion) Kind() Kind { return KindNotion }

func (n *Notion) Execute(ctx context.Context, req Request) (map[string]any, error) {
	if req.Connection == nil || !req.Connection.Active {
		return nil, &ConnectionMissingError{Service: string(KindNotion)}
	}

	databaseID := optionalString(req.Config, "database_id")
	parentPageID := optionalString(req.Config, "parent_page_id", "page_id")
	if databaseID == "" && parentPageID == "" {
		return nil, &ConfigError{Field: "database_id", Detail: "a database_id or parent_page_id is required"}
	}

	title := optionalString(req.Config, "title")
	if title == "" {
		title = fmt.Sprintf("Automation output %s", n.now().UTC().Format("2006-01-02 15:04"))
	}
	content := optionalString(req.Config, "content", "body")
	if content == "" {
		content = interp.ResolveContent(req.Context)
	}

	page, err := n.client.CreatePage(ctx, req.Connection.AccessToken, notion.PageRequest{
		DatabaseID:   databaseID,
		ParentPageID: parentPageID,
		Title:        title,
		Content:      content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notion page: %w", err)
	}
	return map[string]any{
		"page_id": page.ID,
		"title":   title,
		"url":     page.URL,
	}, nil
}
