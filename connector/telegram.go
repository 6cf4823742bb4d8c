package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowbothq/flowbot/interp"
)

// TelegramAPI is the slice of the Telegram client the connector needs.
type TelegramAPI interface {
	SendMessage(ctx context.Context, botToken, chatID, text string) (int64, error)
}

// Telegram delivers a message through the user's bot. The bot token is the
// connection's access token; the chat id comes from step config or from
// the connection's service config.
type Telegram struct {
	client TelegramAPI
}

func NewTelegram(client TelegramAPI) *Telegram {
	return &Telegram{client: client}
}

func (t *Telegram) Kind() Kind { return KindTelegram }

func (t *Telegram) Execute(ctx context.Context, req Request) (map[string]any, error) {
	if req.Connection == nil || !req.Connection.Active {
		return nil, &ConnectionMissingError{Service: string(KindTelegram)}
	}

	chatID := optionalString(req.Config, "chat_id")
	if chatID == "" && req.Connection.ServiceConfig != nil {
		chatID = strings.TrimSpace(interp.Stringify(req.Connection.ServiceConfig["chat_id"]))
	}
	if chatID == "" {
		return nil, &ConfigError{Field: "chat_id"}
	}

	text := optionalString(req.Config, "message", "text", "content")
	if text == "" {
		text = interp.ResolveContent(req.Context)
	}

	messageID, err := t.client.SendMessage(ctx, req.Connection.AccessToken, chatID, text)
	if err != nil {
		return nil, fmt.Errorf("failed to send telegram message: %w", err)
	}
	return map[string]any{
		"message_id": messageID,
		"chat_id":    chatID,
	}, nil
}
