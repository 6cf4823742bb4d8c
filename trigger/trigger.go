// Package trigger decides whether an agent is eligible to run and builds
// the initial trigger payload for eligible runs.
package trigger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowbothq/flowbot/providers/gmail"
	"github.com/flowbothq/flowbot/providers/telegram"
	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/types"
)

// Decision is the outcome of one eligibility check. Reason is populated
// whenever Run is false so scheduler logs can say why an agent was
// skipped. Cursor, when non-empty, is the provider watermark to persist
// once the run is committed.
type Decision struct {
	Run     bool
	Payload map[string]any
	Reason  string
	Cursor  string
}

// InboxChecker lists provider messages newer than a watermark.
type InboxChecker interface {
	ListNew(ctx context.Context, accessToken, query, afterID string) ([]gmail.Message, error)
}

// UpdatesChecker polls chat updates after an offset.
type UpdatesChecker interface {
	GetUpdates(ctx context.Context, botToken string, offset int64) ([]telegram.Update, error)
}

// Evaluator checks trigger eligibility per agent trigger type. Provider
// check failures never propagate as errors: they come back as a
// non-eligible Decision so one broken agent cannot stall a scheduler
// pass.
type Evaluator struct {
	connections store.ConnectionStore
	inbox       InboxChecker
	updates     UpdatesChecker
}

type Option func(*Evaluator)

func WithInboxChecker(c InboxChecker) Option {
	return func(e *Evaluator) { e.inbox = c }
}

func WithUpdatesChecker(c UpdatesChecker) Option {
	return func(e *Evaluator) { e.updates = c }
}

func NewEvaluator(connections store.ConnectionStore, opts ...Option) *Evaluator {
	e := &Evaluator{connections: connections}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks one agent at the given instant.
func (e *Evaluator) Evaluate(ctx context.Context, agent types.Agent, now time.Time) Decision {
	switch agent.TriggerType {
	case types.TriggerSchedule:
		return e.evaluateSchedule(agent, now)
	case types.TriggerGmail:
		return e.evaluateInbox(ctx, agent)
	case types.TriggerTelegram:
		return e.evaluateMessaging(ctx, agent)
	case types.TriggerWebhook:
		// Webhook agents run only on inbound delivery, never via polling.
		return Decision{Reason: "webhook trigger is push-driven"}
	default:
		return Decision{Reason: fmt.Sprintf("unknown trigger type %q", agent.TriggerType)}
	}
}

func (e *Evaluator) evaluateSchedule(agent types.Agent, now time.Time) Decision {
	if agent.NextRunAt == nil {
		return Decision{Reason: "no next run scheduled"}
	}
	if agent.NextRunAt.After(now) {
		return Decision{Reason: "not due"}
	}
	return Decision{
		Run: true,
		Payload: map[string]any{
			"scheduled_time": now.UTC().Format(time.RFC3339),
		},
	}
}

func (e *Evaluator) evaluateInbox(ctx context.Context, agent types.Agent) Decision {
	if e.inbox == nil {
		return Decision{Reason: "inbox checking not configured"}
	}
	conn, err := e.connections.ActiveConnection(ctx, agent.UserID, "gmail")
	if err != nil {
		return Decision{Reason: "connection missing"}
	}

	messages, err := e.inbox.ListNew(ctx, conn.AccessToken, inboxQuery(agent.TriggerConfig), agent.TriggerCursor)
	if err != nil {
		return Decision{Reason: fmt.Sprintf("inbox check failed: %v", err)}
	}
	if len(messages) == 0 {
		return Decision{Reason: "no match"}
	}

	emails := make([]any, 0, len(messages))
	newest := agent.TriggerCursor
	for _, m := range messages {
		emails = append(emails, map[string]any{
			"id":      m.ID,
			"subject": m.Subject,
			"from":    m.From,
			"body":    m.Snippet,
			"date":    m.Date,
		})
		if m.ID > newest {
			newest = m.ID
		}
	}
	return Decision{
		Run: true,
		Payload: map[string]any{
			"emails": emails,
			"count":  len(emails),
		},
		Cursor: newest,
	}
}

func (e *Evaluator) evaluateMessaging(ctx context.Context, agent types.Agent) Decision {
	if e.updates == nil {
		return Decision{Reason: "messaging checking not configured"}
	}
	conn, err := e.connections.ActiveConnection(ctx, agent.UserID, "telegram")
	if err != nil {
		return Decision{Reason: "connection missing"}
	}

	var offset int64
	if agent.TriggerCursor != "" {
		last, err := strconv.ParseInt(agent.TriggerCursor, 10, 64)
		if err != nil {
			return Decision{Reason: fmt.Sprintf("bad trigger cursor %q: %v", agent.TriggerCursor, err)}
		}
		offset = last + 1
	}

	updates, err := e.updates.GetUpdates(ctx, conn.AccessToken, offset)
	if err != nil {
		return Decision{Reason: fmt.Sprintf("messaging check failed: %v", err)}
	}

	contains := strings.ToLower(configString(agent.TriggerConfig, "contains"))
	messages := make([]any, 0, len(updates))
	var lastID int64
	for _, u := range updates {
		if u.UpdateID > lastID {
			lastID = u.UpdateID
		}
		text := u.Message.Text
		if contains != "" && !strings.Contains(strings.ToLower(text), contains) {
			continue
		}
		messages = append(messages, map[string]any{
			"message_id": u.Message.MessageID,
			"text":       text,
			"chat_id":    u.Message.Chat.ID,
			"from":       u.Message.From.Username,
			"date":       u.Message.Date,
		})
	}
	if len(messages) == 0 {
		// Advance past unmatched updates so we never re-read them.
		d := Decision{Reason: "no match"}
		if lastID > 0 {
			d.Cursor = strconv.FormatInt(lastID, 10)
		}
		return d
	}

	return Decision{
		Run: true,
		Payload: map[string]any{
			"messages": messages,
			"count":    len(messages),
		},
		Cursor: strconv.FormatInt(lastID, 10),
	}
}

// inboxQuery builds a provider search query from the trigger config.
// An explicit query wins; otherwise from/subject filters compose one.
func inboxQuery(config map[string]any) string {
	if q := configString(config, "query"); q != "" {
		return q
	}
	var parts []string
	if from := configString(config, "from"); from != "" {
		parts = append(parts, "from:"+from)
	}
	if subject := configString(config, "subject"); subject != "" {
		parts = append(parts, fmt.Sprintf("subject:(%s)", subject))
	}
	parts = append(parts, "is:unread")
	return strings.Join(parts, " ")
}

func configString(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	if s, ok := config[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
