package trigger

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/flowbothq/flowbot/providers/gmail"
	"github.com/flowbothq/flowbot/providers/telegram"
	"github.com/flowbothq/flowbot/store/memory"
	"github.com/flowbothq/flowbot/types"
)

type fakeInbox struct {
	gotQuery string
	gotAfter string
	messages []gmail.Message
	err      error
}

func (f *fakeInbox) ListNew(_ context.Context, _, query, afterID string) ([]gmail.Message, error) {
	f.gotQuery, f.gotAfter = query, afterID
	return f.messages, f.err
}

type fakeUpdates struct {
	gotOffset int64
	updates   []telegram.Update
	err       error
}

func (f *fakeUpdates) GetUpdates(_ context.Context, _ string, offset int64) ([]telegram.Update, error) {
	f.gotOffset = offset
	return f.updates, f.err
}

func seedConnection(t *testing.T, st *memory.Store, service string) {
	t.Helper()
	err := st.SaveConnection(context.Background(), types.ServiceConnection{
		ID:          "conn-" + service,
		UserID:      "user-1",
		ServiceType: service,
		AccessToken: "token",
		Active:      true,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEvaluateScheduleDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(-time.Minute)

	e := NewEvaluator(memory.New())
	d := e.Evaluate(context.Background(), types.Agent{
		TriggerType: types.TriggerSchedule,
		NextRunAt:   &due,
	}, now)
	if !d.Run {
		t.Fatalf("not eligible: %s", d.Reason)
	}
	if d.Payload["scheduled_time"] != "2026-03-01T12:00:00Z" {
		t.Errorf("payload = %v", d.Payload)
	}
}

func TestEvaluateScheduleNotDue(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)

	e := NewEvaluator(memory.New())
	if d := e.Evaluate(context.Background(), types.Agent{TriggerType: types.TriggerSchedule, NextRunAt: &future}, now); d.Run {
		t.Error("future agent reported eligible")
	}
	if d := e.Evaluate(context.Background(), types.Agent{TriggerType: types.TriggerSchedule}, now); d.Run || d.Reason == "" {
		t.Errorf("nil next_run_at: %+v", d)
	}
}

func TestEvaluateInbox(t *testing.T) {
	st := memory.New()
	seedConnection(t, st, "gmail")
	inbox := &fakeInbox{messages: []gmail.Message{
		{ID: "19aa", Subject: "Invoice", From: "billing@x.co", Snippet: "pay up"},
		{ID: "19ab", Subject: "Invoice 2", From: "billing@x.co", Snippet: "again"},
	}}
	e := NewEvaluator(st, WithInboxChecker(inbox))

	agent := types.Agent{
		UserID:        "user-1",
		TriggerType:   types.TriggerGmail,
		TriggerConfig: map[string]any{"from": "billing@x.co", "subject": "Invoice"},
		TriggerCursor: "199f",
	}
	d := e.Evaluate(context.Background(), agent, time.Now())
	if !d.Run {
		t.Fatalf("not eligible: %s", d.Reason)
	}
	if inbox.gotAfter != "199f" {
		t.Errorf("afterID = %q", inbox.gotAfter)
	}
	if inbox.gotQuery != "from:billing@x.co subject:(Invoice) is:unread" {
		t.Errorf("query = %q", inbox.gotQuery)
	}
	if d.Cursor != "19ab" {
		t.Errorf("cursor = %q", d.Cursor)
	}
	emails, ok := d.Payload["emails"].([]any)
	if !ok || len(emails) != 2 {
		t.Errorf("payload = %v", d.Payload)
	}
}

func TestEvaluateInboxConnectionMissing(t *testing.T) {
	e := NewEvaluator(memory.New(), WithInboxChecker(&fakeInbox{}))
	d := e.Evaluate(context.Background(), types.Agent{UserID: "user-1", TriggerType: types.TriggerGmail}, time.Now())
	if d.Run || d.Reason != "connection missing" {
		t.Errorf("decision = %+v", d)
	}
}

func TestEvaluateInboxProviderErrorIsNonFatal(t *testing.T) {
	st := memory.New()
	seedConnection(t, st, "gmail")
	e := NewEvaluator(st, WithInboxChecker(&fakeInbox{err: errors.New("quota exceeded")}))

	d := e.Evaluate(context.Background(), types.Agent{UserID: "user-1", TriggerType: types.TriggerGmail}, time.Now())
	if d.Run {
		t.Error("provider error reported eligible")
	}
	if d.Reason == "" {
		t.Error("reason missing for provider error")
	}
}

func TestEvaluateMessaging(t *testing.T) {
	st := memory.New()
	seedConnection(t, st, "telegram")
	updates := &fakeUpdates{updates: []telegram.Update{
		{UpdateID: 7, Message: telegram.UpdateMessage{MessageID: 70, Text: "deploy please", Chat: telegram.Chat{ID: 5}}},
		{UpdateID: 8, Message: telegram.UpdateMessage{MessageID: 80, Text: "lunch?", Chat: telegram.Chat{ID: 5}}},
	}}
	e := NewEvaluator(st, WithUpdatesChecker(updates))

	agent := types.Agent{
		UserID:        "user-1",
		TriggerType:   types.TriggerTelegram,
		TriggerConfig: map[string]any{"contains": "deploy"},
		TriggerCursor: "6",
	}
	d := e.Evaluate(context.Background(), agent, time.Now())
	if !d.Run {
		t.Fatalf("not eligible: %s", d.Reason)
	}
	if updates.gotOffset != 7 {
		t.Errorf("offset = %d", updates.gotOffset)
	}
	if d.Cursor != "8" {
		t.Errorf("cursor = %q", d.Cursor)
	}
	messages, ok := d.Payload["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("payload = %v", d.Payload)
	}
}

func TestEvaluateMessagingNoMatchStillAdvancesCursor(t *testing.T) {
	st := memory.New()
	seedConnection(t, st, "telegram")
	updates := &fakeUpdates{updates: []telegram.Update{
		{UpdateID: 9, Message: telegram.UpdateMessage{Text: "unrelated"}},
	}}
	e := NewEvaluator(st, WithUpdatesChecker(updates))

	agent := types.Agent{
		UserID:        "user-1",
		TriggerType:   types.TriggerTelegram,
		TriggerConfig: map[string]any{"contains": "deploy"},
	}
	d := e.Evaluate(context.Background(), agent, time.Now())
	if d.Run || d.Reason != "no match" {
		t.Errorf("decision = %+v", d)
	}
	if d.Cursor != "9" {
		t.Errorf("cursor = %q", d.Cursor)
	}
}

func TestEvaluateWebhookNeverPolls(t *testing.T) {
	e := NewEvaluator(memory.New())
	if d := e.Evaluate(context.Background(), types.Agent{TriggerType: types.TriggerWebhook}, time.Now()); d.Run {
		t.Error("webhook agent eligible via polling")
	}
}

func TestMatchesWebhook(t *testing.T) {
	config := map[string]any{"endpoint": "/hooks/github", "events": []any{"github.push", "github.release"}}

	if !MatchesWebhook(config, "/hooks/github", "github.push") {
		t.Error("exact path + allowed event should match")
	}
	if !MatchesWebhook(config, "/hooks/github/repo-a", "github.release") {
		t.Error("prefixed path should match")
	}
	if MatchesWebhook(config, "/hooks/github", "github.issues") {
		t.Error("disallowed event matched")
	}
	if MatchesWebhook(config, "/hooks/gitlab", "github.push") {
		t.Error("wrong path matched")
	}
	if MatchesWebhook(map[string]any{"endpoint": "/hooks/any"}, "/hooks/any/sub", "whatever") != true {
		t.Error("empty allow-list should accept any event")
	}
	if MatchesWebhook(map[string]any{}, "/hooks/any", "whatever") {
		t.Error("missing endpoint matched")
	}
}

func TestEventType(t *testing.T) {
	gh := http.Header{}
	gh.Set("X-GitHub-Event", "Push")
	if got := EventType(gh, nil); got != "github.push" {
		t.Errorf("github event = %q", got)
	}
	if got := EventType(http.Header{}, map[string]any{"type": "event_callback"}); got != "slack.event_callback" {
		t.Errorf("slack event = %q", got)
	}
	if got := EventType(http.Header{}, map[string]any{"event_type": "deploy.finished"}); got != "deploy.finished" {
		t.Errorf("generic event = %q", got)
	}
	if got := EventType(http.Header{}, map[string]any{}); got != "unknown" {
		t.Errorf("fallback = %q", got)
	}
}
