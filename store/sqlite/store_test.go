package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "flowbot.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleAgent(id string, next *time.Time) types.Agent {
	return types.Agent{
		ID:          id,
		UserID:      "user-1",
		Name:        "daily digest",
		TriggerType: types.TriggerSchedule,
		TriggerConfig: map[string]any{
			"note": "none",
		},
		WorkflowSteps: []types.WorkflowStep{
			{ID: "s1", Kind: "llm", Config: map[string]any{"prompt": "Summarize: {{content}}"}, Position: 1},
			{ID: "s2", Kind: "gmail", Config: map[string]any{"to": "a@b.co"}, Position: 2},
		},
		Schedule:  types.ScheduleConfig{Interval: types.IntervalDaily, Enabled: true},
		Status:    types.AgentActive,
		NextRunAt: next,
		Version:   1,
	}
}

func TestAgentRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	next := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	if err := st.SaveAgent(ctx, sampleAgent("a1", &next)); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "daily digest" || got.TriggerType != types.TriggerSchedule {
		t.Errorf("agent = %+v", got)
	}
	if len(got.WorkflowSteps) != 2 || got.WorkflowSteps[1].Kind != "gmail" {
		t.Errorf("steps = %+v", got.WorkflowSteps)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(next) {
		t.Errorf("next_run_at = %v, want %v", got.NextRunAt, next)
	}
	if got.Schedule.Interval != types.IntervalDaily {
		t.Errorf("interval = %q", got.Schedule.Interval)
	}

	if _, err := st.GetAgent(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing agent: err = %v", err)
	}
}

func TestSaveAgentUpserts(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	agent := sampleAgent("a1", nil)
	if err := st.SaveAgent(ctx, agent); err != nil {
		t.Fatal(err)
	}
	agent.Name = "renamed"
	agent.Version = 2
	if err := st.SaveAgent(ctx, agent); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "renamed" || got.Version != 2 {
		t.Errorf("agent = %+v", got)
	}
}

func TestListDueSelectsOnlyActiveDueAgents(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	if err := st.SaveAgent(ctx, sampleAgent("due", &past)); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveAgent(ctx, sampleAgent("future", &future)); err != nil {
		t.Fatal(err)
	}
	paused := sampleAgent("paused", &past)
	paused.Status = types.AgentPaused
	if err := st.SaveAgent(ctx, paused); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveAgent(ctx, sampleAgent("unscheduled", nil)); err != nil {
		t.Fatal(err)
	}

	due, err := st.ListDue(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Errorf("due = %+v", due)
	}
}

func TestClaimDueIsSingleWinner(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	observed := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	next := observed.Add(time.Hour)
	if err := st.SaveAgent(ctx, sampleAgent("a1", &observed)); err != nil {
		t.Fatal(err)
	}

	claimed, err := st.ClaimDue(ctx, "a1", observed, next)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim lost")
	}

	// Same observed slot again: already advanced, must lose.
	claimed, err = st.ClaimDue(ctx, "a1", observed, next.Add(time.Hour))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Error("second claim won on an already-advanced slot")
	}

	got, err := st.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(next) {
		t.Errorf("next_run_at = %v, want %v", got.NextRunAt, next)
	}
}

func TestUpdateRunStateAndCursor(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	if err := st.SaveAgent(ctx, sampleAgent("a1", nil)); err != nil {
		t.Fatal(err)
	}

	lastRun := time.Now().UTC().Truncate(time.Millisecond)
	if err := st.UpdateRunState(ctx, "a1", lastRun, nil, types.AgentError); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveTriggerCursor(ctx, "a1", "19ab"); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.AgentError {
		t.Errorf("status = %s", got.Status)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(lastRun) {
		t.Errorf("last_run_at = %v", got.LastRunAt)
	}
	if got.TriggerCursor != "19ab" {
		t.Errorf("cursor = %q", got.TriggerCursor)
	}
}

func TestConnectionSingleActivePerService(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	first := types.ServiceConnection{
		ID: "c1", UserID: "user-1", ServiceType: "gmail", AccessToken: "tok-1", Active: true,
	}
	if err := st.SaveConnection(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := types.ServiceConnection{
		ID: "c2", UserID: "user-1", ServiceType: "gmail", AccessToken: "tok-2", Active: true,
	}
	if err := st.SaveConnection(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := st.ActiveConnection(ctx, "user-1", "gmail")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "c2" || got.AccessToken != "tok-2" {
		t.Errorf("active = %+v", got)
	}

	all, err := st.ActiveConnections(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("active connections = %d", len(all))
	}

	if _, err := st.ActiveConnection(ctx, "user-1", "notion"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing connection: err = %v", err)
	}
}

func TestExecutionLedgerLifecycle(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Millisecond)
	exec := types.Execution{
		ID:          "e1",
		AgentID:     "a1",
		UserID:      "user-1",
		TriggerData: map[string]any{"content": "hello"},
		Status:      types.ExecutionRunning,
		StartedAt:   started,
	}
	if err := st.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.CreateExecution(ctx, exec); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate create: err = %v", err)
	}

	completed := started.Add(2 * time.Second)
	exec.Status = types.ExecutionCompleted
	exec.Log = []string{"step 1 (llm): completed in 120ms"}
	exec.Output = map[string]any{"summary": "done"}
	exec.DurationMS = 2000
	exec.CompletedAt = &completed
	if err := st.FinishExecution(ctx, exec); err != nil {
		t.Fatalf("finish: %v", err)
	}

	got, err := st.GetExecution(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.ExecutionCompleted || got.Output["summary"] != "done" {
		t.Errorf("execution = %+v", got)
	}
	if len(got.Log) != 1 {
		t.Errorf("log = %v", got.Log)
	}

	// Terminal entries are immutable.
	exec.Status = types.ExecutionFailed
	if err := st.FinishExecution(ctx, exec); !errors.Is(err, store.ErrConflict) {
		t.Errorf("double finish: err = %v", err)
	}
}

func TestListExecutionsFiltersAndOrders(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, id := range []string{"e1", "e2", "e3"} {
		exec := types.Execution{
			ID:        id,
			AgentID:   "a1",
			UserID:    "user-1",
			Status:    types.ExecutionRunning,
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := st.CreateExecution(ctx, exec); err != nil {
			t.Fatal(err)
		}
	}
	other := types.Execution{
		ID: "other", AgentID: "a2", UserID: "user-2",
		Status: types.ExecutionRunning, StartedAt: base,
	}
	if err := st.CreateExecution(ctx, other); err != nil {
		t.Fatal(err)
	}

	execs, err := st.ListExecutions(ctx, store.ListExecutionsQuery{AgentID: "a1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 3 {
		t.Fatalf("executions = %d", len(execs))
	}
	if execs[0].ID != "e3" {
		t.Errorf("order = %v, want newest first", []string{execs[0].ID, execs[1].ID, execs[2].ID})
	}

	limited, err := st.ListExecutions(ctx, store.ListExecutionsQuery{AgentID: "a1", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].ID != "e2" {
		t.Errorf("limited = %+v", limited)
	}
}
