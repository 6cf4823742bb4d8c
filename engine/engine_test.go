package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flowbothq/flowbot/connector"
	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/store/memory"
	"github.com/flowbothq/flowbot/types"
)

type fakeGenerator struct {
	result string
	calls  int
}

func (f *fakeGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.result, nil
}

// recordingConnector counts invocations and returns a fixed output.
type recordingConnector struct {
	kind   connector.Kind
	output map[string]any
	err    error
	calls  int
}

func (r *recordingConnector) Kind() connector.Kind { return r.kind }

func (r *recordingConnector) Execute(_ context.Context, _ connector.Request) (map[string]any, error) {
	r.calls++
	return r.output, r.err
}

func newRegistry(t *testing.T, connectors ...connector.Connector) *connector.Registry {
	t.Helper()
	registry, err := connector.NewRegistry(connectors...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return registry
}

func scheduleAgent(steps ...types.WorkflowStep) types.Agent {
	return types.Agent{
		ID:            "agent-1",
		UserID:        "user-1",
		Name:          "hourly summary",
		TriggerType:   types.TriggerSchedule,
		WorkflowSteps: steps,
		Status:        types.AgentActive,
	}
}

func TestRunSingleLLMStep(t *testing.T) {
	gen := &fakeGenerator{result: "generated summary"}
	executor := NewExecutor(newRegistry(t, connector.NewLLM(gen)))

	agent := scheduleAgent(types.WorkflowStep{
		ID:       "s1",
		Kind:     "llm",
		Config:   map[string]any{"prompt": "Summarize: {{content}}"},
		Position: 1,
	})

	result := executor.Run(context.Background(), agent, map[string]any{"content": "hello world"}, nil)
	if result.Err != nil {
		t.Fatalf("run failed: %v", result.Err)
	}
	for _, key := range []string{"summary", "content", "text"} {
		if result.Context[key] != "generated summary" {
			t.Errorf("context[%q] = %v", key, result.Context[key])
		}
	}
	if len(result.Trace) != 1 || !strings.Contains(result.Trace[0], "step 1 (llm): completed") {
		t.Errorf("trace = %v", result.Trace)
	}
}

func TestRunFailFast(t *testing.T) {
	notion := &recordingConnector{kind: connector.KindNotion, err: &connector.ConnectionMissingError{Service: "notion"}}
	tail := &recordingConnector{kind: connector.KindHTTP, output: map[string]any{"status": 200}}
	executor := NewExecutor(newRegistry(t, notion, tail))

	agent := scheduleAgent(
		types.WorkflowStep{ID: "s1", Kind: "notion", Config: map[string]any{"database_id": "db"}, Position: 1},
		types.WorkflowStep{ID: "s2", Kind: "http", Config: map[string]any{"url": "https://x"}, Position: 2},
	)

	result := executor.Run(context.Background(), agent, nil, nil)
	if result.Err == nil {
		t.Fatal("expected failure")
	}
	var failed *ExecutionFailed
	if !errors.As(result.Err, &failed) {
		t.Fatalf("error = %T", result.Err)
	}
	if failed.StepIndex != 1 || failed.StepKind != connector.KindNotion {
		t.Errorf("failed = %+v", failed)
	}
	if !connector.IsConnectionMissing(failed.Cause) {
		t.Errorf("cause = %v", failed.Cause)
	}
	if tail.calls != 0 {
		t.Errorf("second step ran %d times after first failed", tail.calls)
	}
	if len(result.Trace) != 1 {
		t.Errorf("trace = %v", result.Trace)
	}
}

func TestRunLastWriterWinsMerge(t *testing.T) {
	first := &recordingConnector{kind: connector.KindLLM, output: map[string]any{"content": "first", "only_first": 1}}
	second := &recordingConnector{kind: connector.KindHTTP, output: map[string]any{"content": "second", "status": 200}}
	executor := NewExecutor(newRegistry(t, first, second))

	agent := scheduleAgent(
		types.WorkflowStep{ID: "s1", Kind: "llm", Config: map[string]any{"prompt": "p"}, Position: 1},
		types.WorkflowStep{ID: "s2", Kind: "http", Config: map[string]any{"url": "https://x"}, Position: 2},
	)

	result := executor.Run(context.Background(), agent, map[string]any{"content": "seed"}, nil)
	if result.Err != nil {
		t.Fatalf("run failed: %v", result.Err)
	}
	if result.Context["content"] != "second" {
		t.Errorf("content = %v, want last writer", result.Context["content"])
	}
	if result.Context["only_first"] != 1 {
		t.Errorf("only_first = %v", result.Context["only_first"])
	}
}

func TestRunOrdersByPosition(t *testing.T) {
	var order []string
	mk := func(kind connector.Kind) connector.Connector {
		return connectorFunc{kind: kind, fn: func() (map[string]any, error) {
			order = append(order, string(kind))
			return nil, nil
		}}
	}
	executor := NewExecutor(newRegistry(t, mk(connector.KindLLM), mk(connector.KindHTTP)))

	agent := scheduleAgent(
		types.WorkflowStep{ID: "s2", Kind: "http", Config: map[string]any{"url": "https://x"}, Position: 9},
		types.WorkflowStep{ID: "s1", Kind: "llm", Config: map[string]any{"prompt": "p"}, Position: 3},
	)
	if result := executor.Run(context.Background(), agent, nil, nil); result.Err != nil {
		t.Fatalf("run failed: %v", result.Err)
	}
	if len(order) != 2 || order[0] != "llm" || order[1] != "http" {
		t.Errorf("order = %v", order)
	}
}

func TestRunStepTimeoutFailsFast(t *testing.T) {
	slow := blockingConnector{kind: connector.KindHTTP}
	tail := &recordingConnector{kind: connector.KindLLM}
	executor := NewExecutor(newRegistry(t, slow, tail), WithStepTimeout(10*time.Millisecond))

	agent := scheduleAgent(
		types.WorkflowStep{ID: "s1", Kind: "http", Config: map[string]any{"url": "https://x"}, Position: 1},
		types.WorkflowStep{ID: "s2", Kind: "llm", Config: map[string]any{"prompt": "p"}, Position: 2},
	)

	result := executor.Run(context.Background(), agent, nil, nil)
	if result.Err == nil {
		t.Fatal("expected timeout failure")
	}
	if !IsTimeout(result.Err) {
		t.Errorf("IsTimeout = false for %v", result.Err)
	}
	var failed *ExecutionFailed
	if !errors.As(result.Err, &failed) {
		t.Fatalf("error = %T", result.Err)
	}
	if failed.StepIndex != 1 || failed.StepKind != connector.KindHTTP {
		t.Errorf("failed = %+v", failed)
	}
	var timedOut *TimeoutError
	if !errors.As(result.Err, &timedOut) || timedOut.StepIndex != 1 {
		t.Errorf("cause = %v", failed.Cause)
	}
	if tail.calls != 0 {
		t.Errorf("second step ran %d times after timeout", tail.calls)
	}
	if len(result.Trace) != 1 || !strings.Contains(result.Trace[0], "timed out") {
		t.Errorf("trace = %v", result.Trace)
	}
}

// blockingConnector holds until its context deadline hits.
type blockingConnector struct {
	kind connector.Kind
}

func (b blockingConnector) Kind() connector.Kind { return b.kind }

func (b blockingConnector) Execute(ctx context.Context, _ connector.Request) (map[string]any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type connectorFunc struct {
	kind connector.Kind
	fn   func() (map[string]any, error)
}

func (c connectorFunc) Kind() connector.Kind { return c.kind }

func (c connectorFunc) Execute(_ context.Context, _ connector.Request) (map[string]any, error) {
	return c.fn()
}

func TestPipelineExecuteRecordsCompletedRun(t *testing.T) {
	st := memory.New()
	gen := &fakeGenerator{result: "done"}
	pipeline := NewPipeline(st, NewExecutor(newRegistry(t, connector.NewLLM(gen))))

	agent := scheduleAgent(types.WorkflowStep{
		ID: "s1", Kind: "llm", Config: map[string]any{"prompt": "Summarize: {{content}}"}, Position: 1,
	})
	if err := st.SaveAgent(context.Background(), agent); err != nil {
		t.Fatal(err)
	}

	exec, err := pipeline.Execute(context.Background(), agent, map[string]any{"content": "hello world"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.Status != types.ExecutionCompleted {
		t.Errorf("status = %s", exec.Status)
	}
	if exec.Output["summary"] != "done" {
		t.Errorf("output = %v", exec.Output)
	}

	stored, err := st.GetExecution(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if stored.Status != types.ExecutionCompleted || stored.CompletedAt == nil {
		t.Errorf("stored = %+v", stored)
	}
}

func TestPipelineExecuteRecordsFailure(t *testing.T) {
	st := memory.New()
	notion := &recordingConnector{kind: connector.KindNotion, err: &connector.ConnectionMissingError{Service: "notion"}}
	second := &recordingConnector{kind: connector.KindHTTP}
	pipeline := NewPipeline(st, NewExecutor(newRegistry(t, notion, second)))

	agent := scheduleAgent(
		types.WorkflowStep{ID: "s1", Kind: "notion", Config: map[string]any{"database_id": "db"}, Position: 1},
		types.WorkflowStep{ID: "s2", Kind: "http", Config: map[string]any{"url": "https://x"}, Position: 2},
	)

	exec, err := pipeline.Execute(context.Background(), agent, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.Status != types.ExecutionFailed {
		t.Errorf("status = %s", exec.Status)
	}
	if !strings.Contains(exec.ErrorMessage, "step 1 (notion)") {
		t.Errorf("error = %q", exec.ErrorMessage)
	}
	if len(exec.Log) != 1 {
		t.Errorf("log = %v", exec.Log)
	}
	if second.calls != 0 {
		t.Error("second step ran after failure")
	}
}

func TestPipelineWritesAgentRunState(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	gen := &fakeGenerator{result: "done"}
	pipeline := NewPipeline(st, NewExecutor(newRegistry(t, connector.NewLLM(gen))))

	agent := scheduleAgent(types.WorkflowStep{
		ID: "s1", Kind: "llm", Config: map[string]any{"prompt": "p"}, Position: 1,
	})
	if err := st.SaveAgent(ctx, agent); err != nil {
		t.Fatal(err)
	}

	if _, err := pipeline.Execute(ctx, agent, map[string]any{"content": "x"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got, err := st.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastRunAt == nil {
		t.Error("last_run_at not written after run")
	}
	if got.Status != types.AgentActive {
		t.Errorf("status = %s", got.Status)
	}
	if got.NextRunAt != nil {
		t.Errorf("next_run_at = %v, want untouched", got.NextRunAt)
	}

	// A failed run flips the agent into the error state.
	broken := &recordingConnector{kind: connector.KindLLM, err: errors.New("provider down")}
	failing := NewPipeline(st, NewExecutor(newRegistry(t, broken)))
	if _, err := failing.Execute(ctx, agent, nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got, err = st.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.AgentError {
		t.Errorf("status after failure = %s", got.Status)
	}
}

func TestPipelineRetryOnlyFailed(t *testing.T) {
	st := memory.New()
	gen := &fakeGenerator{result: "ok"}
	pipeline := NewPipeline(st, NewExecutor(newRegistry(t, connector.NewLLM(gen))))

	agent := scheduleAgent(types.WorkflowStep{
		ID: "s1", Kind: "llm", Config: map[string]any{"prompt": "p"}, Position: 1,
	})
	if err := st.SaveAgent(context.Background(), agent); err != nil {
		t.Fatal(err)
	}

	exec, err := pipeline.Execute(context.Background(), agent, map[string]any{"content": "x"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := pipeline.Retry(context.Background(), exec.ID); !errors.Is(err, store.ErrConflict) {
		t.Errorf("retrying a completed execution: err = %v, want ErrConflict", err)
	}
}

func TestPipelineRetryUsesOriginalPayload(t *testing.T) {
	st := memory.New()

	// First run fails, so the entry becomes retryable.
	flaky := &flakyConnector{kind: connector.KindLLM}
	pipeline := NewPipeline(st, NewExecutor(newRegistry(t, flaky)))

	agent := scheduleAgent(types.WorkflowStep{
		ID: "s1", Kind: "llm", Config: map[string]any{"prompt": "p"}, Position: 1,
	})
	if err := st.SaveAgent(context.Background(), agent); err != nil {
		t.Fatal(err)
	}

	payload := map[string]any{"emails": []any{map[string]any{"subject": "Invoice"}}}
	failed, err := pipeline.Execute(context.Background(), agent, payload)
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != types.ExecutionFailed {
		t.Fatalf("first run status = %s", failed.Status)
	}

	retried, err := pipeline.Retry(context.Background(), failed.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.ID == failed.ID {
		t.Error("retry reused the old ledger entry")
	}
	if retried.Status != types.ExecutionCompleted {
		t.Errorf("retry status = %s", retried.Status)
	}
	emails, ok := retried.TriggerData["emails"].([]any)
	if !ok || len(emails) != 1 {
		t.Errorf("retry trigger data = %v", retried.TriggerData)
	}

	// Old entry untouched.
	old, err := st.GetExecution(context.Background(), failed.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != types.ExecutionFailed {
		t.Errorf("old entry status = %s", old.Status)
	}
}

// flakyConnector fails on its first call and succeeds afterwards.
type flakyConnector struct {
	kind  connector.Kind
	calls int
}

func (f *flakyConnector) Kind() connector.Kind { return f.kind }

func (f *flakyConnector) Execute(_ context.Context, _ connector.Request) (map[string]any, error) {
	f.calls++
	if f.calls == 1 {
		return nil, errors.New("provider hiccup")
	}
	return map[string]any{"text": "recovered"}, nil
}
