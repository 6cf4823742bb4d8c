package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/flowbothq/flowbot/observe"
	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/types"
)

// Pipeline drives one full execution attempt: it opens a ledger entry,
// runs the step chain, and finalizes the entry with the outcome. Manual
// execute and retry both come through here.
type Pipeline struct {
	store    store.Store
	executor *Executor
	sink     observe.Sink
	now      func() time.Time
	newID    func() string
}

type PipelineOption func(*Pipeline)

func WithPipelineSink(sink observe.Sink) PipelineOption {
	return func(p *Pipeline) {
		if sink != nil {
			p.sink = sink
		}
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithIDGenerator(newID func() string) PipelineOption {
	return func(p *Pipeline) {
		if newID != nil {
			p.newID = newID
		}
	}
}

func NewPipeline(st store.Store, executor *Executor, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:    st,
		executor: executor,
		sink:     observe.NoopSink{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs the agent's step chain against the trigger payload and
// returns the finalized ledger entry. The entry exists in the running
// state for the duration of the run; a step failure is recorded on the
// entry, not returned as an error.
func (p *Pipeline) Execute(ctx context.Context, agent types.Agent, triggerData map[string]any) (types.Execution, error) {
	started := p.now().UTC()
	exec := types.Execution{
		ID:          p.newID(),
		AgentID:     agent.ID,
		UserID:      agent.UserID,
		TriggerData: triggerData,
		Status:      types.ExecutionRunning,
		StartedAt:   started,
	}
	if err := p.store.CreateExecution(ctx, exec); err != nil {
		return types.Execution{}, fmt.Errorf("failed to create execution record: %w", err)
	}

	p.emit(ctx, exec, observe.StatusStarted, 0, nil)

	result := p.executor.Run(ctx, agent, triggerData, p.connections(ctx, agent.UserID))

	completed := p.now().UTC()
	exec.Log = result.Trace
	exec.Output = result.Context
	exec.DurationMS = completed.Sub(started).Milliseconds()
	exec.CompletedAt = &completed
	if result.Err != nil {
		exec.Status = types.ExecutionFailed
		exec.ErrorMessage = result.Err.Error()
	} else {
		exec.Status = types.ExecutionCompleted
	}

	if err := p.store.FinishExecution(ctx, exec); err != nil {
		return types.Execution{}, fmt.Errorf("failed to finalize execution %s: %w", exec.ID, err)
	}

	// Every run, however triggered, moves the agent's bookkeeping. The
	// scheduler follows up with the next slot; push and manual runs leave
	// next_run_at alone.
	status := types.AgentActive
	if result.Err != nil {
		status = types.AgentError
	}
	if err := p.store.UpdateRunState(ctx, agent.ID, completed, nil, status); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[engine] agent %s: failed to update run state: %v", agent.ID, err)
	}

	if result.Err != nil {
		p.emit(ctx, exec, observe.StatusFailed, exec.DurationMS, result.Err)
	} else {
		p.emit(ctx, exec, observe.StatusCompleted, exec.DurationMS, nil)
	}
	return exec, nil
}

// ExecuteByID loads the agent and runs it with the given trigger payload.
func (p *Pipeline) ExecuteByID(ctx context.Context, agentID string, triggerData map[string]any) (types.Execution, error) {
	agent, err := p.store.GetAgent(ctx, agentID)
	if err != nil {
		return types.Execution{}, fmt.Errorf("failed to load agent %s: %w", agentID, err)
	}
	if triggerData == nil {
		triggerData = map[string]any{"manual": true, "triggered_at": p.now().UTC().Format(time.RFC3339)}
	}
	return p.Execute(ctx, agent, triggerData)
}

// Retry re-runs a failed execution with its original trigger payload in a
// brand-new ledger entry. Entries in any other state are rejected.
func (p *Pipeline) Retry(ctx context.Context, executionID string) (types.Execution, error) {
	previous, err := p.store.GetExecution(ctx, executionID)
	if err != nil {
		return types.Execution{}, fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}
	if previous.Status != types.ExecutionFailed {
		return types.Execution{}, fmt.Errorf("execution %s is %s, only failed executions can be retried: %w",
			executionID, previous.Status, store.ErrConflict)
	}

	agent, err := p.store.GetAgent(ctx, previous.AgentID)
	if err != nil {
		return types.Execution{}, fmt.Errorf("failed to load agent %s: %w", previous.AgentID, err)
	}
	return p.Execute(ctx, agent, previous.TriggerData)
}

func (p *Pipeline) connections(ctx context.Context, userID string) map[string]types.ServiceConnection {
	conns, err := p.store.ActiveConnections(ctx, userID)
	if err != nil {
		// Connector-level checks turn the absence into ConnectionMissing
		// per step, which is the error the ledger should carry.
		return map[string]types.ServiceConnection{}
	}
	return conns
}

func (p *Pipeline) emit(ctx context.Context, exec types.Execution, status observe.Status, durationMS int64, err error) {
	event := observe.Event{
		ExecutionID: exec.ID,
		AgentID:     exec.AgentID,
		UserID:      exec.UserID,
		Kind:        observe.KindExecution,
		Status:      status,
		DurationMs:  durationMS,
	}
	if err != nil {
		event.Error = err.Error()
	}
	_ = p.sink.Emit(ctx, event)
}
