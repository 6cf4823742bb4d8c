// Package engine runs agent step chains and records each attempt in the
// execution ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowbothq/flowbot/connector"
	"github.com/flowbothq/flowbot/interp"
	"github.com/flowbothq/flowbot/observe"
	"github.com/flowbothq/flowbot/types"
)

const (
	defaultStepTimeout  = 60 * time.Second
	defaultTotalTimeout = 5 * time.Minute
)

// Result is the outcome of one step-chain run. Context holds the merged
// outputs of every successful step; Trace has one line per attempted step.
type Result struct {
	Context map[string]any
	Trace   []string
	Err     error
}

func (r Result) Success() bool { return r.Err == nil }

// Executor runs an agent's steps in position order against the connector
// registry. Steps are strictly sequential; each step's output merges into
// the shared context before the next step starts.
type Executor struct {
	registry    *connector.Registry
	sink        observe.Sink
	stepTimeout time.Duration
	maxDuration time.Duration
	now         func() time.Time
}

type ExecutorOption func(*Executor)

func WithStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

func WithMaxDuration(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.maxDuration = d
		}
	}
}

func WithSink(sink observe.Sink) ExecutorOption {
	return func(e *Executor) {
		if sink != nil {
			e.sink = sink
		}
	}
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func NewExecutor(registry *connector.Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:    registry,
		sink:        observe.NoopSink{},
		stepTimeout: defaultStepTimeout,
		maxDuration: defaultTotalTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the agent's steps against the trigger payload. The initial
// context is a copy of the payload; connections are the user's active
// connections keyed by service type. On the first failure remaining steps
// are skipped and the error identifies the failing step.
func (e *Executor) Run(ctx context.Context, agent types.Agent, triggerData map[string]any, connections map[string]types.ServiceConnection) Result {
	ctx, cancel := context.WithTimeout(ctx, e.maxDuration)
	defer cancel()

	stepContext := make(map[string]any, len(triggerData))
	for k, v := range triggerData {
		stepContext[k] = v
	}

	steps := agent.StepsInOrder()
	trace := make([]string, 0, len(steps))

	for i, step := range steps {
		index := i + 1
		kind, err := connector.ParseKind(step.Kind)
		if err != nil {
			trace = append(trace, fmt.Sprintf("step %d (%s): rejected: %v", index, step.Kind, err))
			return Result{Context: stepContext, Trace: trace, Err: &ExecutionFailed{StepIndex: index, StepKind: connector.Kind(step.Kind), Cause: err}}
		}

		conn, ok := e.registry.Get(kind)
		if !ok {
			err := fmt.Errorf("no connector registered for kind %q", kind)
			trace = append(trace, fmt.Sprintf("step %d (%s): rejected: %v", index, kind, err))
			return Result{Context: stepContext, Trace: trace, Err: &ExecutionFailed{StepIndex: index, StepKind: kind, Cause: err}}
		}

		var connection *types.ServiceConnection
		if service := kind.ConnectionService(); service != "" {
			if c, ok := connections[service]; ok && c.Active {
				connCopy := c
				connection = &connCopy
			}
		}

		started := e.now()
		output, err := e.runStep(ctx, conn, connector.Request{
			Config:     interp.Config(step.Config, stepContext),
			Context:    stepContext,
			Connection: connection,
		}, index, kind)
		elapsed := e.now().Sub(started)

		// Partial output survives a failure so the ledger can show what
		// the external service answered.
		for k, v := range output {
			stepContext[k] = v
		}

		if err != nil {
			trace = append(trace, fmt.Sprintf("step %d (%s): failed after %s: %v", index, kind, elapsed.Round(time.Millisecond), err))
			e.emitStep(ctx, agent, index, kind, observe.StatusFailed, elapsed, err)
			return Result{Context: stepContext, Trace: trace, Err: &ExecutionFailed{StepIndex: index, StepKind: kind, Cause: err}}
		}

		trace = append(trace, fmt.Sprintf("step %d (%s): completed in %s", index, kind, elapsed.Round(time.Millisecond)))
		e.emitStep(ctx, agent, index, kind, observe.StatusCompleted, elapsed, nil)
	}

	return Result{Context: stepContext, Trace: trace}
}

func (e *Executor) runStep(ctx context.Context, conn connector.Connector, req connector.Request, index int, kind connector.Kind) (map[string]any, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	output, err := conn.Execute(stepCtx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return output, &TimeoutError{StepIndex: index, StepKind: kind}
	}
	return output, err
}

func (e *Executor) emitStep(ctx context.Context, agent types.Agent, index int, kind connector.Kind, status observe.Status, elapsed time.Duration, err error) {
	event := observe.Event{
		AgentID:    agent.ID,
		UserID:     agent.UserID,
		Kind:       observe.KindStep,
		Status:     status,
		Name:       string(kind),
		StepIndex:  index,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	_ = e.sink.Emit(ctx, event)
}
