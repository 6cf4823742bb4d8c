// Package scheduler is the periodic driver: each tick claims due agents,
// checks their triggers, and runs eligible ones through the pipeline.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/flowbothq/flowbot/engine"
	"github.com/flowbothq/flowbot/observe"
	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/trigger"
	"github.com/flowbothq/flowbot/types"
)

const defaultWorkers = 4

// Result is one agent's outcome within a tick.
type Result struct {
	AgentID     string
	ExecutionID string
	Ran         bool
	Skipped     string
	Err         error
}

// Summary aggregates one tick.
type Summary struct {
	Checked int
	Ran     int
	Failed  int
	Skipped int
	Results []Result
}

// Scheduler runs stateless batch passes over due agents. It holds no
// timer of its own; an external driver calls Tick.
type Scheduler struct {
	store     store.Store
	evaluator *trigger.Evaluator
	pipeline  *engine.Pipeline
	sink      observe.Sink
	workers   int
}

type Option func(*Scheduler)

func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithSink(sink observe.Sink) Option {
	return func(s *Scheduler) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func New(st store.Store, evaluator *trigger.Evaluator, pipeline *engine.Pipeline, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     st,
		evaluator: evaluator,
		pipeline:  pipeline,
		sink:      observe.NoopSink{},
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick processes every agent due at now. Agents are independent and run
// on a bounded worker pool; one agent's failure never aborts the pass.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (Summary, error) {
	agents, err := s.store.ListDue(ctx, now)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list due agents: %w", err)
	}

	results := make([]Result, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, agent := range agents {
		g.Go(func() error {
			results[i] = s.runOne(gctx, agent, now)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Checked: len(agents), Results: results}
	for _, r := range results {
		switch {
		case r.Err != nil:
			summary.Failed++
		case r.Ran:
			summary.Ran++
		default:
			summary.Skipped++
		}
	}
	log.Printf("[scheduler] tick at %s: checked=%d ran=%d failed=%d skipped=%d",
		now.UTC().Format(time.RFC3339), summary.Checked, summary.Ran, summary.Failed, summary.Skipped)
	_ = s.sink.Emit(ctx, observe.Event{
		Kind:   observe.KindScheduler,
		Status: observe.StatusCompleted,
		Attributes: map[string]any{
			"checked": summary.Checked,
			"ran":     summary.Ran,
			"failed":  summary.Failed,
			"skipped": summary.Skipped,
		},
	})
	return summary, nil
}

func (s *Scheduler) runOne(ctx context.Context, agent types.Agent, now time.Time) Result {
	result := Result{AgentID: agent.ID}

	if agent.NextRunAt == nil {
		result.Skipped = "no next run scheduled"
		return result
	}

	next, err := s.nextRun(agent, now)
	if err != nil {
		result.Err = err
		return result
	}

	// Claim before executing so a concurrent tick cannot double-run the
	// same agent.
	claimed, err := s.store.ClaimDue(ctx, agent.ID, *agent.NextRunAt, next)
	if err != nil {
		result.Err = fmt.Errorf("failed to claim agent %s: %w", agent.ID, err)
		return result
	}
	if !claimed {
		result.Skipped = "claimed by another pass"
		return result
	}

	decision := s.evaluator.Evaluate(ctx, agent, now)
	if decision.Cursor != "" && decision.Cursor != agent.TriggerCursor {
		if err := s.store.SaveTriggerCursor(ctx, agent.ID, decision.Cursor); err != nil {
			log.Printf("[scheduler] agent %s: failed to save trigger cursor: %v", agent.ID, err)
		}
	}
	if !decision.Run {
		result.Skipped = decision.Reason
		_ = s.sink.Emit(ctx, observe.Event{
			AgentID: agent.ID,
			UserID:  agent.UserID,
			Kind:    observe.KindTrigger,
			Status:  observe.StatusSkipped,
			Name:    string(agent.TriggerType),
			Message: decision.Reason,
		})
		return result
	}

	exec, err := s.pipeline.Execute(ctx, agent, decision.Payload)
	if err != nil {
		result.Err = fmt.Errorf("agent %s: %w", agent.ID, err)
		return result
	}
	result.Ran = true
	result.ExecutionID = exec.ID

	status := types.AgentActive
	if exec.Status == types.ExecutionFailed {
		status = types.AgentError
	}
	if err := s.store.UpdateRunState(ctx, agent.ID, now, nil, status); err != nil {
		result.Err = fmt.Errorf("agent %s: failed to update run state: %w", agent.ID, err)
	}
	return result
}

// nextRun computes the slot after now. A cron expression wins over the
// interval enum when set.
func (s *Scheduler) nextRun(agent types.Agent, now time.Time) (time.Time, error) {
	if expr := agent.Schedule.CronExpr; expr != "" {
		schedule, err := cron.ParseStandard(expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("agent %s: invalid cron expression %q: %w", agent.ID, expr, err)
		}
		return schedule.Next(now), nil
	}
	return now.Add(agent.Schedule.Interval.Duration()), nil
}
