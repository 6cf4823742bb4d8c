// Package observe carries structured events out of the execution path.
// Sinks fan events to logs or tracing backends without the engine knowing
// which are attached.
package observe

import "time"

type Kind string

type Status string

const (
	KindExecution Kind = "execution"
	KindStep      Kind = "step"
	KindTrigger   Kind = "trigger"
	KindScheduler Kind = "scheduler"
	KindCustom    Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

type Event struct {
	ID          string         `json:"id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"executionId,omitempty"`
	AgentID     string         `json:"agentId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Kind        Kind           `json:"kind"`
	Status      Status         `json:"status,omitempty"`
	Name        string         `json:"name,omitempty"`
	StepIndex   int            `json:"stepIndex,omitempty"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMs  int64          `json:"durationMs,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
