package types

import (
	"time"
)

// TriggerType identifies the condition that makes an agent eligible to run.
type TriggerType string

const (
	TriggerSchedule TriggerType = "schedule"
	TriggerGmail    TriggerType = "gmail"
	TriggerTelegram TriggerType = "telegram"
	TriggerWebhook  TriggerType = "webhook"
)

// ValidTriggerType reports whether t is one of the known trigger types.
func ValidTriggerType(t TriggerType) bool {
	switch t {
	case TriggerSchedule, TriggerGmail, TriggerTelegram, TriggerWebhook:
		return true
	}
	return false
}

// AgentStatus is the lifecycle status of an agent.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentPaused   AgentStatus = "paused"
	AgentError    AgentStatus = "error"
	AgentInactive AgentStatus = "inactive"
)

// ValidAgentStatus reports whether s is one of the known statuses.
func ValidAgentStatus(s AgentStatus) bool {
	switch s {
	case AgentActive, AgentPaused, AgentError, AgentInactive:
		return true
	}
	return false
}

// ScheduleInterval is the coarse recurrence for schedule-triggered agents.
type ScheduleInterval string

const (
	IntervalMinutely ScheduleInterval = "minutely"
	IntervalHourly   ScheduleInterval = "hourly"
	IntervalDaily    ScheduleInterval = "daily"
	IntervalWeekly   ScheduleInterval = "weekly"
)

// Duration returns the wall-clock length of one interval. Unknown values
// fall back to hourly.
func (i ScheduleInterval) Duration() time.Duration {
	switch i {
	case IntervalMinutely:
		return time.Minute
	case IntervalHourly:
		return time.Hour
	case IntervalDaily:
		return 24 * time.Hour
	case IntervalWeekly:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// ScheduleConfig controls when a schedule-triggered agent becomes due.
// CronExpr, when set, takes precedence over Interval.
type ScheduleConfig struct {
	Interval ScheduleInterval `json:"interval,omitempty"`
	CronExpr string           `json:"cronExpr,omitempty"`
	Enabled  bool             `json:"enabled"`
}

// WorkflowStep is one action in an agent's chain. Steps are owned by their
// agent and ordered by Position; ties keep declaration order.
type WorkflowStep struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Config   map[string]any `json:"config,omitempty"`
	Position int            `json:"position"`
}

// Agent is a user-defined automation: one trigger plus an ordered step chain.
type Agent struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	TriggerType   TriggerType    `json:"triggerType"`
	TriggerConfig map[string]any `json:"triggerConfig,omitempty"`
	WorkflowSteps []WorkflowStep `json:"workflowSteps"`
	Schedule      ScheduleConfig `json:"schedule"`
	Status        AgentStatus    `json:"status"`
	LastRunAt     *time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt     *time.Time     `json:"nextRunAt,omitempty"`
	TriggerCursor string         `json:"triggerCursor,omitempty"`
	Version       int            `json:"version"`
	CreatedAt     *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time     `json:"updatedAt,omitempty"`
}

// StepsInOrder returns the agent's steps sorted by Position, preserving
// declaration order for equal positions.
func (a *Agent) StepsInOrder() []WorkflowStep {
	out := make([]WorkflowStep, len(a.WorkflowSteps))
	copy(out, a.WorkflowSteps)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Position < out[j-1].Position; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ServiceConnection is a per-user credential bundle for one external service.
// At most one active connection exists per (user, service type).
type ServiceConnection struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	ServiceType   string         `json:"serviceType"`
	AccessToken   string         `json:"accessToken"`
	RefreshToken  string         `json:"refreshToken,omitempty"`
	ExpiresAt     *time.Time     `json:"expiresAt,omitempty"`
	ServiceConfig map[string]any `json:"serviceConfig,omitempty"`
	Active        bool           `json:"active"`
}

// ExecutionStatus is the ledger state machine: running is the only
// non-terminal state.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// Execution is one ledger entry: a single attempt at running an agent's
// chain. Terminal entries are immutable.
type Execution struct {
	ID           string          `json:"id"`
	AgentID      string          `json:"agentId"`
	UserID       string          `json:"userId"`
	TriggerData  map[string]any  `json:"triggerData,omitempty"`
	Status       ExecutionStatus `json:"status"`
	Log          []string        `json:"log,omitempty"`
	Output       map[string]any  `json:"output,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	DurationMS   int64           `json:"durationMs,omitempty"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}
