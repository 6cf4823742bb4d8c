// Package store defines the persistence contracts the engine runs against:
// agent definitions, service connections, and the execution ledger.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowbothq/flowbot/types"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// ListExecutionsQuery filters ledger listings. Zero values mean "no filter".
type ListExecutionsQuery struct {
	AgentID string
	UserID  string
	Status  types.ExecutionStatus
	Limit   int
	Offset  int
}

// AgentStore reads and writes agent definitions and their scheduling
// bookkeeping.
type AgentStore interface {
	SaveAgent(ctx context.Context, agent types.Agent) error
	GetAgent(ctx context.Context, id string) (types.Agent, error)
	ListAgents(ctx context.Context, userID string) ([]types.Agent, error)

	// ListDue returns active agents whose next_run_at is set and not after
	// now, ordered by next_run_at.
	ListDue(ctx context.Context, now time.Time) ([]types.Agent, error)

	// ListByTrigger returns agents with the given trigger type and status.
	ListByTrigger(ctx context.Context, trigger types.TriggerType, status types.AgentStatus) ([]types.Agent, error)

	// ClaimDue advances next_run_at from its observed value to next in a
	// single conditional write. It reports false when another pass already
	// claimed the agent.
	ClaimDue(ctx context.Context, id string, observed time.Time, next time.Time) (bool, error)

	// UpdateRunState writes post-run bookkeeping: last_run_at, optionally
	// next_run_at, and the lifecycle status.
	UpdateRunState(ctx context.Context, id string, lastRun time.Time, next *time.Time, status types.AgentStatus) error

	// SaveTriggerCursor persists the provider watermark for inbox-style
	// triggers so eligibility checks stay idempotent across ticks.
	SaveTriggerCursor(ctx context.Context, id string, cursor string) error

	DeleteAgent(ctx context.Context, id string) error
}

// ConnectionStore reads per-user service credentials. The engine never
// writes connections; SaveConnection exists for onboarding collaborators
// and seeding.
type ConnectionStore interface {
	SaveConnection(ctx context.Context, conn types.ServiceConnection) error

	// ActiveConnection returns the single active connection for (user,
	// service type), or ErrNotFound.
	ActiveConnection(ctx context.Context, userID, serviceType string) (types.ServiceConnection, error)

	// ActiveConnections returns all active connections for a user keyed by
	// service type.
	ActiveConnections(ctx context.Context, userID string) (map[string]types.ServiceConnection, error)
}

// ExecutionStore is the append-only execution ledger. Entries are created
// in the running state and finalized exactly once; FinishExecution returns
// ErrConflict when the entry is already terminal.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec types.Execution) error
	FinishExecution(ctx context.Context, exec types.Execution) error
	GetExecution(ctx context.Context, id string) (types.Execution, error)
	ListExecutions(ctx context.Context, query ListExecutionsQuery) ([]types.Execution, error)
}

// Store bundles every persistence concern behind one handle.
type Store interface {
	AgentStore
	ConnectionStore
	ExecutionStore

	Close() error
}
