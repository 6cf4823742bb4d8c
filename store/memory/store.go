// Package memory provides an in-process store. It backs tests and the
// dev server when no durable backend is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/types"
)

type Store struct {
	mu          sync.Mutex
	agents      map[string]types.Agent
	connections map[string]types.ServiceConnection
	executions  map[string]types.Execution
}

func New() *Store {
	return &Store{
		agents:      map[string]types.Agent{},
		connections: map[string]types.ServiceConnection{},
		executions:  map[string]types.Execution{},
	}
}

func (s *Store) Close() error { return nil }

// --- agents ---

func (s *Store) SaveAgent(ctx context.Context, agent types.Agent) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if agent.CreatedAt == nil {
		agent.CreatedAt = &now
	}
	if agent.UpdatedAt == nil {
		agent.UpdatedAt = &now
	}
	if agent.Version <= 0 {
		agent.Version = 1
	}
	if agent.Status == "" {
		agent.Status = types.AgentActive
	}
	s.agents[agent.ID] = agent
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (types.Agent, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return types.Agent{}, store.ErrNotFound
	}
	return agent, nil
}

func (s *Store) ListAgents(ctx context.Context, userID string) ([]types.Agent, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		if userID != "" && agent.UserID != userID {
			continue
		}
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDue(ctx context.Context, now time.Time) ([]types.Agent, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Agent
	for _, agent := range s.agents {
		if agent.Status != types.AgentActive || agent.NextRunAt == nil {
			continue
		}
		if agent.NextRunAt.After(now) {
			continue
		}
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(*out[j].NextRunAt) })
	return out, nil
}

func (s *Store) ListByTrigger(ctx context.Context, trigger types.TriggerType, status types.AgentStatus) ([]types.Agent, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Agent
	for _, agent := range s.agents {
		if agent.TriggerType != trigger || agent.Status != status {
			continue
		}
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ClaimDue(ctx context.Context, id string, observed time.Time, next time.Time) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if agent.NextRunAt == nil || !agent.NextRunAt.Equal(observed) {
		return false, nil
	}
	n := next.UTC()
	agent.NextRunAt = &n
	s.agents[id] = agent
	return true, nil
}

func (s *Store) UpdateRunState(ctx context.Context, id string, lastRun time.Time, next *time.Time, status types.AgentStatus) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	last := lastRun.UTC()
	agent.LastRunAt = &last
	if next != nil {
		n := next.UTC()
		agent.NextRunAt = &n
	}
	agent.Status = status
	s.agents[id] = agent
	return nil
}

func (s *Store) SaveTriggerCursor(ctx context.Context, id string, cursor string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	agent.TriggerCursor = cursor
	s.agents[id] = agent
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

// --- connections ---

func (s *Store) SaveConnection(ctx context.Context, conn types.ServiceConnection) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn.Active {
		// One active connection per (user, service type): deactivate any other.
		for id, existing := range s.connections {
			if existing.UserID == conn.UserID && existing.ServiceType == conn.ServiceType && existing.ID != conn.ID {
				existing.Active = false
				s.connections[id] = existing
			}
		}
	}
	s.connections[conn.ID] = conn
	return nil
}

func (s *Store) ActiveConnection(ctx context.Context, userID, serviceType string) (types.ServiceConnection, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.connections {
		if conn.Active && conn.UserID == userID && conn.ServiceType == serviceType {
			return conn, nil
		}
	}
	return types.ServiceConnection{}, store.ErrNotFound
}

func (s *Store) ActiveConnections(ctx context.Context, userID string) (map[string]types.ServiceConnection, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]types.ServiceConnection{}
	for _, conn := range s.connections {
		if conn.Active && conn.UserID == userID {
			out[conn.ServiceType] = conn
		}
	}
	return out, nil
}

// --- executions ---

func (s *Store) CreateExecution(ctx context.Context, exec types.Execution) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.executions[exec.ID]; exists {
		return store.ErrConflict
	}
	if exec.Status == "" {
		exec.Status = types.ExecutionRunning
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}
	s.executions[exec.ID] = exec
	return nil
}

func (s *Store) FinishExecution(ctx context.Context, exec types.Execution) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.executions[exec.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Status.Terminal() {
		return store.ErrConflict
	}
	existing.Status = exec.Status
	existing.Log = exec.Log
	existing.Output = exec.Output
	existing.ErrorMessage = exec.ErrorMessage
	existing.DurationMS = exec.DurationMS
	if exec.CompletedAt != nil {
		existing.CompletedAt = exec.CompletedAt
	} else {
		now := time.Now().UTC()
		existing.CompletedAt = &now
	}
	s.executions[exec.ID] = existing
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (types.Execution, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return types.Execution{}, store.ErrNotFound
	}
	return exec, nil
}

func (s *Store) ListExecutions(ctx context.Context, query store.ListExecutionsQuery) ([]types.Execution, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Execution
	for _, exec := range s.executions {
		if query.AgentID != "" && exec.AgentID != query.AgentID {
			continue
		}
		if query.UserID != "" && exec.UserID != query.UserID {
			continue
		}
		if query.Status != "" && exec.Status != query.Status {
			continue
		}
		out = append(out, exec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if query.Offset > 0 {
		if query.Offset >= len(out) {
			return nil, nil
		}
		out = out[query.Offset:]
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}
