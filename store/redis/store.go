// Package redis implements the store contracts on Redis. Records are JSON
// blobs with sorted-set indexes for due agents and per-agent ledger order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/types"
)

const (
	defaultLimit  = 50
	defaultPrefix = "flowbot"
)

type Store struct {
	client   *goredis.Client
	prefix   string
	execTTL  time.Duration
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

// WithExecutionTTL bounds ledger retention in Redis. Zero keeps entries
// forever (retention is an external policy).
func WithExecutionTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.execTTL = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) agentKey(id string) string        { return s.prefix + ":agent:" + id }
func (s *Store) agentIndexKey() string            { return s.prefix + ":agents" }
func (s *Store) dueIndexKey() string              { return s.prefix + ":agents:due" }
func (s *Store) connKey(userID string) string     { return s.prefix + ":connections:" + userID }
func (s *Store) execKey(id string) string         { return s.prefix + ":exec:" + id }
func (s *Store) execAgentIdx(aid string) string   { return s.prefix + ":execs:agent:" + aid }
func (s *Store) execUserIdx(userID string) string { return s.prefix + ":execs:user:" + userID }

// --- agents ---

func (s *Store) SaveAgent(ctx context.Context, agent types.Agent) error {
	if agent.ID == "" {
		return fmt.Errorf("agent id is required")
	}
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

	raw, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("failed to marshal agent: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.agentKey(agent.ID), string(raw), 0)
	pipe.ZAdd(ctx, s.agentIndexKey(), goredis.Z{
		Score:  float64(agent.CreatedAt.Unix()),
		Member: agent.ID,
	})
	s.indexDue(ctx, pipe, agent)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save agent in redis: %w", err)
	}
	return nil
}

func (s *Store) indexDue(ctx context.Context, pipe goredis.Pipeliner, agent types.Agent) {
	if agent.Status == types.AgentActive && agent.NextRunAt != nil {
		pipe.ZAdd(ctx, s.dueIndexKey(), goredis.Z{
			Score:  float64(agent.NextRunAt.Unix()),
			Member: agent.ID,
		})
	} else {
		pipe.ZRem(ctx, s.dueIndexKey(), agent.ID)
	}
}

func (s *Store) GetAgent(ctx context.Context, id string) (types.Agent, error) {
	if id == "" {
		return types.Agent{}, fmt.Errorf("agent id is required")
	}
	raw, err := s.client.Get(ctx, s.agentKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return types.Agent{}, store.ErrNotFound
		}
		return types.Agent{}, fmt.Errorf("failed to load agent from redis: %w", err)
	}
	var agent types.Agent
	if err := json.Unmarshal([]byte(raw), &agent); err != nil {
		return types.Agent{}, fmt.Errorf("failed to decode agent from redis: %w", err)
	}
	return agent, nil
}

func (s *Store) ListAgents(ctx context.Context, userID string) ([]types.Agent, error) {
	ids, err := s.client.ZRevRange(ctx, s.agentIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agent ids: %w", err)
	}
	agents, err := s.loadAgents(ctx, ids)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return agents, nil
	}
	out := agents[:0]
	for _, agent := range agents {
		if agent.UserID == userID {
			out = append(out, agent)
		}
	}
	return out, nil
}

func (s *Store) ListDue(ctx context.Context, now time.Time) ([]types.Agent, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.dueIndexKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due agent ids: %w", err)
	}
	agents, err := s.loadAgents(ctx, ids)
	if err != nil {
		return nil, err
	}
	// The index can be ahead of the record; re-check against the record.
	out := agents[:0]
	for _, agent := range agents {
		if agent.Status != types.AgentActive || agent.NextRunAt == nil || agent.NextRunAt.After(now) {
			continue
		}
		out = append(out, agent)
	}
	return out, nil
}

func (s *Store) ListByTrigger(ctx context.Context, trigger types.TriggerType, status types.AgentStatus) ([]types.Agent, error) {
	agents, err := s.ListAgents(ctx, "")
	if err != nil {
		return nil, err
	}
	out := agents[:0]
	for _, agent := range agents {
		if agent.TriggerType == trigger && agent.Status == status {
			out = append(out, agent)
		}
	}
	return out, nil
}

func (s *Store) loadAgents(ctx context.Context, ids []string) ([]types.Agent, error) {
	if len(ids) == 0 {
		return []types.Agent{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.agentKey(id)
	}
	loaded, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget agents from redis: %w", err)
	}
	out := make([]types.Agent, 0, len(loaded))
	for _, raw := range loaded {
		if raw == nil {
			continue
		}
		var agent types.Agent
		if err := json.Unmarshal([]byte(fmt.Sprintf("%v", raw)), &agent); err != nil {
			continue
		}
		out = append(out, agent)
	}
	return out, nil
}

func (s *Store) ClaimDue(ctx context.Context, id string, observed time.Time, next time.Time) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("agent id is required")
	}
	claimed := false
	key := s.agentKey(id)
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		var agent types.Agent
		if err := json.Unmarshal([]byte(raw), &agent); err != nil {
			return fmt.Errorf("failed to decode agent from redis: %w", err)
		}
		if agent.NextRunAt == nil || !agent.NextRunAt.Equal(observed) {
			return nil
		}
		n := next.UTC()
		agent.NextRunAt = &n
		updated, err := json.Marshal(agent)
		if err != nil {
			return fmt.Errorf("failed to marshal agent: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, string(updated), 0)
			s.indexDue(ctx, pipe, agent)
			return nil
		})
		if err != nil {
			return err
		}
		claimed = true
		return nil
	}, key)
	if err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return false, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return false, store.ErrNotFound
		}
		return false, fmt.Errorf("failed to claim agent: %w", err)
	}
	return claimed, nil
}

func (s *Store) UpdateRunState(ctx context.Context, id string, lastRun time.Time, next *time.Time, status types.AgentStatus) error {
	return s.mutateAgent(ctx, id, func(agent *types.Agent) {
		last := lastRun.UTC()
		agent.LastRunAt = &last
		if next != nil {
			n := next.UTC()
			agent.NextRunAt = &n
		}
		agent.Status = status
	})
}

func (s *Store) SaveTriggerCursor(ctx context.Context, id string, cursor string) error {
	return s.mutateAgent(ctx, id, func(agent *types.Agent) {
		agent.TriggerCursor = cursor
	})
}

func (s *Store) mutateAgent(ctx context.Context, id string, mutate func(*types.Agent)) error {
	if id == "" {
		return fmt.Errorf("agent id is required")
	}
	key := s.agentKey(id)
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		var agent types.Agent
		if err := json.Unmarshal([]byte(raw), &agent); err != nil {
			return fmt.Errorf("failed to decode agent from redis: %w", err)
		}
		mutate(&agent)
		now := time.Now().UTC()
		agent.UpdatedAt = &now
		updated, err := json.Marshal(agent)
		if err != nil {
			return fmt.Errorf("failed to marshal agent: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, string(updated), 0)
			s.indexDue(ctx, pipe, agent)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to update agent in redis: %w", err)
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("agent id is required")
	}
	deleted, err := s.client.Del(ctx, s.agentKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete agent from redis: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.agentIndexKey(), id)
	pipe.ZRem(ctx, s.dueIndexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to deindex agent: %w", err)
	}
	if deleted == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- connections ---

func (s *Store) SaveConnection(ctx context.Context, conn types.ServiceConnection) error {
	if conn.ID == "" {
		return fmt.Errorf("connection id is required")
	}
	if conn.UserID == "" || conn.ServiceType == "" {
		return fmt.Errorf("connection user id and service type are required")
	}
	key := s.connKey(conn.UserID)
	if !conn.Active {
		// Drop the active slot only if it still belongs to this connection.
		raw, err := s.client.HGet(ctx, key, conn.ServiceType).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("failed to load connection from redis: %w", err)
		}
		if raw != "" {
			var existing types.ServiceConnection
			if json.Unmarshal([]byte(raw), &existing) == nil && existing.ID == conn.ID {
				if err := s.client.HDel(ctx, key, conn.ServiceType).Err(); err != nil {
					return fmt.Errorf("failed to deactivate connection: %w", err)
				}
			}
		}
		return nil
	}
	raw, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}
	if err := s.client.HSet(ctx, key, conn.ServiceType, string(raw)).Err(); err != nil {
		return fmt.Errorf("failed to save connection in redis: %w", err)
	}
	return nil
}

func (s *Store) ActiveConnection(ctx context.Context, userID, serviceType string) (types.ServiceConnection, error) {
	raw, err := s.client.HGet(ctx, s.connKey(userID), serviceType).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return types.ServiceConnection{}, store.ErrNotFound
		}
		return types.ServiceConnection{}, fmt.Errorf("failed to load connection from redis: %w", err)
	}
	var conn types.ServiceConnection
	if err := json.Unmarshal([]byte(raw), &conn); err != nil {
		return types.ServiceConnection{}, fmt.Errorf("failed to decode connection from redis: %w", err)
	}
	return conn, nil
}

func (s *Store) ActiveConnections(ctx context.Context, userID string) (map[string]types.ServiceConnection, error) {
	values, err := s.client.HGetAll(ctx, s.connKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list connections from redis: %w", err)
	}
	out := make(map[string]types.ServiceConnection, len(values))
	for serviceType, raw := range values {
		var conn types.ServiceConnection
		if err := json.Unmarshal([]byte(raw), &conn); err != nil {
			continue
		}
		out[serviceType] = conn
	}
	return out, nil
}

// --- executions ---

func (s *Store) CreateExecution(ctx context.Context, exec types.Execution) error {
	if exec.ID == "" {
		return fmt.Errorf("execution id is required")
	}
	if exec.AgentID == "" {
		return fmt.Errorf("execution agent id is required")
	}
	if exec.Status == "" {
		exec.Status = types.ExecutionRunning
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.execKey(exec.ID), string(raw), s.execTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to create execution in redis: %w", err)
	}
	if !ok {
		return store.ErrConflict
	}

	score := float64(exec.StartedAt.UnixNano())
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.execAgentIdx(exec.AgentID), goredis.Z{Score: score, Member: exec.ID})
	if exec.UserID != "" {
		pipe.ZAdd(ctx, s.execUserIdx(exec.UserID), goredis.Z{Score: score, Member: exec.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index execution: %w", err)
	}
	return nil
}

func (s *Store) FinishExecution(ctx context.Context, exec types.Execution) error {
	if exec.ID == "" {
		return fmt.Errorf("execution id is required")
	}
	if !exec.Status.Terminal() {
		return fmt.Errorf("execution status %q is not terminal", exec.Status)
	}
	key := s.execKey(exec.ID)
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		var existing types.Execution
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return fmt.Errorf("failed to decode execution from redis: %w", err)
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
		updated, err := json.Marshal(existing)
		if err != nil {
			return fmt.Errorf("failed to marshal execution: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, string(updated), goredis.KeepTTL)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
			return err
		}
		return fmt.Errorf("failed to finish execution in redis: %w", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (types.Execution, error) {
	if id == "" {
		return types.Execution{}, fmt.Errorf("execution id is required")
	}
	raw, err := s.client.Get(ctx, s.execKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return types.Execution{}, store.ErrNotFound
		}
		return types.Execution{}, fmt.Errorf("failed to load execution from redis: %w", err)
	}
	var exec types.Execution
	if err := json.Unmarshal([]byte(raw), &exec); err != nil {
		return types.Execution{}, fmt.Errorf("failed to decode execution from redis: %w", err)
	}
	return exec, nil
}

func (s *Store) ListExecutions(ctx context.Context, query store.ListExecutionsQuery) ([]types.Execution, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		ids []string
		err error
	)
	switch {
	case query.AgentID != "":
		ids, err = s.client.ZRevRange(ctx, s.execAgentIdx(query.AgentID), int64(offset), int64(offset+limit-1)).Result()
	case query.UserID != "":
		ids, err = s.client.ZRevRange(ctx, s.execUserIdx(query.UserID), int64(offset), int64(offset+limit-1)).Result()
	default:
		return nil, fmt.Errorf("redis ledger listing requires an agent or user filter")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list execution ids: %w", err)
	}
	if len(ids) == 0 {
		return []types.Execution{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.execKey(id)
	}
	loaded, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget executions from redis: %w", err)
	}

	out := make([]types.Execution, 0, len(loaded))
	for _, raw := range loaded {
		if raw == nil {
			continue
		}
		var exec types.Execution
		if err := json.Unmarshal([]byte(fmt.Sprintf("%v", raw)), &exec); err != nil {
			continue
		}
		if query.Status != "" && exec.Status != query.Status {
			continue
		}
		out = append(out, exec)
	}
	return out, nil
}
