package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/types"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultLimit       = 50
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

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

	triggerRaw, err := marshalMap(agent.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}
	stepsRaw, err := json.Marshal(agent.WorkflowSteps)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow steps: %w", err)
	}
	scheduleRaw, err := json.Marshal(agent.Schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule config: %w", err)
	}

	const q = `
INSERT INTO agents (
  id, user_id, name, description, trigger_type, trigger_config, workflow_steps,
  schedule_config, status, last_run_at, next_run_at, trigger_cursor, version,
  created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  user_id=excluded.user_id,
  name=excluded.name,
  description=excluded.description,
  trigger_type=excluded.trigger_type,
  trigger_config=excluded.trigger_config,
  workflow_steps=excluded.workflow_steps,
  schedule_config=excluded.schedule_config,
  status=excluded.status,
  last_run_at=excluded.last_run_at,
  next_run_at=excluded.next_run_at,
  trigger_cursor=excluded.trigger_cursor,
  version=excluded.version,
  updated_at=excluded.updated_at;
`
	_, err = s.db.ExecContext(
		ctx,
		q,
		agent.ID,
		agent.UserID,
		agent.Name,
		agent.Description,
		string(agent.TriggerType),
		triggerRaw,
		string(stepsRaw),
		string(scheduleRaw),
		string(agent.Status),
		toNullableTime(agent.LastRunAt),
		toNullableTime(agent.NextRunAt),
		agent.TriggerCursor,
		agent.Version,
		formatTime(*agent.CreatedAt),
		formatTime(*agent.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return nil
}

const agentColumns = `
id, user_id, name, description, trigger_type, trigger_config, workflow_steps,
schedule_config, status, last_run_at, next_run_at, trigger_cursor, version,
created_at, updated_at
`

func (s *Store) GetAgent(ctx context.Context, id string) (types.Agent, error) {
	if strings.TrimSpace(id) == "" {
		return types.Agent{}, fmt.Errorf("agent id is required")
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = ?;", id)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Agent{}, store.ErrNotFound
		}
		return types.Agent{}, fmt.Errorf("failed to load agent: %w", err)
	}
	return agent, nil
}

func (s *Store) ListAgents(ctx context.Context, userID string) ([]types.Agent, error) {
	query := "SELECT " + agentColumns + " FROM agents"
	args := []any{}
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC;"
	return s.queryAgents(ctx, query, args...)
}

func (s *Store) ListDue(ctx context.Context, now time.Time) ([]types.Agent, error) {
	const q = "SELECT " + agentColumns + `
FROM agents
WHERE status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?
ORDER BY next_run_at ASC;`
	return s.queryAgents(ctx, q, string(types.AgentActive), formatTime(now))
}

func (s *Store) ListByTrigger(ctx context.Context, trigger types.TriggerType, status types.AgentStatus) ([]types.Agent, error) {
	const q = "SELECT " + agentColumns + `
FROM agents
WHERE trigger_type = ? AND status = ?
ORDER BY created_at ASC;`
	return s.queryAgents(ctx, q, string(trigger), string(status))
}

func (s *Store) queryAgents(ctx context.Context, query string, args ...any) ([]types.Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []types.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agents: %w", err)
	}
	return agents, nil
}

func (s *Store) ClaimDue(ctx context.Context, id string, observed time.Time, next time.Time) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("agent id is required")
	}
	const q = `
UPDATE agents
SET next_run_at = ?, updated_at = ?
WHERE id = ? AND next_run_at = ?;`
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx, q,
		formatTime(next),
		now,
		id,
		formatTime(observed),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim agent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected == 1, nil
}

func (s *Store) UpdateRunState(ctx context.Context, id string, lastRun time.Time, next *time.Time, status types.AgentStatus) error {
	if id == "" {
		return fmt.Errorf("agent id is required")
	}
	now := formatTime(time.Now())
	var (
		res sql.Result
		err error
	)
	if next != nil {
		const q = `UPDATE agents SET last_run_at = ?, next_run_at = ?, status = ?, updated_at = ? WHERE id = ?;`
		res, err = s.db.ExecContext(ctx, q,
			formatTime(lastRun),
			formatTime(*next),
			string(status),
			now,
			id,
		)
	} else {
		const q = `UPDATE agents SET last_run_at = ?, status = ?, updated_at = ? WHERE id = ?;`
		res, err = s.db.ExecContext(ctx, q,
			formatTime(lastRun),
			string(status),
			now,
			id,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update agent run state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveTriggerCursor(ctx context.Context, id string, cursor string) error {
	if id == "" {
		return fmt.Errorf("agent id is required")
	}
	const q = `UPDATE agents SET trigger_cursor = ?, updated_at = ? WHERE id = ?;`
	res, err := s.db.ExecContext(ctx, q, cursor, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to save trigger cursor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read cursor update result: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("agent id is required")
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE id = ?;", id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
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
	configRaw, err := marshalMap(conn.ServiceConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal service config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if conn.Active {
		// A user holds at most one active connection per service; the
		// newest save wins and the previous one is deactivated.
		const deactivate = `
UPDATE service_connections SET is_active = 0
WHERE user_id = ? AND service_type = ? AND is_active = 1 AND id <> ?;
`
		if _, err := tx.ExecContext(ctx, deactivate, conn.UserID, conn.ServiceType, conn.ID); err != nil {
			return fmt.Errorf("failed to deactivate previous connection: %w", err)
		}
	}

	const q = `
INSERT INTO service_connections (
  id, user_id, service_type, access_token, refresh_token, expires_at, service_config, is_active
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  user_id=excluded.user_id,
  service_type=excluded.service_type,
  access_token=excluded.access_token,
  refresh_token=excluded.refresh_token,
  expires_at=excluded.expires_at,
  service_config=excluded.service_config,
  is_active=excluded.is_active;
`
	_, err = tx.ExecContext(ctx, q,
		conn.ID,
		conn.UserID,
		conn.ServiceType,
		conn.AccessToken,
		conn.RefreshToken,
		toNullableTime(conn.ExpiresAt),
		configRaw,
		boolToInt(conn.Active),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to save connection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

const connectionColumns = `
id, user_id, service_type, access_token, refresh_token, expires_at, service_config, is_active
`

func (s *Store) ActiveConnection(ctx context.Context, userID, serviceType string) (types.ServiceConnection, error) {
	const q = "SELECT " + connectionColumns + `
FROM service_connections
WHERE user_id = ? AND service_type = ? AND is_active = 1;`
	row := s.db.QueryRowContext(ctx, q, userID, serviceType)
	conn, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ServiceConnection{}, store.ErrNotFound
		}
		return types.ServiceConnection{}, fmt.Errorf("failed to load connection: %w", err)
	}
	return conn, nil
}

func (s *Store) ActiveConnections(ctx context.Context, userID string) (map[string]types.ServiceConnection, error) {
	const q = "SELECT " + connectionColumns + `
FROM service_connections
WHERE user_id = ? AND is_active = 1;`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	out := map[string]types.ServiceConnection{}
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		out[conn.ServiceType] = conn
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
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

	triggerRaw, err := marshalMap(exec.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}
	logRaw, err := marshalLog(exec.Log)
	if err != nil {
		return fmt.Errorf("failed to marshal execution log: %w", err)
	}
	outputRaw, err := marshalMap(exec.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal execution output: %w", err)
	}

	const q = `
INSERT INTO executions (
  id, agent_id, user_id, trigger_data, status, log, output, error_message,
  duration_ms, started_at, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err = s.db.ExecContext(ctx, q,
		exec.ID,
		exec.AgentID,
		exec.UserID,
		triggerRaw,
		string(exec.Status),
		logRaw,
		outputRaw,
		exec.ErrorMessage,
		exec.DurationMS,
		formatTime(exec.StartedAt),
		toNullableTime(exec.CompletedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to create execution: %w", err)
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
	logRaw, err := marshalLog(exec.Log)
	if err != nil {
		return fmt.Errorf("failed to marshal execution log: %w", err)
	}
	outputRaw, err := marshalMap(exec.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal execution output: %w", err)
	}
	completed := exec.CompletedAt
	if completed == nil {
		now := time.Now().UTC()
		completed = &now
	}

	// The running-status guard makes terminal entries immutable.
	const q = `
UPDATE executions
SET status = ?, log = ?, output = ?, error_message = ?, duration_ms = ?, completed_at = ?
WHERE id = ? AND status = ?;`
	res, err := s.db.ExecContext(ctx, q,
		string(exec.Status),
		logRaw,
		outputRaw,
		exec.ErrorMessage,
		exec.DurationMS,
		formatTime(*completed),
		exec.ID,
		string(types.ExecutionRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read finish result: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetExecution(ctx, exec.ID); getErr != nil {
			return getErr
		}
		return store.ErrConflict
	}
	return nil
}

const executionColumns = `
id, agent_id, user_id, trigger_data, status, log, output, error_message,
duration_ms, started_at, completed_at
`

func (s *Store) GetExecution(ctx context.Context, id string) (types.Execution, error) {
	if strings.TrimSpace(id) == "" {
		return types.Execution{}, fmt.Errorf("execution id is required")
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+executionColumns+" FROM executions WHERE id = ?;", id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Execution{}, store.ErrNotFound
		}
		return types.Execution{}, fmt.Errorf("failed to load execution: %w", err)
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
		where []string
		args  []any
	)
	if query.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, query.AgentID)
	}
	if query.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, query.UserID)
	}
	if query.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(query.Status))
	}

	sqlText := "SELECT " + executionColumns + " FROM executions"
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	sqlText += " ORDER BY started_at DESC LIMIT ? OFFSET ?;"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	execs := make([]types.Execution, 0, limit)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}
	return execs, nil
}

// --- row scanning ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (types.Agent, error) {
	var (
		agent       types.Agent
		triggerType string
		status      string
		triggerRaw  string
		stepsRaw    string
		scheduleRaw string
		lastRunRaw  sql.NullString
		nextRunRaw  sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	err := row.Scan(
		&agent.ID,
		&agent.UserID,
		&agent.Name,
		&agent.Description,
		&triggerType,
		&triggerRaw,
		&stepsRaw,
		&scheduleRaw,
		&status,
		&lastRunRaw,
		&nextRunRaw,
		&agent.TriggerCursor,
		&agent.Version,
		&createdRaw,
		&updatedRaw,
	)
	if err != nil {
		return types.Agent{}, err
	}
	agent.TriggerType = types.TriggerType(triggerType)
	agent.Status = types.AgentStatus(status)
	if err := json.Unmarshal([]byte(triggerRaw), &agent.TriggerConfig); err != nil {
		return types.Agent{}, fmt.Errorf("failed to decode trigger config: %w", err)
	}
	if err := json.Unmarshal([]byte(stepsRaw), &agent.WorkflowSteps); err != nil {
		return types.Agent{}, fmt.Errorf("failed to decode workflow steps: %w", err)
	}
	if err := json.Unmarshal([]byte(scheduleRaw), &agent.Schedule); err != nil {
		return types.Agent{}, fmt.Errorf("failed to decode schedule config: %w", err)
	}
	if agent.LastRunAt, err = parseNullableTime(lastRunRaw); err != nil {
		return types.Agent{}, fmt.Errorf("failed to parse last_run_at: %w", err)
	}
	if agent.NextRunAt, err = parseNullableTime(nextRunRaw); err != nil {
		return types.Agent{}, fmt.Errorf("failed to parse next_run_at: %w", err)
	}
	created, err := parseRequiredTime(createdRaw)
	if err != nil {
		return types.Agent{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	updated, err := parseRequiredTime(updatedRaw)
	if err != nil {
		return types.Agent{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	agent.CreatedAt = &created
	agent.UpdatedAt = &updated
	return agent, nil
}

func scanConnection(row rowScanner) (types.ServiceConnection, error) {
	var (
		conn       types.ServiceConnection
		expiresRaw sql.NullString
		configRaw  string
		active     int
	)
	err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.ServiceType,
		&conn.AccessToken,
		&conn.RefreshToken,
		&expiresRaw,
		&configRaw,
		&active,
	)
	if err != nil {
		return types.ServiceConnection{}, err
	}
	if err := json.Unmarshal([]byte(configRaw), &conn.ServiceConfig); err != nil {
		return types.ServiceConnection{}, fmt.Errorf("failed to decode service config: %w", err)
	}
	if conn.ExpiresAt, err = parseNullableTime(expiresRaw); err != nil {
		return types.ServiceConnection{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	conn.Active = active == 1
	return conn, nil
}

func scanExecution(row rowScanner) (types.Execution, error) {
	var (
		exec         types.Execution
		status       string
		triggerRaw   string
		logRaw       string
		outputRaw    string
		startedRaw   string
		completedRaw sql.NullString
	)
	err := row.Scan(
		&exec.ID,
		&exec.AgentID,
		&exec.UserID,
		&triggerRaw,
		&status,
		&logRaw,
		&outputRaw,
		&exec.ErrorMessage,
		&exec.DurationMS,
		&startedRaw,
		&completedRaw,
	)
	if err != nil {
		return types.Execution{}, err
	}
	exec.Status = types.ExecutionStatus(status)
	if err := json.Unmarshal([]byte(triggerRaw), &exec.TriggerData); err != nil {
		return types.Execution{}, fmt.Errorf("failed to decode trigger data: %w", err)
	}
	if err := json.Unmarshal([]byte(logRaw), &exec.Log); err != nil {
		return types.Execution{}, fmt.Errorf("failed to decode execution log: %w", err)
	}
	if err := json.Unmarshal([]byte(outputRaw), &exec.Output); err != nil {
		return types.Execution{}, fmt.Errorf("failed to decode execution output: %w", err)
	}
	if exec.StartedAt, err = parseRequiredTime(startedRaw); err != nil {
		return types.Execution{}, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if completedRaw.Valid && strings.TrimSpace(completedRaw.String) != "" {
		completed, err := parseRequiredTime(completedRaw.String)
		if err != nil {
			return types.Execution{}, fmt.Errorf("failed to parse completed_at: %w", err)
		}
		exec.CompletedAt = &completed
	}
	return exec, nil
}

// --- helpers ---

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func marshalLog(log []string) (string, error) {
	if log == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(log)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// timeLayout pads the fraction to a fixed width so lexicographic
// comparison of stored timestamps matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseRequiredTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseNullableTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	t, err := parseRequiredTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
