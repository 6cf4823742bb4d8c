package server

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/flowbothq/flowbot/connector"
	"github.com/flowbothq/flowbot/types"
)

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		agents, err := s.cfg.Store.ListAgents(r.Context(), r.URL.Query().Get("user_id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
	case http.MethodPost:
		s.createAgent(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (s *Server) handleAgentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/agents/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("agent id is required"))
		return
	}

	if action == "execute" {
		s.executeAgent(w, r, id)
		return
	}
	if action != "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown agent action %q", action))
		return
	}

	switch r.Method {
	case http.MethodGet:
		agent, err := s.cfg.Store.GetAgent(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	case http.MethodPut:
		s.updateAgent(w, r, id)
	case http.MethodDelete:
		if err := s.cfg.Store.DeleteAgent(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var agent types.Agent
	if err := decodeJSON(r, &agent); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid agent body: %w", err))
		return
	}

	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Status == "" {
		agent.Status = types.AgentActive
	}
	now := s.now().UTC()
	agent.CreatedAt = &now
	agent.UpdatedAt = &now
	agent.Version = 1
	agent.LastRunAt = nil

	if err := validateAgent(agent); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Polled agents need an initial slot; webhook agents are push-driven
	// and never enter the due set.
	if agent.NextRunAt == nil && agent.TriggerType != types.TriggerWebhook {
		next := now.Add(agent.Schedule.Interval.Duration())
		agent.NextRunAt = &next
	}
	if agent.TriggerType == types.TriggerWebhook {
		agent.NextRunAt = nil
	}

	if err := s.cfg.Store.SaveAgent(r.Context(), agent); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) updateAgent(w http.ResponseWriter, r *http.Request, id string) {
	existing, err := s.cfg.Store.GetAgent(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var updated types.Agent
	if err := decodeJSON(r, &updated); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid agent body: %w", err))
		return
	}

	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.LastRunAt = existing.LastRunAt
	if updated.UserID == "" {
		updated.UserID = existing.UserID
	}
	if updated.Status == "" {
		updated.Status = existing.Status
	}
	if updated.NextRunAt == nil {
		updated.NextRunAt = existing.NextRunAt
	}
	if updated.TriggerCursor == "" {
		updated.TriggerCursor = existing.TriggerCursor
	}

	if err := validateAgent(updated); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// The version moves only when the step chain or trigger definition
	// changes, so ledger entries can be traced to the definition that ran.
	updated.Version = existing.Version
	if !reflect.DeepEqual(updated.WorkflowSteps, existing.WorkflowSteps) ||
		!reflect.DeepEqual(updated.TriggerConfig, existing.TriggerConfig) ||
		updated.TriggerType != existing.TriggerType {
		updated.Version = existing.Version + 1
	}
	now := s.now().UTC()
	updated.UpdatedAt = &now

	if updated.TriggerType == types.TriggerWebhook {
		updated.NextRunAt = nil
	}

	if err := s.cfg.Store.SaveAgent(r.Context(), updated); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) executeAgent(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var body struct {
		TriggerData map[string]any `json:"triggerData"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid execute body: %w", err))
			return
		}
	}

	exec, err := s.cfg.Pipeline.ExecuteByID(r.Context(), id, body.TriggerData)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executionResponse(exec))
}

func validateAgent(agent types.Agent) error {
	if err := types.ValidateAgent(&agent); err != nil {
		return err
	}
	return connector.ValidateSteps(agent.WorkflowSteps)
}

func executionResponse(exec types.Execution) map[string]any {
	resp := map[string]any{
		"executionId": exec.ID,
		"success":     exec.Status == types.ExecutionCompleted,
		"status":      exec.Status,
		"output":      exec.Output,
		"log":         exec.Log,
	}
	if exec.ErrorMessage != "" {
		resp["error"] = exec.ErrorMessage
	}
	return resp
}
