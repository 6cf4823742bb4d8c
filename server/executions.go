package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/types"
)

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	q := r.URL.Query()
	query := store.ListExecutionsQuery{
		AgentID: q.Get("agent_id"),
		UserID:  q.Get("user_id"),
		Status:  types.ExecutionStatus(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		query.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid offset %q", raw))
			return
		}
		query.Offset = offset
	}

	execs, err := s.cfg.Store.ListExecutions(r.Context(), query)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

func (s *Server) handleExecutionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/executions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("execution id is required"))
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		exec, err := s.cfg.Store.GetExecution(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exec)
	case "retry":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		exec, err := s.cfg.Pipeline.Retry(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, executionResponse(exec))
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown execution action %q", action))
	}
}
