package server

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/flowbothq/flowbot/trigger"
	"github.com/flowbothq/flowbot/types"
)

// handleWebhook fans an inbound delivery out to every active webhook
// agent whose endpoint prefix and event allow-list match. The raw payload
// reaches the step chain under a payload key so steps can reference it
// without colliding with their own outputs.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var payload map[string]any
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid webhook payload: %w", err))
			return
		}
	}

	eventType := trigger.EventType(r.Header, payload)
	agents, err := s.cfg.Store.ListByTrigger(r.Context(), types.TriggerWebhook, types.AgentActive)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	headers := make(map[string]any, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	received := s.now().UTC()
	triggered := make([]map[string]any, 0)
	for _, agent := range agents {
		if !trigger.MatchesWebhook(agent.TriggerConfig, r.URL.Path, eventType) {
			continue
		}

		exec, err := s.cfg.Pipeline.Execute(r.Context(), agent, map[string]any{
			"webhook_path": r.URL.Path,
			"method":       r.Method,
			"headers":      headers,
			"payload":      payload,
			"event_type":   eventType,
			"timestamp":    received.Format(time.RFC3339),
		})
		if err != nil {
			log.Printf("[webhook] agent %s: %v", agent.ID, err)
			triggered = append(triggered, map[string]any{
				"agentId": agent.ID,
				"error":   err.Error(),
			})
			continue
		}
		triggered = append(triggered, map[string]any{
			"agentId":     agent.ID,
			"executionId": exec.ID,
			"status":      exec.Status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"eventType": eventType,
		"matched":   len(triggered),
		"results":   triggered,
	})
}
