package types

import (
	"fmt"
	"strings"
)

const (
	maxNameLen        = 255
	maxDescriptionLen = 1000
)

// ValidationError reports a malformed agent or step definition, detected
// before execution starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateAgent checks an agent definition for structural problems. Step
// configs are validated separately against their connector schemas.
func ValidateAgent(a *Agent) error {
	if a == nil {
		return &ValidationError{Message: "agent is required"}
	}
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Message: "must be a non-empty string"}
	}
	if len(a.Name) > maxNameLen {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxNameLen)}
	}
	if len(a.Description) > maxDescriptionLen {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLen)}
	}
	if !ValidTriggerType(a.TriggerType) {
		return &ValidationError{Field: "triggerType", Message: fmt.Sprintf("unknown trigger type %q", a.TriggerType)}
	}
	if a.Status != "" && !ValidAgentStatus(a.Status) {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", a.Status)}
	}
	seen := make(map[string]struct{}, len(a.WorkflowSteps))
	for i, step := range a.WorkflowSteps {
		if strings.TrimSpace(step.Kind) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("workflowSteps[%d].kind", i),
				Message: "step kind is required",
			}
		}
		if step.ID != "" {
			if _, dup := seen[step.ID]; dup {
				return &ValidationError{
					Field:   fmt.Sprintf("workflowSteps[%d].id", i),
					Message: fmt.Sprintf("duplicate step id %q", step.ID),
				}
			}
			seen[step.ID] = struct{}{}
		}
	}
	return nil
}
