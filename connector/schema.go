package connector

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowbothq/flowbot/types"
)

// Config schemas for each connector kind. Validation happens when an agent
// definition is loaded or saved, so malformed step config surfaces as a
// ConfigError instead of failing mid-pipeline.
var configSchemas = map[Kind]map[string]any{
	KindLLM: {
		"type": "object",
		"properties": map[string]any{
			"prompt":   map[string]any{"type": "string"},
			"template": map[string]any{"type": "string"},
			"model":    map[string]any{"type": "string"},
		},
	},
	KindGmail: {
		"type": "object",
		"properties": map[string]any{
			"action":  map[string]any{"type": "string", "enum": []string{"send", "fetch"}},
			"to":      map[string]any{"type": "string"},
			"subject": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
			"query":   map[string]any{"type": "string"},
			"label":   map[string]any{"type": "string"},
		},
	},
	KindNotion: {
		"type": "object",
		"properties": map[string]any{
			"title":          map[string]any{"type": "string"},
			"content":        map[string]any{"type": "string"},
			"database_id":    map[string]any{"type": "string"},
			"parent_page_id": map[string]any{"type": "string"},
		},
		"anyOf": []any{
			map[string]any{"required": []string{"database_id"}},
			map[string]any{"required": []string{"parent_page_id"}},
		},
	},
	KindTelegram: {
		"type": "object",
		"properties": map[string]any{
			"chat_id": map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
			"text":    map[string]any{"type": "string"},
		},
	},
	KindHTTP: {
		"type": "object",
		"properties": map[string]any{
			"url":         map[string]any{"type": "string"},
			"webhook_url": map[string]any{"type": "string"},
			"method":      map[string]any{"type": "string"},
			"headers":     map[string]any{"type": "object"},
		},
		"anyOf": []any{
			map[string]any{"required": []string{"url"}},
			map[string]any{"required": []string{"webhook_url"}},
		},
	},
}

// ValidateStep checks a workflow step's kind and config before execution.
func ValidateStep(step types.WorkflowStep) error {
	kind, err := ParseKind(step.Kind)
	if err != nil {
		return err
	}
	schema, ok := configSchemas[kind]
	if !ok {
		return nil
	}

	config := step.Config
	if config == nil {
		config = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate step config: %w", err)
	}
	if result.Valid() {
		return nil
	}
	first := result.Errors()[0]
	return &ConfigError{
		Field:  first.Field(),
		Detail: first.Description(),
	}
}

// ValidateSteps validates every step in a chain.
func ValidateSteps(steps []types.WorkflowStep) error {
	for i, step := range steps {
		if err := ValidateStep(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Kind, err)
		}
	}
	return nil
}
