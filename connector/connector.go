// Package connector implements the step-execution capability against each
// external service family. The set of kinds is closed: unknown kinds are a
// validation error at load time, never a runtime default branch.
package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowbothq/flowbot/types"
)

// Kind tags one connector variant.
type Kind string

const (
	KindLLM      Kind = "llm"
	KindGmail    Kind = "gmail"
	KindNotion   Kind = "notion"
	KindTelegram Kind = "telegram"
	KindHTTP     Kind = "http"
)

// Kinds lists every known connector kind.
func Kinds() []Kind {
	return []Kind{KindLLM, KindGmail, KindNotion, KindTelegram, KindHTTP}
}

// ParseKind maps a step kind string onto the closed Kind set. Legacy step
// type aliases from older agent definitions are folded in.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "llm", "llm_summarize", "llm_process", "llm_analyze":
		return KindLLM, nil
	case "gmail", "gmail_send", "gmail_fetch":
		return KindGmail, nil
	case "notion", "notion_create", "notion_create_page":
		return KindNotion, nil
	case "telegram", "telegram_send", "telegram_message":
		return KindTelegram, nil
	case "http", "webhook", "webhook_call":
		return KindHTTP, nil
	default:
		return "", &types.ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown step kind %q", raw),
		}
	}
}

// ConnectionService returns the service type a kind draws credentials
// from, or "" when the kind needs no connection.
func (k Kind) ConnectionService() string {
	switch k {
	case KindGmail, KindNotion, KindTelegram:
		return string(k)
	default:
		return ""
	}
}

// Request carries everything one step execution needs. Config is already
// interpolated by the caller. Connection is nil when the user has no
// active connection for the kind's service.
type Request struct {
	Config     map[string]any
	Context    map[string]any
	Connection *types.ServiceConnection
}

// Connector executes one step kind against its external service.
type Connector interface {
	Kind() Kind
	Execute(ctx context.Context, req Request) (map[string]any, error)
}

// Registry holds the closed connector set, built once at startup.
type Registry struct {
	connectors map[Kind]Connector
}

func NewRegistry(connectors ...Connector) (*Registry, error) {
	r := &Registry{connectors: make(map[Kind]Connector, len(connectors))}
	for _, c := range connectors {
		if c == nil {
			return nil, fmt.Errorf("connector is nil")
		}
		kind := c.Kind()
		if _, exists := r.connectors[kind]; exists {
			return nil, fmt.Errorf("connector %q already registered", kind)
		}
		r.connectors[kind] = c
	}
	return r, nil
}

// Get resolves a connector by kind.
func (r *Registry) Get(kind Kind) (Connector, bool) {
	c, ok := r.connectors[kind]
	return c, ok
}

// requireString pulls a non-empty string field out of an interpolated
// config, trying the given keys in order.
func requireString(config map[string]any, keys ...string) (string, error) {
	for _, key := range keys {
		if raw, ok := config[key]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				return s, nil
			}
		}
	}
	return "", &ConfigError{Field: keys[0]}
}

func optionalString(config map[string]any, keys ...string) string {
	for _, key := range keys {
		if raw, ok := config[key]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}
