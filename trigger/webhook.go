package trigger

import (
	"net/http"
	"strings"
)

// MatchesWebhook reports whether an inbound delivery on path, carrying
// eventType, should run an agent with the given trigger config. The
// config's endpoint is a path prefix; an optional events list restricts
// accepted event types.
func MatchesWebhook(config map[string]any, path, eventType string) bool {
	endpoint := configString(config, "endpoint")
	if endpoint == "" {
		endpoint = configString(config, "path")
	}
	if endpoint == "" {
		return false
	}
	if !strings.HasPrefix(normalizePath(path), normalizePath(endpoint)) {
		return false
	}

	allowed := configStrings(config, "events")
	if len(allowed) == 0 {
		return true
	}
	for _, ev := range allowed {
		if strings.EqualFold(ev, eventType) {
			return true
		}
	}
	return false
}

// EventType classifies an inbound webhook delivery. Source-identifying
// headers win; otherwise well-known payload fields are consulted.
func EventType(headers http.Header, payload map[string]any) string {
	if ev := headers.Get("X-Github-Event"); ev != "" {
		return "github." + strings.ToLower(ev)
	}
	if t, ok := payload["type"].(string); ok && t != "" {
		return "slack." + t
	}
	if t, ok := payload["event_type"].(string); ok && t != "" {
		return t
	}
	return "unknown"
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/") + "/"
}

func configStrings(config map[string]any, key string) []string {
	if config == nil {
		return nil
	}
	switch raw := config[key].(type) {
	case []string:
		return raw
	case []any:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if raw == "" {
			return nil
		}
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}
