// Package interp substitutes {{name}} placeholders in step configuration
// using the accumulated execution context.
package interp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Interpolate replaces every {{name}} token in template with the
// stringified value of context[name]. Unknown placeholders are left
// verbatim, so a second pass over an unchanged context is a no-op.
func Interpolate(template string, context map[string]any) string {
	if template == "" || !strings.Contains(template, "{{") {
		return template
	}
	var b strings.Builder
	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		close := strings.Index(rest[open:], "}}")
		if close < 0 {
			b.WriteString(rest)
			break
		}
		close += open
		name := rest[open+2 : close]
		value, ok := lookup(context, name)
		b.WriteString(rest[:open])
		if ok {
			b.WriteString(Stringify(value))
		} else {
			b.WriteString(rest[open : close+2])
		}
		rest = rest[close+2:]
	}
	return b.String()
}

func lookup(context map[string]any, name string) (any, bool) {
	if context == nil {
		return nil, false
	}
	value, ok := context[strings.TrimSpace(name)]
	return value, ok
}

// Config applies Interpolate to every string leaf of a config tree. Maps
// and slices are walked recursively; non-string leaves pass through
// unchanged. The input is never mutated.
func Config(config map[string]any, context map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(config))
	for key, value := range config {
		out[key] = resolveValue(value, context)
	}
	return out
}

func resolveValue(value any, context map[string]any) any {
	switch v := value.(type) {
	case string:
		return Interpolate(v, context)
	case map[string]any:
		return Config(v, context)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, context)
		}
		return out
	default:
		return value
	}
}

// ResolveContent extracts "the output of whatever happened before" from the
// context without callers knowing its exact shape. An emails list wins,
// then content, summary, text, and finally the JSON-encoded context.
func ResolveContent(context map[string]any) string {
	if len(context) == 0 {
		return ""
	}
	if emails, ok := context["emails"].([]any); ok && len(emails) > 0 {
		if first, ok := emails[0].(map[string]any); ok {
			if body, ok := first["body"].(string); ok && body != "" {
				return body
			}
			if snippet, ok := first["snippet"].(string); ok && snippet != "" {
				return snippet
			}
		}
	}
	for _, key := range []string{"content", "summary", "text"} {
		if raw, ok := context[key]; ok {
			if s := Stringify(raw); s != "" {
				return s
			}
		}
	}
	raw, err := json.Marshal(context)
	if err != nil {
		return fmt.Sprintf("%v", context)
	}
	return string(raw)
}

// Stringify renders a context value for embedding into a template. Maps and
// slices become JSON; scalars use their natural text form.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
