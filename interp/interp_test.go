package interp

import (
	"testing"
)

func TestInterpolate_Basic(t *testing.T) {
	ctx := map[string]any{
		"name":  "world",
		"count": float64(3),
		"ok":    true,
	}

	cases := []struct {
		template string
		want     string
	}{
		{"hello {{name}}", "hello world"},
		{"{{count}} items", "3 items"},
		{"flag={{ok}}", "flag=true"},
		{"{{name}}-{{name}}", "world-world"},
		{"no placeholders", "no placeholders"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Interpolate(tc.template, ctx); got != tc.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tc.template, got, tc.want)
		}
	}
}

func TestInterpolate_UnknownPlaceholderLeftVerbatim(t *testing.T) {
	got := Interpolate("hello {{missing}}", map[string]any{"name": "x"})
	if got != "hello {{missing}}" {
		t.Fatalf("got %q, want placeholder untouched", got)
	}
}

func TestInterpolate_Idempotent(t *testing.T) {
	ctx := map[string]any{"a": "A"}
	templates := []string{
		"{{a}} and {{missing}}",
		"{{missing}}",
		"plain",
		"{{a}}{{a}}",
		"dangling {{open",
	}
	for _, tpl := range templates {
		once := Interpolate(tpl, ctx)
		twice := Interpolate(once, ctx)
		if once != twice {
			t.Errorf("Interpolate not idempotent for %q: first %q, second %q", tpl, once, twice)
		}
	}
}

func TestInterpolate_ValueContainingPlaceholderSyntax(t *testing.T) {
	// A substituted value that itself looks like a placeholder must not be
	// re-resolved by a second pass over the same context.
	ctx := map[string]any{"a": "{{missing}}"}
	once := Interpolate("{{a}}", ctx)
	if once != "{{missing}}" {
		t.Fatalf("first pass got %q", once)
	}
	twice := Interpolate(once, ctx)
	if twice != once {
		t.Fatalf("second pass changed %q to %q", once, twice)
	}
}

func TestConfig_RecursesStringLeaves(t *testing.T) {
	ctx := map[string]any{"city": "Berlin"}
	cfg := map[string]any{
		"subject": "Weather in {{city}}",
		"nested": map[string]any{
			"body": "report for {{city}}",
			"n":    float64(7),
		},
		"tags":    []any{"{{city}}", float64(1)},
		"enabled": true,
	}

	got := Config(cfg, ctx)

	if got["subject"] != "Weather in Berlin" {
		t.Errorf("subject = %v", got["subject"])
	}
	nested := got["nested"].(map[string]any)
	if nested["body"] != "report for Berlin" {
		t.Errorf("nested body = %v", nested["body"])
	}
	if nested["n"] != float64(7) {
		t.Errorf("non-string leaf changed: %v", nested["n"])
	}
	tags := got["tags"].([]any)
	if tags[0] != "Berlin" || tags[1] != float64(1) {
		t.Errorf("tags = %v", tags)
	}
	if got["enabled"] != true {
		t.Errorf("enabled = %v", got["enabled"])
	}
	// Original config untouched.
	if cfg["subject"] != "Weather in {{city}}" {
		t.Errorf("input mutated: %v", cfg["subject"])
	}
}

func TestResolveContent_FallbackChain(t *testing.T) {
	cases := []struct {
		name    string
		context map[string]any
		want    string
	}{
		{
			name:    "content wins",
			context: map[string]any{"content": "c", "summary": "s", "text": "t"},
			want:    "c",
		},
		{
			name:    "summary second",
			context: map[string]any{"summary": "s", "text": "t"},
			want:    "s",
		},
		{
			name:    "text third",
			context: map[string]any{"text": "t"},
			want:    "t",
		},
		{
			name:    "emails body preferred",
			context: map[string]any{"emails": []any{map[string]any{"body": "mail body"}}, "content": "c"},
			want:    "mail body",
		},
		{
			name:    "emails snippet fallback",
			context: map[string]any{"emails": []any{map[string]any{"snippet": "snip"}}},
			want:    "snip",
		},
		{
			name:    "json of whole context",
			context: map[string]any{"x": float64(1)},
			want:    `{"x":1}`,
		},
		{
			name:    "empty context",
			context: nil,
			want:    "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveContent(tc.context); got != tc.want {
				t.Errorf("ResolveContent() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{true, "true"},
		{float64(2.5), "2.5"},
		{float64(4), "4"},
		{42, "42"},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
		{[]any{float64(1), "a"}, `[1,"a"]`},
	}
	for _, tc := range cases {
		if got := Stringify(tc.in); got != tc.want {
			t.Errorf("Stringify(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
