package tools

import (
	"encoding/json"
	"strings"
)

// Sanitize recursively prepares a raw row for the wire: drops keys beginning
// with "_" (the surrogate _pk and any other internal column), converts
// remaining snake_case keys to camelCase, and parses/re-serializes JSON
// subtrees so a jsonb column that came back as a string is returned as a
// nested object rather than a quoted blob. Arrays are sanitized
// element-wise; strings pass through unchanged.
func Sanitize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, raw := range val {
			if strings.HasPrefix(k, "_") {
				continue
			}
			out[camelCase(k)] = Sanitize(raw)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, el := range val {
			out[i] = Sanitize(el)
		}
		return out
	case []byte:
		return Sanitize(string(val))
	case string:
		if looksLikeJSON(val) {
			var parsed interface{}
			if err := json.Unmarshal([]byte(val), &parsed); err == nil {
				return Sanitize(parsed)
			}
		}
		return val
	default:
		return val
	}
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	switch s[0] {
	case '{', '[':
		return true
	default:
		return false
	}
}

// camelCase converts a snake_case identifier (as stored in a physical
// column) to the camelCase form the property descriptor uses.
func camelCase(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// SnakeCase converts a camelCase property name to the snake_case column name
// it is stored under.
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
