// Package nodes holds the configuration helpers shared by the built-in node kinds.
// Configurations arrive template-resolved, so numbers and booleans may be
// JSON numbers, Go numbers or their string renderings.
package nodes

import (
	"fmt"
	"strconv"
	"strings"
)

// String returns config[key] as a string when it is one.
func String(config map[string]any, key string) (string, bool) {
	value, ok := config[key].(string)

	return value, ok
}

// StringOr returns config[key] as a non-empty string or fallback.
func StringOr(config map[string]any, key, fallback string) string {
	if value, ok := String(config, key); ok && value != "" {
		return value
	}

	return fallback
}

// RequiredString returns config[key] or an error naming the missing field.
func RequiredString(config map[string]any, key string) (string, error) {
	value, ok := String(config, key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("missing required field '%s'", key)
	}

	return value, nil
}

// Number parses config[key] as a float64, accepting numeric strings.
func Number(config map[string]any, key string) (float64, bool) {
	return ToNumber(config[key])
}

// ToNumber converts a loosely typed value to a float64.
func ToNumber(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}

// Bool parses config[key] as a boolean, accepting "true"/"false" strings.
func Bool(config map[string]any, key string) (bool, bool) {
	switch typed := config[key].(type) {
	case bool:
		return typed, true
	case string:
		parsed, err := strconv.ParseBool(typed)

		return parsed, err == nil
	default:
		return false, false
	}
}

// Map returns config[key] as an object.
func Map(config map[string]any, key string) (map[string]any, bool) {
	value, ok := config[key].(map[string]any)

	return value, ok
}

// StringMap flattens an object of scalars into string values.
func StringMap(config map[string]any, key string) map[string]string {
	out := make(map[string]string)

	raw, ok := Map(config, key)
	if !ok {
		return out
	}

	for k, v := range raw {
		switch typed := v.(type) {
		case string:
			out[k] = typed
		case nil:
			continue
		default:
			out[k] = fmt.Sprint(typed)
		}
	}

	return out
}

// Strings returns config[key] as a list of strings, accepting a comma separated string.
func Strings(config map[string]any, key string) []string {
	switch typed := config[key].(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	case string:
		out := make([]string, 0)
		for _, part := range strings.Split(typed, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}

		return out
	default:
		return nil
	}
}
