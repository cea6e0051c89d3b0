// Package template resolves {{path}} placeholders against a run's variable store.
package template

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Resolve replaces every {{path}} token found in value. Strings are rewritten,
// maps and slices are walked recursively and anything else is returned as is.
// Tokens whose path does not resolve are left untouched.
func Resolve(value any, variables map[string]any) any {
	switch typed := value.(type) {
	case string:
		return ResolveString(typed, variables)
	case map[string]any:
		resolved := make(map[string]any, len(typed))
		for key, item := range typed {
			resolved[key] = Resolve(item, variables)
		}

		return resolved
	case []any:
		resolved := make([]any, len(typed))
		for i, item := range typed {
			resolved[i] = Resolve(item, variables)
		}

		return resolved
	case []string:
		resolved := make([]string, len(typed))
		for i, item := range typed {
			resolved[i] = ResolveString(item, variables)
		}

		return resolved
	default:
		return value
	}
}

// ResolveMap is Resolve for node configurations.
func ResolveMap(config map[string]any, variables map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}

	resolved, _ := Resolve(config, variables).(map[string]any)

	return resolved
}

// ResolveString substitutes the tokens of a single string.
func ResolveString(input string, variables map[string]any) string {
	if !HasTokens(input) {
		return input
	}

	return tokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		path := tokenPattern.FindStringSubmatch(token)[1]

		value, ok := Lookup(variables, path)
		if !ok {
			return token
		}

		return Stringify(value)
	})
}

// HasTokens reports whether s contains at least one {{path}} token.
func HasTokens(s string) bool {
	return strings.Contains(s, "{{") && tokenPattern.MatchString(s)
}

// Lookup walks a dot separated path through nested maps and slices.
// Numeric segments index into slices. The walk stops, returning false,
// as soon as a segment is missing or the current value is not a container.
func Lookup(obj any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}

	current := obj

	for _, segment := range strings.Split(path, ".") {
		switch typed := current.(type) {
		case map[string]any:
			next, exists := typed[segment]
			if !exists {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(typed) {
				return nil, false
			}

			current = typed[index]
		default:
			return nil, false
		}
	}

	return current, true
}

// Stringify renders a resolved value for substitution into a string.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		if typed == math.Trunc(typed) && math.Abs(typed) < 1e15 {
			return strconv.FormatInt(int64(typed), 10)
		}

		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return Stringify(float64(typed))
	case map[string]any, []any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}

		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}
