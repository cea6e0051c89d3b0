package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

// JQEngine evaluates jq programs.
type JQEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func NewJQEngine() *JQEngine {
	return &JQEngine{cache: make(map[string]*gojq.Code)}
}

// Evaluate runs expression over input. A single output is returned as is,
// several outputs are collected into a slice and no output yields nil.
func (e *JQEngine) Evaluate(ctx context.Context, expression string, input any) (any, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}

	code, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	normalized, err := Normalize(input)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalized)

	var results []any

	for {
		value, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := value.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed for %q: %w", expression, err)
		}

		results = append(results, value)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (e *JQEngine) compile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	code, ok := e.cache[expression]
	e.mu.RUnlock()

	if ok {
		return code, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if code, ok := e.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("jq parse error in %q: %w", expression, err)
	}

	code, err = gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compile error in %q: %w", expression, err)
	}

	e.cache[expression] = code

	return code, nil
}

// Normalize converts arbitrary Go values into the plain JSON shapes
// (map[string]any, []any, float64, string, bool, nil) that jq and JSONPath expect.
func Normalize(value any) (any, error) {
	switch value.(type) {
	case nil, string, bool, float64:
		return value, nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON serialisable: %w", err)
	}

	var normalized any
	if err := json.Unmarshal(encoded, &normalized); err != nil {
		return nil, err
	}

	return normalized, nil
}
