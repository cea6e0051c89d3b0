package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/dukex/flowforge/pkg/template"
)

// Match reports whether doc satisfies a MongoDB style filter.
// Supported: implicit equality, $eq $ne $gt $gte $lt $lte $in $nin $exists
// $regex (with $options) on fields, and $and $or $nor at any level.
func Match(doc Document, filter Document) (bool, error) {
	for key, condition := range filter {
		switch key {
		case "$and", "$or", "$nor":
			ok, err := matchLogical(doc, key, condition)
			if err != nil || !ok {
				return false, err
			}

			continue
		}

		if strings.HasPrefix(key, "$") {
			return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, key)
		}

		value, exists := lookup(doc, key)

		ok, err := matchCondition(value, exists, condition)
		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

func matchLogical(doc Document, operator string, condition any) (bool, error) {
	clauses, ok := condition.([]any)
	if !ok {
		return false, fmt.Errorf("%s expects an array", operator)
	}

	for _, clause := range clauses {
		sub, ok := clause.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%s expects an array of objects", operator)
		}

		matched, err := Match(doc, sub)
		if err != nil {
			return false, err
		}

		switch operator {
		case "$and":
			if !matched {
				return false, nil
			}
		case "$or":
			if matched {
				return true, nil
			}
		case "$nor":
			if matched {
				return false, nil
			}
		}
	}

	return operator != "$or", nil
}

func matchCondition(value any, exists bool, condition any) (bool, error) {
	operators, ok := condition.(map[string]any)
	if !ok || !isOperatorObject(operators) {
		return exists && equalsOrContains(value, condition), nil
	}

	for operator, operand := range operators {
		ok, err := matchOperator(value, exists, operator, operand, operators)
		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

func isOperatorObject(condition map[string]any) bool {
	if len(condition) == 0 {
		return false
	}

	for key := range condition {
		if !strings.HasPrefix(key, "$") {
			return false
		}
	}

	return true
}

func matchOperator(value any, exists bool, operator string, operand any, all map[string]any) (bool, error) {
	switch operator {
	case "$eq":
		return exists && equalsOrContains(value, operand), nil
	case "$ne":
		return !exists || !equalsOrContains(value, operand), nil
	case "$gt":
		return exists && orderable(value, operand) && compareValues(value, operand) > 0, nil
	case "$gte":
		return exists && orderable(value, operand) && compareValues(value, operand) >= 0, nil
	case "$lt":
		return exists && orderable(value, operand) && compareValues(value, operand) < 0, nil
	case "$lte":
		return exists && orderable(value, operand) && compareValues(value, operand) <= 0, nil
	case "$in", "$nin":
		candidates, ok := operand.([]any)
		if !ok {
			return false, fmt.Errorf("%s expects an array", operator)
		}

		found := false

		for _, candidate := range candidates {
			if exists && equalsOrContains(value, candidate) {
				found = true

				break
			}
		}

		if operator == "$in" {
			return found, nil
		}

		return !found, nil
	case "$exists":
		want, _ := operand.(bool)

		return exists == want, nil
	case "$regex":
		pattern, ok := operand.(string)
		if !ok {
			return false, errors.New("$regex expects a string")
		}

		if options, ok := all["$options"].(string); ok && strings.Contains(options, "i") {
			pattern = "(?i)" + pattern
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid $regex: %w", err)
		}

		text, ok := value.(string)

		return exists && ok && re.MatchString(text), nil
	case "$options":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, operator)
	}
}

// equalsOrContains mirrors MongoDB: a scalar condition also matches arrays containing it.
func equalsOrContains(value, condition any) bool {
	if equalValues(value, condition) {
		return true
	}

	if items, ok := value.([]any); ok {
		for _, item := range items {
			if equalValues(item, condition) {
				return true
			}
		}
	}

	return false
}

func equalValues(left, right any) bool {
	if lf, ok := toFloat(left); ok {
		if rf, ok := toFloat(right); ok {
			return lf == rf
		}
	}

	return reflect.DeepEqual(left, right)
}

func orderable(left, right any) bool {
	if _, ok := toFloat(left); ok {
		_, ok := toFloat(right)

		return ok
	}

	_, lok := left.(string)
	_, rok := right.(string)

	return lok && rok
}

// compareValues orders nil < numbers < strings < everything else.
func compareValues(left, right any) int {
	lf, lnum := toFloat(left)
	rf, rnum := toFloat(right)

	switch {
	case lnum && rnum:
		switch {
		case lf < rf:
			return -1
		case lf > rf:
			return 1
		default:
			return 0
		}
	case left == nil && right == nil:
		return 0
	case left == nil:
		return -1
	case right == nil:
		return 1
	case lnum:
		return -1
	case rnum:
		return 1
	}

	ls, lstr := left.(string)
	rs, rstr := right.(string)

	if lstr && rstr {
		return strings.Compare(ls, rs)
	}

	return strings.Compare(fmt.Sprint(left), fmt.Sprint(right))
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		f, err := typed.Float64()

		return f, err == nil
	case time.Time:
		return float64(typed.UnixNano()), true
	default:
		return 0, false
	}
}

func lookup(doc Document, path string) (any, bool) {
	return template.Lookup(doc, path)
}
