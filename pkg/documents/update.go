package documents

import (
	"fmt"
	"reflect"
	"strings"
)

// ApplyUpdate returns a modified copy of doc and whether anything changed.
// The update may use $set, $unset, $inc and $push, or be a plain object of
// fields which is treated as $set. The primary key is never rewritten.
func ApplyUpdate(doc Document, update Document) (Document, bool, error) {
	result := Clone(doc)
	changed := false

	operators := update
	if !isOperatorObject(update) {
		operators = Document{"$set": update}
	}

	for operator, operand := range operators {
		fields, ok := operand.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("%s expects an object", operator)
		}

		for path, value := range fields {
			if path == IDField {
				continue
			}

			var (
				modified bool
				err      error
			)

			switch operator {
			case "$set":
				modified = setPath(result, path, cloneValue(value))
			case "$unset":
				modified = unsetPath(result, path)
			case "$inc":
				modified, err = incPath(result, path, value)
			case "$push":
				modified, err = pushPath(result, path, value)
			default:
				return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, operator)
			}

			if err != nil {
				return nil, false, err
			}

			changed = changed || modified
		}
	}

	return result, changed, nil
}

func parentOf(doc Document, path string, create bool) (map[string]any, string) {
	segments := strings.Split(path, ".")
	current := doc

	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			if !create {
				return nil, ""
			}

			next = map[string]any{}
			current[segment] = next
		}

		current = next
	}

	return current, segments[len(segments)-1]
}

func setPath(doc Document, path string, value any) bool {
	parent, key := parentOf(doc, path, true)

	previous, existed := parent[key]
	parent[key] = value

	return !existed || !reflect.DeepEqual(previous, value)
}

func unsetPath(doc Document, path string) bool {
	parent, key := parentOf(doc, path, false)
	if parent == nil {
		return false
	}

	if _, exists := parent[key]; !exists {
		return false
	}

	delete(parent, key)

	return true
}

func incPath(doc Document, path string, amount any) (bool, error) {
	delta, ok := toFloat(amount)
	if !ok {
		return false, fmt.Errorf("$inc expects a number for %s", path)
	}

	parent, key := parentOf(doc, path, true)

	current := 0.0

	if existing, exists := parent[key]; exists {
		current, ok = toFloat(existing)
		if !ok {
			return false, fmt.Errorf("$inc target %s is not a number", path)
		}
	}

	parent[key] = current + delta

	return delta != 0, nil
}

func pushPath(doc Document, path string, value any) (bool, error) {
	parent, key := parentOf(doc, path, true)

	items, ok := parent[key].([]any)
	if !ok && parent[key] != nil {
		return false, fmt.Errorf("$push target %s is not an array", path)
	}

	parent[key] = append(items, cloneValue(value))

	return true, nil
}
