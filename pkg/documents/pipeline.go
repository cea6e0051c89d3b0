package documents

import (
	"errors"
	"fmt"
	"strings"
)

// Aggregate runs an aggregation pipeline over docs. Supported stages are
// $match, $sort, $skip, $limit, $project, $unwind, $group and $count.
func Aggregate(docs []Document, pipeline []Document) ([]Document, error) {
	current := make([]Document, 0, len(docs))
	for _, doc := range docs {
		current = append(current, Clone(doc))
	}

	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("pipeline stage %d must have exactly one operator", i)
		}

		for operator, arg := range stage {
			var err error

			current, err = runStage(current, operator, arg)
			if err != nil {
				return nil, fmt.Errorf("pipeline stage %d (%s): %w", i, operator, err)
			}
		}
	}

	return current, nil
}

func runStage(docs []Document, operator string, arg any) ([]Document, error) {
	switch operator {
	case "$match":
		filter, ok := arg.(map[string]any)
		if !ok {
			return nil, errors.New("expects an object")
		}

		return Query(docs, filter, FindOptions{})
	case "$sort":
		SortDocuments(docs, ParseSort(arg))

		return docs, nil
	case "$skip":
		n, ok := toFloat(arg)
		if !ok {
			return nil, errors.New("expects a number")
		}

		return Query(docs, nil, FindOptions{Skip: int(n)})
	case "$limit":
		n, ok := toFloat(arg)
		if !ok {
			return nil, errors.New("expects a number")
		}

		return Query(docs, nil, FindOptions{Limit: int(n)})
	case "$project":
		projection, ok := arg.(map[string]any)
		if !ok {
			return nil, errors.New("expects an object")
		}

		return project(docs, projection), nil
	case "$unwind":
		return unwind(docs, arg)
	case "$group":
		group, ok := arg.(map[string]any)
		if !ok {
			return nil, errors.New("expects an object")
		}

		return groupDocuments(docs, group)
	case "$count":
		name, ok := arg.(string)
		if !ok || name == "" {
			return nil, errors.New("expects a field name")
		}

		return []Document{{name: float64(len(docs))}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, operator)
	}
}

// evaluate resolves "$path" references and returns literals unchanged.
func evaluate(doc Document, expression any) any {
	if ref, ok := expression.(string); ok && strings.HasPrefix(ref, "$") {
		value, _ := lookup(doc, strings.TrimPrefix(ref, "$"))

		return value
	}

	return expression
}

func project(docs []Document, projection map[string]any) []Document {
	inclusive := false

	for key, rule := range projection {
		if key == IDField {
			continue
		}

		if n, ok := toFloat(rule); !ok || n != 0 {
			inclusive = true
		}
	}

	projected := make([]Document, 0, len(docs))

	for _, doc := range docs {
		var out Document

		if inclusive {
			out = Document{}
			if id, ok := doc[IDField]; ok {
				out[IDField] = id
			}
		} else {
			out = Clone(doc)
		}

		for key, rule := range projection {
			n, numeric := toFloat(rule)

			switch {
			case numeric && n == 0:
				unsetPath(out, key)
			case numeric || rule == true:
				if value, ok := lookup(doc, key); ok {
					setPath(out, key, value)
				}
			default:
				setPath(out, key, evaluate(doc, rule))
			}
		}

		projected = append(projected, out)
	}

	return projected
}

func unwind(docs []Document, arg any) ([]Document, error) {
	ref, ok := arg.(string)
	if !ok {
		if options, isMap := arg.(map[string]any); isMap {
			ref, ok = options["path"].(string)
		}
	}

	if !ok || !strings.HasPrefix(ref, "$") {
		return nil, errors.New("expects a $field path")
	}

	path := strings.TrimPrefix(ref, "$")
	unwound := make([]Document, 0, len(docs))

	for _, doc := range docs {
		value, _ := lookup(doc, path)

		items, isArray := value.([]any)
		if !isArray {
			if value != nil {
				unwound = append(unwound, doc)
			}

			continue
		}

		for _, item := range items {
			copied := Clone(doc)
			setPath(copied, path, item)
			unwound = append(unwound, copied)
		}
	}

	return unwound, nil
}

type accumulator struct {
	operator string
	argument any
}

func groupDocuments(docs []Document, arg map[string]any) ([]Document, error) {
	idExpression, ok := arg[IDField]
	if !ok {
		return nil, errors.New("requires an _id expression")
	}

	accumulators := make(map[string]accumulator, len(arg))

	for field, raw := range arg {
		if field == IDField {
			continue
		}

		definition, ok := raw.(map[string]any)
		if !ok || len(definition) != 1 {
			return nil, fmt.Errorf("accumulator %s must be a single-operator object", field)
		}

		for operator, argument := range definition {
			accumulators[field] = accumulator{operator: operator, argument: argument}
		}
	}

	order := make([]string, 0)
	groups := make(map[string]Document)
	members := make(map[string][]Document)

	for _, doc := range docs {
		key := evaluate(doc, idExpression)
		groupKey := fmt.Sprintf("%T:%v", key, key)

		if _, exists := groups[groupKey]; !exists {
			order = append(order, groupKey)
			groups[groupKey] = Document{IDField: key}
		}

		members[groupKey] = append(members[groupKey], doc)
	}

	result := make([]Document, 0, len(order))

	for _, groupKey := range order {
		out := groups[groupKey]

		for field, acc := range accumulators {
			value, err := accumulate(members[groupKey], acc)
			if err != nil {
				return nil, fmt.Errorf("accumulator %s: %w", field, err)
			}

			out[field] = value
		}

		result = append(result, out)
	}

	return result, nil
}

func accumulate(docs []Document, acc accumulator) (any, error) {
	switch acc.operator {
	case "$sum", "$avg":
		total := 0.0
		count := 0

		for _, doc := range docs {
			if n, ok := toFloat(evaluate(doc, acc.argument)); ok {
				total += n
				count++
			}
		}

		if acc.operator == "$sum" {
			return total, nil
		}

		if count == 0 {
			return nil, nil
		}

		return total / float64(count), nil
	case "$min", "$max":
		var best any

		for _, doc := range docs {
			value := evaluate(doc, acc.argument)
			if value == nil {
				continue
			}

			cmp := compareValues(value, best)
			if best == nil || (acc.operator == "$min" && cmp < 0) || (acc.operator == "$max" && cmp > 0) {
				best = value
			}
		}

		return best, nil
	case "$first":
		if len(docs) == 0 {
			return nil, nil
		}

		return evaluate(docs[0], acc.argument), nil
	case "$last":
		if len(docs) == 0 {
			return nil, nil
		}

		return evaluate(docs[len(docs)-1], acc.argument), nil
	case "$push":
		items := make([]any, 0, len(docs))
		for _, doc := range docs {
			items = append(items, evaluate(doc, acc.argument))
		}

		return items, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, acc.operator)
	}
}
