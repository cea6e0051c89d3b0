// Package documents provides a schemaless collection store with a MongoDB style
// query language. Filters, updates and aggregation pipelines are evaluated in
// process so every backend shares the same semantics.
package documents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// IDField is the primary key every stored document carries.
const IDField = "_id"

// Document is a single schemaless record.
type Document = map[string]any

var (
	// ErrInvalidCollection indicates an empty or unsafe collection name.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrUnsupportedOperator indicates a filter, update or pipeline operator the engine does not know.
	ErrUnsupportedOperator = errors.New("unsupported operator")
)

// SortField orders query results by a dot path.
type SortField struct {
	Field      string
	Descending bool
}

// FindOptions narrows a Find call.
type FindOptions struct {
	Sort  []SortField
	Skip  int
	Limit int
}

// UpdateResult reports how many documents an update touched.
type UpdateResult struct {
	Matched  int64 `json:"matchedCount"`
	Modified int64 `json:"modifiedCount"`
}

// Store is a named-collection document database.
type Store interface {
	Find(ctx context.Context, collection string, filter Document, opts FindOptions) ([]Document, error)
	Insert(ctx context.Context, collection string, docs []Document) ([]string, error)
	Update(ctx context.Context, collection string, filter, update Document, many bool) (UpdateResult, error)
	Delete(ctx context.Context, collection string, filter Document, many bool) (int64, error)
	Count(ctx context.Context, collection string, filter Document) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error)
}

// ValidateCollection rejects names that could escape a storage namespace.
func ValidateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCollection)
	}

	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || strings.HasPrefix(name, "$") {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}

	return nil
}

// ParseSort converts a {"field": 1|-1} specification to sort fields.
// Keys are ordered alphabetically since JSON objects carry no order.
func ParseSort(arg any) []SortField {
	argMap, ok := arg.(map[string]any)
	if !ok || len(argMap) == 0 {
		return nil
	}

	keys := make([]string, 0, len(argMap))
	for key := range argMap {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	fields := make([]SortField, 0, len(keys))
	for _, key := range keys {
		direction, _ := toFloat(argMap[key])
		fields = append(fields, SortField{Field: key, Descending: direction < 0})
	}

	return fields
}

// Query applies filter and options to an in-memory document set.
func Query(docs []Document, filter Document, opts FindOptions) ([]Document, error) {
	matched := make([]Document, 0)

	for _, doc := range docs {
		ok, err := Match(doc, filter)
		if err != nil {
			return nil, err
		}

		if ok {
			matched = append(matched, doc)
		}
	}

	SortDocuments(matched, opts.Sort)

	if opts.Skip > 0 {
		if opts.Skip >= len(matched) {
			return []Document{}, nil
		}

		matched = matched[opts.Skip:]
	}

	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	return matched, nil
}

// SortDocuments sorts in place, keeping the original order for ties.
func SortDocuments(docs []Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}

	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range fields {
			left, _ := lookup(docs[i], field.Field)
			right, _ := lookup(docs[j], field.Field)

			cmp := compareValues(left, right)
			if cmp == 0 {
				continue
			}

			if field.Descending {
				return cmp > 0
			}

			return cmp < 0
		}

		return false
	})
}

// Clone deep copies a document so stored state never aliases caller maps.
func Clone(doc Document) Document {
	cloned, _ := cloneValue(doc).(Document)

	return cloned
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		cloned := make(map[string]any, len(typed))
		for key, item := range typed {
			cloned[key] = cloneValue(item)
		}

		return cloned
	case []any:
		cloned := make([]any, len(typed))
		for i, item := range typed {
			cloned[i] = cloneValue(item)
		}

		return cloned
	default:
		return value
	}
}
