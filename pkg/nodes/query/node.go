// Package query provides the document database node ("mongodb" kind).
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowforge/pkg/documents"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
)

// DefaultFindLimit caps find results when no limit is configured.
const DefaultFindLimit = 100

// Operation is a document store command.
type Operation string

const (
	OperationFind       Operation = "find"
	OperationFindOne    Operation = "findOne"
	OperationInsertOne  Operation = "insertOne"
	OperationInsertMany Operation = "insertMany"
	OperationUpdateOne  Operation = "updateOne"
	OperationUpdateMany Operation = "updateMany"
	OperationDeleteOne  Operation = "deleteOne"
	OperationDeleteMany Operation = "deleteMany"
	OperationCount      Operation = "count"
	OperationAggregate  Operation = "aggregate"
)

// ErrUnknownOperation is returned for operations outside the supported set.
var ErrUnknownOperation = errors.New("unknown document operation")

// QueryNode runs one document store operation against a collection.
type QueryNode struct {
	id         string
	store      documents.Store
	operation  Operation
	collection string
	filter     documents.Document
	data       any
	pipeline   []documents.Document
	sort       []documents.SortField
	limit      int
	now        func() time.Time
}

// NewQueryNode creates a new document query node.
func NewQueryNode(id string, config map[string]any, store documents.Store) (*QueryNode, error) {
	if store == nil {
		return nil, errors.New("no document store configured")
	}

	operation, err := nodes.RequiredString(config, "operation")
	if err != nil {
		return nil, err
	}

	collection, err := nodes.RequiredString(config, "collection")
	if err != nil {
		return nil, err
	}

	if err := documents.ValidateCollection(collection); err != nil {
		return nil, err
	}

	filter, err := objectField(config, "query")
	if err != nil {
		return nil, err
	}

	data, err := decodeJSONString(config["data"])
	if err != nil {
		return nil, fmt.Errorf("invalid 'data': %w", err)
	}

	if data == nil {
		if data, err = decodeJSONString(config["update"]); err != nil {
			return nil, fmt.Errorf("invalid 'update': %w", err)
		}
	}

	pipeline, err := pipelineField(config)
	if err != nil {
		return nil, err
	}

	limit := DefaultFindLimit
	if n, ok := nodes.Number(config, "limit"); ok && n > 0 {
		limit = int(n)
	}

	sortSpec, err := decodeJSONString(config["sort"])
	if err != nil {
		return nil, fmt.Errorf("invalid 'sort': %w", err)
	}

	return &QueryNode{
		id:         id,
		store:      store,
		operation:  Operation(operation),
		collection: collection,
		filter:     filter,
		data:       data,
		pipeline:   pipeline,
		sort:       documents.ParseSort(sortSpec),
		limit:      limit,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (n *QueryNode) ID() string {
	return n.id
}

func (n *QueryNode) Kind() models.NodeKind {
	return models.NodeKindMongoDB
}

// Execute dispatches on the configured operation.
func (n *QueryNode) Execute(ctx context.Context, _ *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger.DebugContext(ctx, "Running document operation", "operation", n.operation, "collection", n.collection)

	switch n.operation {
	case OperationFind:
		found, err := n.store.Find(ctx, n.collection, n.filter, documents.FindOptions{Sort: n.sort, Limit: n.limit})
		if err != nil {
			return nil, err
		}

		return map[string]any{"documents": toAnySlice(found), "count": len(found)}, nil

	case OperationFindOne:
		found, err := n.store.Find(ctx, n.collection, n.filter, documents.FindOptions{Sort: n.sort, Limit: 1})
		if err != nil {
			return nil, err
		}

		if len(found) == 0 {
			return map[string]any{"document": nil, "found": false}, nil
		}

		return map[string]any{"document": found[0], "found": true}, nil

	case OperationInsertOne:
		doc, ok := n.data.(map[string]any)
		if !ok {
			return nil, errors.New("insertOne requires 'data' to be an object")
		}

		doc = n.stamp(doc, "createdAt")

		ids, err := n.store.Insert(ctx, n.collection, []documents.Document{doc})
		if err != nil {
			return nil, err
		}

		return map[string]any{"insertedId": ids[0], "insertedCount": 1}, nil

	case OperationInsertMany:
		items, ok := n.data.([]any)
		if !ok {
			return nil, errors.New("insertMany requires 'data' to be an array")
		}

		docs := make([]documents.Document, 0, len(items))

		for i, item := range items {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("insertMany item %d is not an object", i)
			}

			docs = append(docs, n.stamp(doc, "createdAt"))
		}

		ids, err := n.store.Insert(ctx, n.collection, docs)
		if err != nil {
			return nil, err
		}

		return map[string]any{"insertedIds": toAnyStrings(ids), "insertedCount": len(ids)}, nil

	case OperationUpdateOne, OperationUpdateMany:
		update, ok := n.data.(map[string]any)
		if !ok || len(update) == 0 {
			return nil, fmt.Errorf("%s requires 'data' to be an object", n.operation)
		}

		result, err := n.store.Update(ctx, n.collection, n.filter, n.withUpdatedAt(update), n.operation == OperationUpdateMany)
		if err != nil {
			return nil, err
		}

		return map[string]any{"matchedCount": result.Matched, "modifiedCount": result.Modified}, nil

	case OperationDeleteOne, OperationDeleteMany:
		deleted, err := n.store.Delete(ctx, n.collection, n.filter, n.operation == OperationDeleteMany)
		if err != nil {
			return nil, err
		}

		return map[string]any{"deletedCount": deleted}, nil

	case OperationCount:
		count, err := n.store.Count(ctx, n.collection, n.filter)
		if err != nil {
			return nil, err
		}

		return map[string]any{"count": count}, nil

	case OperationAggregate:
		result, err := n.store.Aggregate(ctx, n.collection, n.pipeline)
		if err != nil {
			return nil, err
		}

		return map[string]any{"documents": toAnySlice(result), "count": len(result)}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, n.operation)
	}
}

func (n *QueryNode) stamp(doc map[string]any, field string) documents.Document {
	stamped := documents.Clone(doc)
	stamped[field] = n.now().Format(time.RFC3339Nano)

	return stamped
}

// withUpdatedAt turns plain fields into a $set and stamps updatedAt.
func (n *QueryNode) withUpdatedAt(update map[string]any) documents.Document {
	out := documents.Clone(update)

	set, hasSet := out["$set"].(map[string]any)

	if !hasSet {
		operatorOnly := true

		for key := range out {
			if len(key) == 0 || key[0] != '$' {
				operatorOnly = false

				break
			}
		}

		if !operatorOnly {
			out = documents.Document{"$set": out}
			set = out["$set"].(documents.Document)
		} else {
			set = documents.Document{}
			out["$set"] = set
		}
	}

	set["updatedAt"] = n.now().Format(time.RFC3339Nano)

	return out
}

func objectField(config map[string]any, key string) (documents.Document, error) {
	raw, err := decodeJSONString(config[key])
	if err != nil {
		return nil, fmt.Errorf("invalid '%s': %w", key, err)
	}

	switch typed := raw.(type) {
	case nil:
		return documents.Document{}, nil
	case map[string]any:
		return typed, nil
	default:
		return nil, fmt.Errorf("'%s' must be an object", key)
	}
}

func pipelineField(config map[string]any) ([]documents.Document, error) {
	raw, err := decodeJSONString(config["pipeline"])
	if err != nil {
		return nil, fmt.Errorf("invalid 'pipeline': %w", err)
	}

	if raw == nil {
		return nil, nil
	}

	stages, ok := raw.([]any)
	if !ok {
		return nil, errors.New("'pipeline' must be an array")
	}

	pipeline := make([]documents.Document, 0, len(stages))

	for i, stage := range stages {
		doc, ok := stage.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("pipeline stage %d is not an object", i)
		}

		pipeline = append(pipeline, doc)
	}

	return pipeline, nil
}

// decodeJSONString accepts either a structured value or its JSON text.
func decodeJSONString(value any) (any, error) {
	text, ok := value.(string)
	if !ok || text == "" {
		if ok {
			return nil, nil
		}

		return value, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, err
	}

	return decoded, nil
}

func toAnySlice(docs []documents.Document) []any {
	out := make([]any, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc)
	}

	return out
}

func toAnyStrings(values []string) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}

	return out
}
