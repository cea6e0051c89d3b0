package query

import (
	"context"

	"github.com/dukex/flowforge/pkg/documents"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

// QueryNodeFactory creates QueryNode instances bound to a document store.
type QueryNodeFactory struct {
	store documents.Store
}

// NewQueryNodeFactory creates a new document query node factory.
func NewQueryNodeFactory(store documents.Store) protocol.NodeFactory {
	return &QueryNodeFactory{store: store}
}

func (f *QueryNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return NewQueryNode(id, config, f.store)
}

func (f *QueryNodeFactory) Kind() models.NodeKind {
	return models.NodeKindMongoDB
}

func (f *QueryNodeFactory) Name() string {
	return "Document Query"
}

func (f *QueryNodeFactory) Description() string {
	return "Runs find, insert, update, delete, count and aggregate operations against a document collection"
}

func (f *QueryNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{
					string(OperationFind), string(OperationFindOne),
					string(OperationInsertOne), string(OperationInsertMany),
					string(OperationUpdateOne), string(OperationUpdateMany),
					string(OperationDeleteOne), string(OperationDeleteMany),
					string(OperationCount), string(OperationAggregate),
				},
			},
			"collection": map[string]any{"type": "string"},
			"query": map[string]any{
				"type":        "object",
				"description": "MongoDB style filter",
				"examples":    []map[string]any{{"email": "{{input.email}}"}, {"age": map[string]any{"$gte": 18}}},
			},
			"data": map[string]any{
				"description": "Document(s) to insert, or the update specification",
			},
			"pipeline": map[string]any{"type": "array"},
			"sort":     map[string]any{"type": "object"},
			"limit":    map[string]any{"type": "number", "default": DefaultFindLimit},
		},
		"required": []string{"operation", "collection"},
	}
}
