package query

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/flowforge/pkg/documents"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func run(t *testing.T, store documents.Store, config map[string]any) map[string]any {
	t.Helper()

	node, err := NewQueryNode("db", config, store)
	require.NoError(t, err)

	node.now = func() time.Time { return fixedNow }

	result, err := node.Execute(context.Background(), models.NewExecutionContext("e", "w", "s", nil), slog.Default())
	require.NoError(t, err)

	out, ok := result.(map[string]any)
	require.True(t, ok)

	return out
}

func TestQueryNode_InsertAndFind(t *testing.T) {
	store := documents.NewMemoryStore()

	inserted := run(t, store, map[string]any{
		"operation":  "insertOne",
		"collection": "contacts",
		"data":       map[string]any{"email": "a@b.c", "score": float64(10)},
	})
	assert.NotEmpty(t, inserted["insertedId"])

	run(t, store, map[string]any{
		"operation":  "insertMany",
		"collection": "contacts",
		"data": []any{
			map[string]any{"email": "x@y.z", "score": float64(30)},
			map[string]any{"email": "q@r.s", "score": float64(20)},
		},
	})

	found := run(t, store, map[string]any{
		"operation":  "find",
		"collection": "contacts",
		"query":      map[string]any{"score": map[string]any{"$gte": float64(20)}},
		"sort":       map[string]any{"score": float64(-1)},
	})
	assert.Equal(t, 2, found["count"])

	docs := found["documents"].([]any)
	first := docs[0].(documents.Document)
	assert.Equal(t, "x@y.z", first["email"])
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), first["createdAt"])

	one := run(t, store, map[string]any{
		"operation":  "findOne",
		"collection": "contacts",
		"query":      `{"email":"a@b.c"}`,
	})
	assert.Equal(t, true, one["found"])

	missing := run(t, store, map[string]any{
		"operation":  "findOne",
		"collection": "contacts",
		"query":      map[string]any{"email": "nobody"},
	})
	assert.Equal(t, false, missing["found"])
	assert.Nil(t, missing["document"])
}

func TestQueryNode_FindDefaultLimit(t *testing.T) {
	store := documents.NewMemoryStore()

	docs := make([]documents.Document, 0, 150)
	for i := 0; i < 150; i++ {
		docs = append(docs, documents.Document{"n": float64(i)})
	}

	_, err := store.Insert(context.Background(), "numbers", docs)
	require.NoError(t, err)

	found := run(t, store, map[string]any{"operation": "find", "collection": "numbers"})
	assert.Equal(t, DefaultFindLimit, found["count"])
}

func TestQueryNode_UpdateStampsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := documents.NewMemoryStore()

	_, err := store.Insert(ctx, "contacts", []documents.Document{
		{"email": "a@b.c", "status": "new"},
		{"email": "x@y.z", "status": "new"},
	})
	require.NoError(t, err)

	result := run(t, store, map[string]any{
		"operation":  "updateMany",
		"collection": "contacts",
		"query":      map[string]any{"status": "new"},
		"data":       map[string]any{"status": "contacted"},
	})
	assert.Equal(t, int64(2), result["modifiedCount"])

	result = run(t, store, map[string]any{
		"operation":  "updateOne",
		"collection": "contacts",
		"query":      map[string]any{"email": "a@b.c"},
		"data":       map[string]any{"$inc": map[string]any{"visits": float64(1)}},
	})
	assert.Equal(t, int64(1), result["matchedCount"])

	found, err := store.Find(ctx, "contacts", documents.Document{"email": "a@b.c"}, documents.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "contacted", found[0]["status"])
	assert.Equal(t, float64(1), found[0]["visits"])
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), found[0]["updatedAt"])
}

func TestQueryNode_DeleteCountAggregate(t *testing.T) {
	ctx := context.Background()
	store := documents.NewMemoryStore()

	_, err := store.Insert(ctx, "orders", []documents.Document{
		{"customer": "a", "total": float64(10)},
		{"customer": "a", "total": float64(5)},
		{"customer": "b", "total": float64(7)},
	})
	require.NoError(t, err)

	counted := run(t, store, map[string]any{"operation": "count", "collection": "orders", "query": map[string]any{"customer": "a"}})
	assert.Equal(t, int64(2), counted["count"])

	aggregated := run(t, store, map[string]any{
		"operation":  "aggregate",
		"collection": "orders",
		"pipeline": []any{
			map[string]any{"$group": map[string]any{"_id": "$customer", "sum": map[string]any{"$sum": "$total"}}},
			map[string]any{"$sort": map[string]any{"_id": float64(1)}},
		},
	})
	assert.Equal(t, 2, aggregated["count"])
	assert.Equal(t, float64(15), aggregated["documents"].([]any)[0].(documents.Document)["sum"])

	deleted := run(t, store, map[string]any{"operation": "deleteMany", "collection": "orders", "query": map[string]any{"customer": "a"}})
	assert.Equal(t, int64(2), deleted["deletedCount"])
}

func TestQueryNode_UnknownOperation(t *testing.T) {
	node, err := NewQueryNode("db", map[string]any{"operation": "drop", "collection": "x"}, documents.NewMemoryStore())
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), models.NewExecutionContext("e", "w", "s", nil), slog.Default())
	require.ErrorIs(t, err, ErrUnknownOperation)
}

func TestNewQueryNode_ConfigErrors(t *testing.T) {
	store := documents.NewMemoryStore()

	_, err := NewQueryNode("db", map[string]any{"collection": "x"}, store)
	require.EqualError(t, err, "missing required field 'operation'")

	_, err = NewQueryNode("db", map[string]any{"operation": "find"}, store)
	require.EqualError(t, err, "missing required field 'collection'")

	_, err = NewQueryNode("db", map[string]any{"operation": "find", "collection": "x", "query": "{bad json"}, store)
	require.Error(t, err)

	_, err = NewQueryNode("db", map[string]any{"operation": "find", "collection": "x"}, nil)
	require.Error(t, err)
}
