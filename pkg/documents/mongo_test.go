package documents

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMongoDatabaseName(t *testing.T) {
	tests := map[string]string{
		"mongodb://localhost:27017":                   DefaultMongoDatabase,
		"mongodb://localhost:27017/":                  DefaultMongoDatabase,
		"mongodb://u:p@localhost:27017/orders":        "orders",
		"mongodb://a:27017,b:27017/crm?replicaSet=rs": "crm",
		"mongodb+srv://cluster.example.net/analytics": "analytics",
	}

	for uri, want := range tests {
		t.Run(uri, func(t *testing.T) {
			name, err := mongoDatabaseName(uri)
			require.NoError(t, err)
			assert.Equal(t, want, name)
		})
	}
}

func TestFromBSON(t *testing.T) {
	id := bson.NewObjectID()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := fromBSONMap(bson.M{
		"_id":     id,
		"count":   int32(3),
		"total":   int64(40),
		"at":      bson.NewDateTimeFromTime(at),
		"address": bson.D{{Key: "city", Value: "Lisbon"}, {Key: "zip", Value: int32(1000)}},
		"tags":    bson.A{"a", bson.D{{Key: "n", Value: int64(1)}}},
	})

	assert.Equal(t, Document{
		"_id":     id.Hex(),
		"count":   float64(3),
		"total":   float64(40),
		"at":      at,
		"address": Document{"city": "Lisbon", "zip": float64(1000)},
		"tags":    []any{"a", Document{"n": float64(1)}},
	}, got)
}

func setupMongo(t *testing.T) (*MongoStore, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := OpenMongoStore(ctx, strings.TrimSuffix(uri, "/")+"/flowforge_test", logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return store, ctx
}

func TestMongoStore_CRUD(t *testing.T) {
	store, ctx := setupMongo(t)

	ids, err := store.Insert(ctx, "users", []Document{
		{"name": "ana", "age": float64(30), "plan": "pro"},
		{"_id": "u-bo", "name": "bo", "age": float64(17), "plan": "free"},
		{"name": "cy", "age": float64(42), "plan": "pro", "address": map[string]any{"city": "Porto"}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, "u-bo", ids[1])

	adults, err := store.Find(ctx, "users",
		Document{"age": map[string]any{"$gte": float64(18)}},
		FindOptions{Sort: []SortField{{Field: "age", Descending: true}}})
	require.NoError(t, err)
	require.Len(t, adults, 2)
	assert.Equal(t, "cy", adults[0]["name"])
	assert.Equal(t, ids[2], adults[0]["_id"])
	assert.Equal(t, Document{"city": "Porto"}, adults[0]["address"])

	page, err := store.Find(ctx, "users", nil, FindOptions{
		Sort: []SortField{{Field: "name"}}, Skip: 1, Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "bo", page[0]["name"])

	result, err := store.Update(ctx, "users", Document{"plan": "pro"},
		Document{"$set": map[string]any{"plan": "team"}}, true)
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Matched: 2, Modified: 2}, result)

	result, err = store.Update(ctx, "users", Document{"_id": "u-bo"},
		Document{"$set": map[string]any{"plan": "free"}}, false)
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Matched: 1, Modified: 0}, result)

	count, err := store.Count(ctx, "users", Document{"plan": "team"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	deleted, err := store.Delete(ctx, "users", Document{"plan": "team"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = store.Delete(ctx, "users", nil, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestMongoStore_Aggregate(t *testing.T) {
	store, ctx := setupMongo(t)

	_, err := store.Insert(ctx, "orders", []Document{
		{"customer": "ana", "total": float64(10)},
		{"customer": "ana", "total": float64(15)},
		{"customer": "bo", "total": float64(7)},
	})
	require.NoError(t, err)

	totals, err := store.Aggregate(ctx, "orders", []Document{
		{"$group": map[string]any{
			"_id":    "$customer",
			"total":  map[string]any{"$sum": "$total"},
			"orders": map[string]any{"$sum": 1},
		}},
		{"$sort": map[string]any{"_id": 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, []Document{
		{"_id": "ana", "total": float64(25), "orders": float64(2)},
		{"_id": "bo", "total": float64(7), "orders": float64(1)},
	}, totals)
}

func TestMongoStore_RejectsInvalidCollection(t *testing.T) {
	store, ctx := setupMongo(t)

	_, err := store.Find(ctx, "$cmd", nil, FindOptions{})
	require.ErrorIs(t, err, ErrInvalidCollection)

	_, err = store.Insert(ctx, "../etc", []Document{{"a": 1}})
	require.ErrorIs(t, err, ErrInvalidCollection)
}
