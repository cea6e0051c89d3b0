package documents

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultMongoDatabase is used when the connection URL names no database.
const DefaultMongoDatabase = "flowforge"

// MongoStore runs every operation on a MongoDB server. Filters, updates and
// pipelines are sent to the server untouched.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(db *mongo.Database, logger *slog.Logger) *MongoStore {
	return &MongoStore{
		client: db.Client(),
		db:     db,
		logger: logger.With("module", "mongo_document_store"),
	}
}

// OpenMongoStore connects using a mongodb:// or mongodb+srv:// URL. The URL
// path selects the database.
func OpenMongoStore(ctx context.Context, uri string, logger *slog.Logger) (*MongoStore, error) {
	name, err := mongoDatabaseName(uri)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))

		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	store := NewMongoStore(client.Database(name), logger)
	store.logger.Info("Connected to document database", "database", name)

	return store, nil
}

func mongoDatabaseName(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid mongo url: %w", err)
	}

	if name := strings.Trim(parsed.Path, "/"); name != "" {
		return name, nil
	}

	return DefaultMongoDatabase, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongo: %w", err)
	}

	return nil
}

func (s *MongoStore) collection(name string) (*mongo.Collection, error) {
	if err := ValidateCollection(name); err != nil {
		return nil, err
	}

	return s.db.Collection(name), nil
}

// The driver rejects a nil filter.
func mongoFilter(filter Document) Document {
	if filter == nil {
		return Document{}
	}

	return filter
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter Document, opts FindOptions) ([]Document, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find()

	if len(opts.Sort) > 0 {
		sort := make(bson.D, 0, len(opts.Sort))

		for _, field := range opts.Sort {
			direction := 1
			if field.Descending {
				direction = -1
			}

			sort = append(sort, bson.E{Key: field.Field, Value: direction})
		}

		findOpts.SetSort(sort)
	}

	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}

	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := coll.Find(ctx, mongoFilter(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to find in %s: %w", collection, err)
	}

	return decodeAll(ctx, cursor)
}

func (s *MongoStore) Insert(ctx context.Context, collection string, docs []Document) ([]string, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	prepared, ids := PrepareInsert(docs)
	if len(prepared) == 0 {
		return ids, nil
	}

	batch := make([]any, 0, len(prepared))
	for _, doc := range prepared {
		batch = append(batch, doc)
	}

	if _, err := coll.InsertMany(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", collection, err)
	}

	return ids, nil
}

func (s *MongoStore) Update(ctx context.Context, collection string, filter, update Document, many bool) (UpdateResult, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return UpdateResult{}, err
	}

	var result *mongo.UpdateResult

	if many {
		result, err = coll.UpdateMany(ctx, mongoFilter(filter), update)
	} else {
		result, err = coll.UpdateOne(ctx, mongoFilter(filter), update)
	}

	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to update %s: %w", collection, err)
	}

	return UpdateResult{Matched: result.MatchedCount, Modified: result.ModifiedCount}, nil
}

func (s *MongoStore) Delete(ctx context.Context, collection string, filter Document, many bool) (int64, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return 0, err
	}

	var result *mongo.DeleteResult

	if many {
		result, err = coll.DeleteMany(ctx, mongoFilter(filter))
	} else {
		result, err = coll.DeleteOne(ctx, mongoFilter(filter))
	}

	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", collection, err)
	}

	return result.DeletedCount, nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, filter Document) (int64, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return 0, err
	}

	count, err := coll.CountDocuments(ctx, mongoFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}

	return count, nil
}

func (s *MongoStore) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	if pipeline == nil {
		pipeline = []Document{}
	}

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", collection, err)
	}

	return decodeAll(ctx, cursor)
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]Document, error) {
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}

	docs := make([]Document, 0, len(raw))
	for _, doc := range raw {
		docs = append(docs, fromBSONMap(doc))
	}

	return docs, nil
}

func fromBSONMap(m map[string]any) Document {
	doc := make(Document, len(m))
	for key, value := range m {
		doc[key] = fromBSON(value)
	}

	return doc
}

// fromBSON turns driver types into the plain JSON shapes the other stores
// return. Integers become float64 like a decoded JSON number.
func fromBSON(value any) any {
	switch v := value.(type) {
	case bson.M:
		return fromBSONMap(v)
	case map[string]any:
		return fromBSONMap(v)
	case bson.D:
		doc := make(Document, len(v))
		for _, element := range v {
			doc[element.Key] = fromBSON(element.Value)
		}

		return doc
	case bson.A:
		return fromBSONSlice(v)
	case []any:
		return fromBSONSlice(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case bson.ObjectID:
		return v.Hex()
	case bson.DateTime:
		return v.Time().UTC()
	default:
		return v
	}
}

func fromBSONSlice(values []any) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = fromBSON(value)
	}

	return out
}
