package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowforge/pkg/documents"
	"github.com/dukex/flowforge/pkg/persistence"
	"github.com/dukex/flowforge/pkg/persistence/file"
	"github.com/dukex/flowforge/pkg/persistence/postgresql"
	"github.com/dukex/flowforge/pkg/persistence/redis"
)

// NewPersistence picks the store from the URL scheme. Anything that is not a
// postgres URL is treated as a file store root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

// NewJobRepository returns a redis job store for redis:// URLs and the
// persistence's own job store otherwise.
func NewJobRepository(
	ctx context.Context,
	logger *slog.Logger,
	jobStoreURL string,
	fallback persistence.Persistence,
) (persistence.JobRepository, func() error, error) {
	if parsePersistenceProvider(jobStoreURL) != "redis" {
		return fallback.JobRepository(), func() error { return nil }, nil
	}

	repo, err := redis.NewJobRepositoryFromURL(ctx, jobStoreURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return repo, repo.Close, nil
}

// NewDocumentStore returns a MongoDB store for mongodb:// URLs and the
// persistence's own document store when the URL is empty.
func NewDocumentStore(
	ctx context.Context,
	logger *slog.Logger,
	documentsURL string,
	fallback persistence.Persistence,
) (documents.Store, func(context.Context) error, error) {
	if documentsURL == "" {
		return fallback.DocumentStore(), func(context.Context) error { return nil }, nil
	}

	if parsePersistenceProvider(documentsURL) != "mongodb" {
		return nil, nil, fmt.Errorf("unsupported documents url %q: expected mongodb:// or mongodb+srv://", documentsURL)
	}

	store, err := documents.OpenMongoStore(ctx, documentsURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return store, store.Close, nil
}

func parsePersistenceProvider(url string) string {
	scheme, _, found := strings.Cut(url, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgres"
	case "redis", "rediss":
		return "redis"
	case "mongodb", "mongodb+srv":
		return "mongodb"
	default:
		return "file"
	}
}
