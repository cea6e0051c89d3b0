package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dukex/flowforge/pkg/documents"
)

// DocumentStore keeps each collection as a JSON array in <root>/documents/<collection>.json.
type DocumentStore struct {
	dir string
	mu  sync.RWMutex
}

func NewDocumentStore(root string) *DocumentStore {
	return &DocumentStore{dir: filepath.Join(root, "documents")}
}

func (s *DocumentStore) load(collection string) ([]documents.Document, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, collection+".json")) // #nosec G304 -- collection is validated
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []documents.Document{}, nil
		}

		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}

	var docs []documents.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collection %s: %w", collection, err)
	}

	return docs, nil
}

func (s *DocumentStore) store(collection string, docs []documents.Document) error {
	return writeRecord(s.dir, collection, docs)
}

func (s *DocumentStore) Find(_ context.Context, collection string, filter documents.Document, opts documents.FindOptions) ([]documents.Document, error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := s.load(collection)
	if err != nil {
		return nil, err
	}

	return documents.Query(docs, filter, opts)
}

func (s *DocumentStore) Insert(_ context.Context, collection string, docs []documents.Document) ([]string, error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return nil, err
	}

	prepared, ids := documents.PrepareInsert(docs)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(collection)
	if err != nil {
		return nil, err
	}

	if err := s.store(collection, append(existing, prepared...)); err != nil {
		return nil, err
	}

	return ids, nil
}

func (s *DocumentStore) Update(_ context.Context, collection string, filter, update documents.Document, many bool) (documents.UpdateResult, error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return documents.UpdateResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(collection)
	if err != nil {
		return documents.UpdateResult{}, err
	}

	updated, result, err := documents.UpdateDocuments(existing, filter, update, many)
	if err != nil {
		return documents.UpdateResult{}, err
	}

	if result.Modified > 0 {
		if err := s.store(collection, updated); err != nil {
			return documents.UpdateResult{}, err
		}
	}

	return result, nil
}

func (s *DocumentStore) Delete(_ context.Context, collection string, filter documents.Document, many bool) (int64, error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(collection)
	if err != nil {
		return 0, err
	}

	kept, deleted, err := documents.DeleteDocuments(existing, filter, many)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		if err := s.store(collection, kept); err != nil {
			return 0, err
		}
	}

	return deleted, nil
}

func (s *DocumentStore) Count(ctx context.Context, collection string, filter documents.Document) (int64, error) {
	found, err := s.Find(ctx, collection, filter, documents.FindOptions{})
	if err != nil {
		return 0, err
	}

	return int64(len(found)), nil
}

func (s *DocumentStore) Aggregate(_ context.Context, collection string, pipeline []documents.Document) ([]documents.Document, error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := s.load(collection)
	if err != nil {
		return nil, err
	}

	return documents.Aggregate(docs, pipeline)
}
