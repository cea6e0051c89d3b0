package documents

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps collections in process. It backs tests and single-process runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Document)}
}

func (s *MemoryStore) Find(_ context.Context, collection string, filter Document, opts FindOptions) ([]Document, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	found, err := Query(s.collections[collection], filter, opts)
	if err != nil {
		return nil, err
	}

	return cloneAll(found), nil
}

func (s *MemoryStore) Insert(_ context.Context, collection string, docs []Document) ([]string, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}

	prepared, ids := PrepareInsert(docs)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[collection] = append(s.collections[collection], prepared...)

	return ids, nil
}

func (s *MemoryStore) Update(_ context.Context, collection string, filter, update Document, many bool) (UpdateResult, error) {
	if err := ValidateCollection(collection); err != nil {
		return UpdateResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]

	updated, result, err := UpdateDocuments(docs, filter, update, many)
	if err != nil {
		return UpdateResult{}, err
	}

	s.collections[collection] = updated

	return result, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection string, filter Document, many bool) (int64, error) {
	if err := ValidateCollection(collection); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept, deleted, err := DeleteDocuments(s.collections[collection], filter, many)
	if err != nil {
		return 0, err
	}

	s.collections[collection] = kept

	return deleted, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, filter Document) (int64, error) {
	found, err := s.Find(ctx, collection, filter, FindOptions{})
	if err != nil {
		return 0, err
	}

	return int64(len(found)), nil
}

func (s *MemoryStore) Aggregate(_ context.Context, collection string, pipeline []Document) ([]Document, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Aggregate(s.collections[collection], pipeline)
}

// PrepareInsert copies docs and assigns an _id where missing.
func PrepareInsert(docs []Document) ([]Document, []string) {
	prepared := make([]Document, 0, len(docs))
	ids := make([]string, 0, len(docs))

	for _, doc := range docs {
		copied := Clone(doc)
		if copied == nil {
			copied = Document{}
		}

		id, ok := copied[IDField].(string)
		if !ok || id == "" {
			id = uuid.NewString()
			copied[IDField] = id
		}

		prepared = append(prepared, copied)
		ids = append(ids, id)
	}

	return prepared, ids
}

// UpdateDocuments applies update to the matching docs, returning the new slice.
func UpdateDocuments(docs []Document, filter, update Document, many bool) ([]Document, UpdateResult, error) {
	var result UpdateResult

	updated := make([]Document, len(docs))
	copy(updated, docs)

	for i, doc := range updated {
		ok, err := Match(doc, filter)
		if err != nil {
			return nil, UpdateResult{}, err
		}

		if !ok {
			continue
		}

		result.Matched++

		next, changed, err := ApplyUpdate(doc, update)
		if err != nil {
			return nil, UpdateResult{}, fmt.Errorf("failed to apply update: %w", err)
		}

		if changed {
			updated[i] = next
			result.Modified++
		}

		if !many {
			break
		}
	}

	return updated, result, nil
}

// DeleteDocuments removes the matching docs, returning the survivors.
func DeleteDocuments(docs []Document, filter Document, many bool) ([]Document, int64, error) {
	kept := make([]Document, 0, len(docs))

	var deleted int64

	for _, doc := range docs {
		if many || deleted == 0 {
			ok, err := Match(doc, filter)
			if err != nil {
				return nil, 0, err
			}

			if ok {
				deleted++

				continue
			}
		}

		kept = append(kept, doc)
	}

	return kept, deleted, nil
}

func cloneAll(docs []Document) []Document {
	cloned := make([]Document, 0, len(docs))
	for _, doc := range docs {
		cloned = append(cloned, Clone(doc))
	}

	return cloned
}
