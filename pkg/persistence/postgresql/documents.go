package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/flowforge/pkg/documents"
)

// DocumentStore keeps documents as JSONB rows. Filters are evaluated with the
// shared in-process matcher; only an _id equality is pushed down to SQL.
type DocumentStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDocumentStore(db *sql.DB, logger *slog.Logger) *DocumentStore {
	return &DocumentStore{db: db, logger: logger}
}

type documentRow struct {
	id  string
	doc documents.Document
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *DocumentStore) load(ctx context.Context, q queryer, collection string, filter documents.Document, lock bool) ([]documentRow, error) {
	query := `SELECT id, body FROM documents WHERE collection = $1`
	args := []any{collection}

	if id, ok := filter[documents.IDField].(string); ok {
		query += ` AND id = $2`

		args = append(args, id)
	}

	query += ` ORDER BY created_at, id`

	if lock {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}

	defer closeRows(ctx, s.logger, rows)

	loaded := make([]documentRow, 0)

	for rows.Next() {
		var (
			row  documentRow
			body []byte
		)

		if err := rows.Scan(&row.id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		if err := unmarshalJSON(body, &row.doc); err != nil {
			return nil, err
		}

		loaded = append(loaded, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return loaded, nil
}

func docsOf(rows []documentRow) []documents.Document {
	docs := make([]documents.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.doc)
	}

	return docs
}

func (s *DocumentStore) Find(ctx context.Context, collection string, filter documents.Document, opts documents.FindOptions) ([]documents.Document, error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return nil, err
	}

	rows, err := s.load(ctx, s.db, collection, filter, false)
	if err != nil {
		return nil, err
	}

	return documents.Query(docsOf(rows), filter, opts)
}

func (s *DocumentStore) Insert(ctx context.Context, collection string, docs []documents.Document) (ids []string, err error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return nil, err
	}

	prepared, ids := documents.PrepareInsert(docs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, doc := range prepared {
		body, err := marshalJSON(doc)
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, body, created_at) VALUES ($1, $2, $3, clock_timestamp())`,
			collection, ids[i], body)
		if err != nil {
			return nil, fmt.Errorf("failed to insert document %s: %w", ids[i], err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ids, nil
}

func (s *DocumentStore) Update(ctx context.Context, collection string, filter, update documents.Document, many bool) (result documents.UpdateResult, err error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return documents.UpdateResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return documents.UpdateResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := s.load(ctx, tx, collection, filter, true)
	if err != nil {
		return documents.UpdateResult{}, err
	}

	for _, row := range rows {
		matched, err := documents.Match(row.doc, filter)
		if err != nil {
			return documents.UpdateResult{}, err
		}

		if !matched {
			continue
		}

		result.Matched++

		next, changed, err := documents.ApplyUpdate(row.doc, update)
		if err != nil {
			return documents.UpdateResult{}, fmt.Errorf("failed to apply update: %w", err)
		}

		if changed {
			body, err := marshalJSON(next)
			if err != nil {
				return documents.UpdateResult{}, err
			}

			if _, err := tx.ExecContext(ctx,
				`UPDATE documents SET body = $3 WHERE collection = $1 AND id = $2`,
				collection, row.id, body); err != nil {
				return documents.UpdateResult{}, fmt.Errorf("failed to update document %s: %w", row.id, err)
			}

			result.Modified++
		}

		if !many {
			break
		}
	}

	if err = tx.Commit(); err != nil {
		return documents.UpdateResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection string, filter documents.Document, many bool) (deleted int64, err error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := s.load(ctx, tx, collection, filter, true)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		matched, err := documents.Match(row.doc, filter)
		if err != nil {
			return 0, err
		}

		if !matched {
			continue
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, row.id); err != nil {
			return 0, fmt.Errorf("failed to delete document %s: %w", row.id, err)
		}

		deleted++

		if !many {
			break
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
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

func (s *DocumentStore) Aggregate(ctx context.Context, collection string, pipeline []documents.Document) ([]documents.Document, error) {
	if err := documents.ValidateCollection(collection); err != nil {
		return nil, err
	}

	rows, err := s.load(ctx, s.db, collection, nil, false)
	if err != nil {
		return nil, err
	}

	return documents.Aggregate(docsOf(rows), pipeline)
}
