package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

type DeadLetterRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDeadLetterRepository(db *sql.DB, logger *slog.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{db: db, logger: logger}
}

func (r *DeadLetterRepository) Save(ctx context.Context, letter *models.DeadLetter) error {
	payloadJSON, err := marshalJSON(letter.Payload)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, workflow_id, workflow_slug, execution_id, source_type, source_identifier,
			correlation_id, payload, error, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		letter.ID,
		letter.WorkflowID,
		letter.WorkflowSlug,
		nullString(letter.ExecutionID),
		letter.SourceType,
		letter.SourceIdentifier,
		nullString(letter.CorrelationID),
		payloadJSON,
		letter.Error,
		letter.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dead letter %s: %w", letter.ID, err)
	}

	return nil
}

func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, workflow_slug, execution_id, source_type, source_identifier,
			correlation_id, payload, error, failed_at
		FROM dead_letters
		ORDER BY failed_at DESC
		LIMIT $1
	`, persistence.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	letters := make([]*models.DeadLetter, 0)

	for rows.Next() {
		var (
			letter                     models.DeadLetter
			executionID, correlationID sql.NullString
			payloadRaw                 []byte
		)

		err := rows.Scan(
			&letter.ID,
			&letter.WorkflowID,
			&letter.WorkflowSlug,
			&executionID,
			&letter.SourceType,
			&letter.SourceIdentifier,
			&correlationID,
			&payloadRaw,
			&letter.Error,
			&letter.FailedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}

		letter.ExecutionID = executionID.String
		letter.CorrelationID = correlationID.String

		if err := unmarshalJSON(payloadRaw, &letter.Payload); err != nil {
			return nil, err
		}

		letters = append(letters, &letter)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return letters, nil
}
