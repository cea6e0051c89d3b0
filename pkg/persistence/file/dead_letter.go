package file

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

type DeadLetterRepository struct {
	dir string
}

func NewDeadLetterRepository(root string) *DeadLetterRepository {
	return &DeadLetterRepository{dir: filepath.Join(root, "dead_letters")}
}

func (dr *DeadLetterRepository) Save(_ context.Context, letter *models.DeadLetter) error {
	return writeRecord(dr.dir, letter.ID, letter)
}

func (dr *DeadLetterRepository) List(_ context.Context, limit int) ([]*models.DeadLetter, error) {
	letters, err := readAllRecords[models.DeadLetter](dr.dir)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(letters, func(i, j int) bool {
		return letters[i].FailedAt.After(letters[j].FailedAt)
	})

	if limit = persistence.NormalizeLimit(limit); len(letters) > limit {
		letters = letters[:limit]
	}

	return letters, nil
}
