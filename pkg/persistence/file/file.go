// Package file provides file-based persistence: one JSON file per record
// under <root>/<kind>/<id>.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/flowforge/pkg/documents"
	"github.com/dukex/flowforge/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root           string
	workflowRepo   *WorkflowRepository
	executionRepo  *ExecutionRepository
	jobRepo        *JobRepository
	deadLetterRepo *DeadLetterRepository
	documentStore  *DocumentStore
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:           cleanRoot,
		workflowRepo:   NewWorkflowRepository(cleanRoot),
		executionRepo:  NewExecutionRepository(cleanRoot),
		jobRepo:        NewJobRepository(cleanRoot),
		deadLetterRepo: NewDeadLetterRepository(cleanRoot),
		documentStore:  NewDocumentStore(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) JobRepository() persistence.JobRepository {
	return fp.jobRepo
}

func (fp *Persistence) DeadLetterRepository() persistence.DeadLetterRepository {
	return fp.deadLetterRepo
}

func (fp *Persistence) DocumentStore() documents.Store {
	return fp.documentStore
}

// validateID validates that an ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

// readRecord decodes <dir>/<id>.json, returning nil, nil when the file does not exist.
func readRecord[T any](dir, id string) (*T, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, id+".json")) // #nosec G304 -- id is validated
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}

	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return &record, nil
}

func writeRecord(dir, id string, record any) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	// Write then rename so readers never observe a partial file.
	tmp := filepath.Join(dir, "."+id+".tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return os.Rename(tmp, filepath.Join(dir, id+".json"))
}

// readAllRecords decodes every <dir>/*.json. A missing directory yields no records.
func readAllRecords[T any](dir string) ([]*T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*T{}, nil
		}

		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	records := make([]*T, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		record, err := readRecord[T](dir, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		if record != nil {
			records = append(records, record)
		}
	}

	return records, nil
}
