package file

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

// JobRepository stores jobs as files. Claims are serialised by a mutex, which
// makes them atomic within one process only.
type JobRepository struct {
	dir string
	mu  sync.Mutex
}

func NewJobRepository(root string) *JobRepository {
	return &JobRepository{dir: filepath.Join(root, "jobs")}
}

func (jr *JobRepository) Create(_ context.Context, job *models.WorkflowJob) error {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	return writeRecord(jr.dir, job.JobID, job)
}

func (jr *JobRepository) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.WorkflowJob, error) {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	all, err := readAllRecords[models.WorkflowJob](jr.dir)
	if err != nil {
		return nil, err
	}

	due := make([]*models.WorkflowJob, 0)

	for _, job := range all {
		if job.IsDue(now) {
			due = append(due, job)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*models.WorkflowJob, 0, len(due))

	for _, job := range due {
		job.Status = models.JobStatusRunning
		job.UpdatedAt = now

		if err := writeRecord(jr.dir, job.JobID, job); err != nil {
			return claimed, err
		}

		claimed = append(claimed, job)
	}

	return claimed, nil
}

func (jr *JobRepository) Update(_ context.Context, job *models.WorkflowJob) error {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	existing, err := readRecord[models.WorkflowJob](jr.dir, job.JobID)
	if err != nil {
		return err
	}

	if existing == nil {
		return persistence.ErrJobNotFound
	}

	return writeRecord(jr.dir, job.JobID, job)
}

func (jr *JobRepository) GetByID(_ context.Context, jobID string) (*models.WorkflowJob, error) {
	return readRecord[models.WorkflowJob](jr.dir, jobID)
}

func (jr *JobRepository) List(_ context.Context, status models.JobStatus) ([]*models.WorkflowJob, error) {
	all, err := readAllRecords[models.WorkflowJob](jr.dir)
	if err != nil {
		return nil, err
	}

	jobs := make([]*models.WorkflowJob, 0, len(all))

	for _, job := range all {
		if status == "" || job.Status == status {
			jobs = append(jobs, job)
		}
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].ScheduledFor.Before(jobs[j].ScheduledFor)
	})

	return jobs, nil
}
