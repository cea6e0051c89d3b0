// Package mocks provides testify mocks for the persistence and event bus contracts.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/flowforge/pkg/documents"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetActive(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetBySlug(ctx context.Context, slug string) (*models.Workflow, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) UpdateLogs(ctx context.Context, executionID string, logs []models.LogEntry) error {
	args := m.Called(ctx, executionID, logs)

	return args.Error(0)
}

func (m *MockExecutionRepository) Finish(ctx context.Context, executionID string, result models.ExecutionResult) error {
	args := m.Called(ctx, executionID, result)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByWorkflowSlug(ctx context.Context, slug string, limit int) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, slug, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

// MockJobRepository is a mock implementation of persistence.JobRepository interface.
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *models.WorkflowJob) error {
	args := m.Called(ctx, job)

	return args.Error(0)
}

func (m *MockJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowJob, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowJob), args.Error(1)
}

func (m *MockJobRepository) Update(ctx context.Context, job *models.WorkflowJob) error {
	args := m.Called(ctx, job)

	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, jobID string) (*models.WorkflowJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowJob), args.Error(1)
}

func (m *MockJobRepository) List(ctx context.Context, status models.JobStatus) ([]*models.WorkflowJob, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowJob), args.Error(1)
}

// MockDeadLetterRepository is a mock implementation of persistence.DeadLetterRepository interface.
type MockDeadLetterRepository struct {
	mock.Mock
}

func (m *MockDeadLetterRepository) Save(ctx context.Context, letter *models.DeadLetter) error {
	args := m.Called(ctx, letter)

	return args.Error(0)
}

func (m *MockDeadLetterRepository) List(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.DeadLetter), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	workflowRepo   *MockWorkflowRepository
	executionRepo  *MockExecutionRepository
	jobRepo        *MockJobRepository
	deadLetterRepo *MockDeadLetterRepository
	documentStore  documents.Store
}

// NewMockPersistence creates a new MockPersistence with all mock repositories
// and an in-memory document store.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:   &MockWorkflowRepository{},
		executionRepo:  &MockExecutionRepository{},
		jobRepo:        &MockJobRepository{},
		deadLetterRepo: &MockDeadLetterRepository{},
		documentStore:  documents.NewMemoryStore(),
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) GetMockJobRepository() *MockJobRepository {
	return m.jobRepo
}

func (m *MockPersistence) GetMockDeadLetterRepository() *MockDeadLetterRepository {
	return m.deadLetterRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) JobRepository() persistence.JobRepository {
	return m.jobRepo
}

func (m *MockPersistence) DeadLetterRepository() persistence.DeadLetterRepository {
	return m.deadLetterRepo
}

func (m *MockPersistence) DocumentStore() documents.Store {
	return m.documentStore
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

var _ persistence.Persistence = (*MockPersistence)(nil)
