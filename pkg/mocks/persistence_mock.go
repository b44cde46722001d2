// Package mocks holds testify mocks of the persistence and event bus interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockTaskRepository is a mock implementation of persistence.TaskRepository interface.
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) NextPending(ctx context.Context, stage models.Stage, excludeSessions []string) (*models.Task, error) {
	args := m.Called(ctx, stage, excludeSessions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) BySession(ctx context.Context, flowSessionID string) ([]*models.Task, error) {
	args := m.Called(ctx, flowSessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *MockTaskRepository) ByID(ctx context.Context, taskID string) (*models.Task, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) Insert(ctx context.Context, tasks []*models.Task) error {
	args := m.Called(ctx, tasks)

	return args.Error(0)
}

func (m *MockTaskRepository) Claim(ctx context.Context, taskID string, at time.Time) (bool, error) {
	args := m.Called(ctx, taskID, at)

	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) Finish(ctx context.Context, taskID string, update models.TaskUpdate) error {
	args := m.Called(ctx, taskID, update)

	return args.Error(0)
}

func (m *MockTaskRepository) CancelPending(ctx context.Context, flowSessionID string, at time.Time) (int64, error) {
	args := m.Called(ctx, flowSessionID, at)

	return args.Get(0).(int64), args.Error(1)
}

// MockFlowVersionRepository is a mock implementation of persistence.FlowVersionRepository interface.
type MockFlowVersionRepository struct {
	mock.Mock
}

func (m *MockFlowVersionRepository) ByID(ctx context.Context, flowVersionID string) (*models.FlowVersion, error) {
	args := m.Called(ctx, flowVersionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.FlowVersion), args.Error(1)
}

func (m *MockFlowVersionRepository) Save(ctx context.Context, flowVersion *models.FlowVersion) error {
	args := m.Called(ctx, flowVersion)

	return args.Error(0)
}

// MockScheduleRepository is a mock implementation of persistence.ScheduleRepository interface.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) Active(ctx context.Context) ([]*models.Schedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}
