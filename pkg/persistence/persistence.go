// Package persistence provides the data storage abstraction for tasks, flow versions,
// auth accounts and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
)

// TaskRepository is the filtered/ordered read, insert-many and conditional update surface
// consumed by the planner and the scheduler.
type TaskRepository interface {
	// NextPending returns the oldest pending task of the stage whose flow session is not in
	// excludeSessions and has no task in processing. ErrTaskNotFound when there is none.
	NextPending(ctx context.Context, stage models.Stage, excludeSessions []string) (*models.Task, error)

	// BySession returns every task of a flow session ordered by processing order.
	BySession(ctx context.Context, flowSessionID string) ([]*models.Task, error)

	ByID(ctx context.Context, taskID string) (*models.Task, error)

	// Insert persists all tasks atomically.
	Insert(ctx context.Context, tasks []*models.Task) error

	// Claim moves a task from pending to processing. It returns false, without error,
	// when the stored status is no longer pending.
	Claim(ctx context.Context, taskID string, at time.Time) (bool, error)

	// Finish moves a processing task to completed or error, storing its result or error message.
	Finish(ctx context.Context, taskID string, update models.TaskUpdate) error

	// CancelPending cancels every pending task of the session and returns how many changed.
	CancelPending(ctx context.Context, flowSessionID string, at time.Time) (int64, error)
}

type FlowVersionRepository interface {
	ByID(ctx context.Context, flowVersionID string) (*models.FlowVersion, error)
	Save(ctx context.Context, flowVersion *models.FlowVersion) error
}

type AccountRepository interface {
	// AuthAccounts lists the auth provider accounts connected to an account.
	AuthAccounts(ctx context.Context, accountID string) ([]*models.AuthAccount, error)
	AuthProvider(ctx context.Context, providerID string) (*models.AuthProvider, error)
	SaveAuthAccount(ctx context.Context, account *models.AuthAccount) error
	SaveAuthProvider(ctx context.Context, provider *models.AuthProvider) error
}

type ScheduleRepository interface {
	Active(ctx context.Context) ([]*models.Schedule, error)
	Save(ctx context.Context, schedule *models.Schedule) error
}

type Persistence interface {
	TaskRepository() TaskRepository
	FlowVersionRepository() FlowVersionRepository
	AccountRepository() AccountRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
