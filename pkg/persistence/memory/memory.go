// Package memory provides an in-memory persistence implementation, used by tests and
// memory:// local runs. Safe for concurrent access.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/google/uuid"
)

var errDuplicateTask = errors.New("duplicate task id")

var (
	_ persistence.Persistence           = (*Persistence)(nil)
	_ persistence.TaskRepository        = (*taskRepository)(nil)
	_ persistence.FlowVersionRepository = (*flowVersionRepository)(nil)
	_ persistence.AccountRepository     = (*accountRepository)(nil)
	_ persistence.ScheduleRepository    = (*scheduleRepository)(nil)
)

// Persistence keeps every entity in maps guarded by a single lock.
type Persistence struct {
	mu sync.RWMutex

	tasks        map[string]*storedTask
	sequence     int64
	flowVersions map[string]*models.FlowVersion
	providers    map[string]*models.AuthProvider
	accounts     map[string]*models.AuthAccount // key: account_id + "/" + slug
	schedules    map[string]*models.Schedule
}

type storedTask struct {
	task *models.Task
	seq  int64
}

// NewPersistence returns an empty store.
func NewPersistence() *Persistence {
	return &Persistence{
		tasks:        make(map[string]*storedTask),
		flowVersions: make(map[string]*models.FlowVersion),
		providers:    make(map[string]*models.AuthProvider),
		accounts:     make(map[string]*models.AuthAccount),
		schedules:    make(map[string]*models.Schedule),
	}
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return &taskRepository{p}
}

func (p *Persistence) FlowVersionRepository() persistence.FlowVersionRepository {
	return &flowVersionRepository{p}
}

func (p *Persistence) AccountRepository() persistence.AccountRepository {
	return &accountRepository{p}
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return &scheduleRepository{p}
}

// HealthCheck always succeeds.
func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

// Close is a no-op.
func (p *Persistence) Close(_ context.Context) error { return nil }

type taskRepository struct {
	p *Persistence
}

func (r *taskRepository) NextPending(
	_ context.Context,
	stage models.Stage,
	excludeSessions []string,
) (*models.Task, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	busy := make(map[string]struct{})

	for _, stored := range r.p.tasks {
		if stored.task.TaskStatus == models.TaskStatusProcessing {
			busy[stored.task.FlowSessionID] = struct{}{}
		}
	}

	var best *storedTask

	for _, stored := range r.p.tasks {
		task := stored.task
		if task.TaskStatus != models.TaskStatusPending || task.Stage != stage {
			continue
		}

		if slices.Contains(excludeSessions, task.FlowSessionID) {
			continue
		}

		if _, ok := busy[task.FlowSessionID]; ok {
			continue
		}

		if best == nil || before(stored, best) {
			best = stored
		}
	}

	if best == nil {
		return nil, persistence.ErrTaskNotFound
	}

	return copyTask(best.task), nil
}

// before orders by created_at, then processing order, then insertion.
func before(a, b *storedTask) bool {
	if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
		return a.task.CreatedAt.Before(b.task.CreatedAt)
	}

	if a.task.ProcessingOrder != b.task.ProcessingOrder {
		return a.task.ProcessingOrder < b.task.ProcessingOrder
	}

	return a.seq < b.seq
}

func (r *taskRepository) BySession(_ context.Context, flowSessionID string) ([]*models.Task, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	tasks := make([]*models.Task, 0)

	for _, stored := range r.p.tasks {
		if stored.task.FlowSessionID == flowSessionID {
			tasks = append(tasks, copyTask(stored.task))
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].ProcessingOrder < tasks[j].ProcessingOrder
	})

	return tasks, nil
}

func (r *taskRepository) ByID(_ context.Context, taskID string) (*models.Task, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	stored, ok := r.p.tasks[taskID]
	if !ok {
		return nil, persistence.NewTaskError("ByID", taskID, persistence.ErrTaskNotFound)
	}

	return copyTask(stored.task), nil
}

func (r *taskRepository) Insert(_ context.Context, tasks []*models.Task) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, task := range tasks {
		if _, exists := r.p.tasks[task.TaskID]; exists {
			return persistence.NewTaskError("Insert", task.TaskID, errDuplicateTask)
		}
	}

	now := time.Now().UTC()

	for _, task := range tasks {
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}

		r.p.sequence++
		r.p.tasks[task.TaskID] = &storedTask{task: copyTask(task), seq: r.p.sequence}
	}

	return nil
}

func (r *taskRepository) Claim(_ context.Context, taskID string, at time.Time) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored, ok := r.p.tasks[taskID]
	if !ok {
		return false, persistence.NewTaskError("Claim", taskID, persistence.ErrTaskNotFound)
	}

	if stored.task.TaskStatus != models.TaskStatusPending {
		return false, nil
	}

	stored.task.TaskStatus = models.TaskStatusProcessing
	stored.task.StartedAt = &at

	return true, nil
}

func (r *taskRepository) Finish(_ context.Context, taskID string, update models.TaskUpdate) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored, ok := r.p.tasks[taskID]
	if !ok {
		return persistence.NewTaskError("Finish", taskID, persistence.ErrTaskNotFound)
	}

	if stored.task.TaskStatus != models.TaskStatusProcessing ||
		!stored.task.TaskStatus.CanTransitionTo(update.Status) {
		return persistence.NewTaskError("Finish", taskID, persistence.ErrInvalidTransition)
	}

	at := update.At
	stored.task.TaskStatus = update.Status
	stored.task.EndedAt = &at

	if len(update.Result) > 0 {
		stored.task.Result = slices.Clone(update.Result)
	}

	if update.ErrorMessage != "" {
		message := update.ErrorMessage
		stored.task.ErrorMessage = &message
	}

	return nil
}

func (r *taskRepository) CancelPending(_ context.Context, flowSessionID string, at time.Time) (int64, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var cancelled int64

	for _, stored := range r.p.tasks {
		if stored.task.FlowSessionID != flowSessionID || stored.task.TaskStatus != models.TaskStatusPending {
			continue
		}

		endedAt := at
		stored.task.TaskStatus = models.TaskStatusCancelled
		stored.task.EndedAt = &endedAt
		cancelled++
	}

	return cancelled, nil
}

func copyTask(task *models.Task) *models.Task {
	clone := *task
	clone.Config.Variables = slices.Clone(task.Config.Variables)
	clone.Config.Inputs = slices.Clone(task.Config.Inputs)
	clone.Result = slices.Clone(task.Result)

	return &clone
}

type flowVersionRepository struct {
	p *Persistence
}

func (r *flowVersionRepository) ByID(_ context.Context, flowVersionID string) (*models.FlowVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	flowVersion, ok := r.p.flowVersions[flowVersionID]
	if !ok {
		return nil, fmt.Errorf("flow version %s: %w", flowVersionID, persistence.ErrFlowVersionNotFound)
	}

	clone := *flowVersion

	return &clone, nil
}

func (r *flowVersionRepository) Save(_ context.Context, flowVersion *models.FlowVersion) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if flowVersion.ID == "" {
		flowVersion.ID = uuid.NewString()
	}

	if _, exists := r.p.flowVersions[flowVersion.ID]; exists {
		return fmt.Errorf("flow version %s: %w", flowVersion.ID, persistence.ErrFlowVersionExists)
	}

	if flowVersion.CreatedAt.IsZero() {
		flowVersion.CreatedAt = time.Now().UTC()
	}

	clone := *flowVersion
	r.p.flowVersions[flowVersion.ID] = &clone

	return nil
}

type accountRepository struct {
	p *Persistence
}

func (r *accountRepository) AuthAccounts(_ context.Context, accountID string) ([]*models.AuthAccount, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	accounts := make([]*models.AuthAccount, 0)

	for _, account := range r.p.accounts {
		if account.AccountID == accountID {
			clone := *account
			accounts = append(accounts, &clone)
		}
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Slug < accounts[j].Slug
	})

	return accounts, nil
}

func (r *accountRepository) AuthProvider(_ context.Context, providerID string) (*models.AuthProvider, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	provider, ok := r.p.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("auth provider %s: %w", providerID, persistence.ErrAuthProviderNotFound)
	}

	clone := *provider

	return &clone, nil
}

func (r *accountRepository) SaveAuthAccount(_ context.Context, account *models.AuthAccount) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	account.UpdatedAt = time.Now().UTC()

	clone := *account
	r.p.accounts[account.AccountID+"/"+account.Slug] = &clone

	return nil
}

func (r *accountRepository) SaveAuthProvider(_ context.Context, provider *models.AuthProvider) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	clone := *provider
	r.p.providers[provider.ID] = &clone

	return nil
}

type scheduleRepository struct {
	p *Persistence
}

func (r *scheduleRepository) Active(_ context.Context) ([]*models.Schedule, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	schedules := make([]*models.Schedule, 0)

	for _, schedule := range r.p.schedules {
		if schedule.Active {
			clone := *schedule
			schedules = append(schedules, &clone)
		}
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
	})

	return schedules, nil
}

func (r *scheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}

	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	clone := *schedule
	r.p.schedules[schedule.ID] = &clone

	return nil
}
