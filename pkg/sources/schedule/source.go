// Package schedule fires flow version triggers from stored cron schedules.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/dukex/operion-engine/pkg/trigger"
	"github.com/robfig/cron/v3"
)

// Firer creates trigger tasks.
type Firer interface {
	Fire(ctx context.Context, req trigger.FireRequest) (*models.Task, error)
}

type Source struct {
	logger    *slog.Logger
	schedules persistence.ScheduleRepository
	firer     Firer
	cron      *cron.Cron
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
}

func New(logger *slog.Logger, schedules persistence.ScheduleRepository, firer Firer) *Source {
	logger = logger.With("module", "schedule_source")
	cronLog := cronLogger{logger: logger}

	return &Source{
		logger:    logger,
		schedules: schedules,
		firer:     firer,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLog),
				cron.Recover(cronLog),
			),
		),
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

// Start registers every active schedule and starts the cron runner. Schedules with an
// invalid expression are logged and skipped.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	err := s.Reload(ctx)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Schedule source started", "schedules", s.Len())

	return nil
}

// Reload replaces the registered schedules with the currently active ones.
func (s *Source) Reload(ctx context.Context) error {
	schedules, err := s.schedules.Active(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}

	for _, schedule := range schedules {
		entryID, err := s.cron.AddJob(schedule.CronExpression, s.Job(schedule))
		if err != nil {
			s.logger.ErrorContext(ctx, "Skipping schedule with invalid cron expression",
				"schedule_id", schedule.ID,
				"cron", schedule.CronExpression,
				"error", err)

			continue
		}

		s.entries[schedule.ID] = entryID
	}

	return nil
}

// Job returns the cron job firing schedule's flow version.
func (s *Source) Job(schedule *models.Schedule) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		firedAt := s.now()
		payload, _ := json.Marshal(map[string]string{
			"schedule_id": schedule.ID,
			"fired_at":    firedAt.Format(time.RFC3339),
		})

		task, err := s.firer.Fire(ctx, trigger.FireRequest{
			AccountID:     schedule.AccountID,
			FlowID:        schedule.FlowID,
			FlowVersionID: schedule.FlowVersionID,
			Stage:         schedule.Stage,
			TriggerID:     schedule.ID,
			Payload:       payload,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to fire schedule", "schedule_id", schedule.ID, "error", err)

			return
		}

		s.logger.InfoContext(ctx, "Schedule fired",
			"schedule_id", schedule.ID,
			"task_id", task.TaskID,
			"flow_session_id", task.FlowSessionID)
	})
}

// Len reports how many schedules are registered.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Stop halts the cron runner and waits for running jobs or ctx, whichever ends first.
func (s *Source) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
