package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dukex/operion-engine/pkg/events"
	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/otelhelper"
	"github.com/dukex/operion-engine/pkg/registry"
	"github.com/dukex/operion-engine/pkg/retry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrClaimLost means another worker moved the task out of pending first.
	ErrClaimLost = errors.New("task already claimed")

	// ErrPanic wraps a panic raised while running a task.
	ErrPanic = errors.New("task panicked")
)

// triggerResult is stored on completed trigger tasks; later tasks read it as
// <trigger_node>.result.payload.
type triggerResult struct {
	PlannedTasks int             `json:"planned_tasks"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

func (s *Scheduler) processFlow(ctx context.Context, first *models.Task) {
	start := s.now()

	logger := s.logger.With("flow_session_id", first.FlowSessionID, "flow_version_id", first.FlowVersionID)

	defer s.wg.Done()
	defer s.sem.Release(1)
	defer s.untrack(first.FlowSessionID)
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Flow processing panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "flow.run",
		attribute.String(otelhelper.FlowSessionIDKey, first.FlowSessionID),
		attribute.String(otelhelper.FlowVersionIDKey, first.FlowVersionID),
		attribute.String(otelhelper.StageKey, string(first.Stage)),
	)
	defer span.End()

	if first.IsTrigger {
		err := s.processTrigger(ctx, logger, first)
		if err != nil {
			if !errors.Is(err, ErrClaimLost) {
				otelhelper.SetError(span, err)
				s.publishFinished(ctx, first, models.TaskStatusError, first.TaskID, 0, start)
			}

			return
		}
	}

	tasks, err := s.tasks.BySession(ctx, first.FlowSessionID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load flow session tasks", "error", err)
		otelhelper.SetError(span, err)

		return
	}

	for _, task := range tasks {
		if task.IsTrigger || task.TaskStatus != models.TaskStatusPending {
			continue
		}

		claimed, err := s.tasks.Claim(ctx, task.TaskID, s.now())
		if err != nil {
			logger.ErrorContext(ctx, "Failed to claim task", "task_id", task.TaskID, "error", err)

			return
		}

		if !claimed {
			logger.InfoContext(ctx, "Task claimed elsewhere, stopping flow scan", "task_id", task.TaskID)

			return
		}

		err = s.runTask(ctx, task)
		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.TaskIDKey, task.TaskID))

			cancelled := s.fail(ctx, logger, task, err)
			s.publishFinished(ctx, first, models.TaskStatusError, task.TaskID, cancelled, start)

			return
		}
	}

	logger.InfoContext(ctx, "Flow session completed", "duration", s.now().Sub(start))
	s.publishFinished(ctx, first, models.TaskStatusCompleted, "", 0, start)
}

// processTrigger claims the trigger task, plans its flow and completes it.
func (s *Scheduler) processTrigger(ctx context.Context, logger *slog.Logger, trigger *models.Task) error {
	claimed, err := s.tasks.Claim(ctx, trigger.TaskID, s.now())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to claim trigger task", "task_id", trigger.TaskID, "error", err)

		return err
	}

	if !claimed {
		logger.InfoContext(ctx, "Trigger task claimed elsewhere", "task_id", trigger.TaskID)

		return ErrClaimLost
	}

	planned, err := s.planner.ProcessTrigger(ctx, trigger)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to plan flow", "task_id", trigger.TaskID, "error", err)
		s.finish(ctx, logger, trigger, models.TaskUpdate{
			Status:       models.TaskStatusError,
			ErrorMessage: err.Error(),
		})

		return err
	}

	result, err := json.Marshal(triggerResult{PlannedTasks: len(planned), Payload: trigger.Config.Inputs})
	if err != nil {
		err = fmt.Errorf("encode trigger result: %w", err)
		logger.ErrorContext(ctx, "Failed to record trigger result", "task_id", trigger.TaskID, "error", err)
		s.fail(ctx, logger, trigger, err)

		return err
	}

	s.finish(ctx, logger, trigger, models.TaskUpdate{
		Status: models.TaskStatusCompleted,
		Result: result,
	})

	logger.InfoContext(ctx, "Planned flow", "task_id", trigger.TaskID, "planned_tasks", len(planned))

	return nil
}

// runTask bundles and executes a claimed task and records its result.
func (s *Scheduler) runTask(ctx context.Context, task *models.Task) (err error) {
	pluginID := task.Plugin()
	logger := s.logger.With(
		"task_id", task.TaskID,
		"flow_session_id", task.FlowSessionID,
		"node_id", task.NodeID,
		"plugin_id", pluginID,
	)

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "task.execute",
		otelhelper.TaskAttributes(task.TaskID, task.FlowSessionID, task.NodeID, pluginID)...)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Task panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}

		if err != nil {
			otelhelper.SetError(span, err)
		}
	}()

	logger.InfoContext(ctx, "Running task")

	payload, err := s.bundle(ctx, task)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to bundle task", "error", err)

		return err
	}

	result, err := retry.Do(ctx, s.config.Retry, func(ctx context.Context, attempt int) (any, error) {
		if attempt > 1 {
			logger.WarnContext(ctx, "Retrying task", "attempt", attempt)
		}

		return s.execute(ctx, pluginID, payload)
	})
	if err != nil {
		logger.ErrorContext(ctx, "Task execution failed", "error", err)

		return err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	s.finish(ctx, logger, task, models.TaskUpdate{
		Status: models.TaskStatusCompleted,
		Result: encoded,
	})

	logger.InfoContext(ctx, "Task completed")

	return nil
}

func (s *Scheduler) bundle(ctx context.Context, task *models.Task) (any, error) {
	if s.config.BundleTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.config.BundleTimeout)
		defer cancel()
	}

	return s.bundler.Bundle(ctx, task)
}

func (s *Scheduler) execute(ctx context.Context, pluginID string, payload any) (any, error) {
	if s.config.TaskTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.config.TaskTimeout)
		defer cancel()
	}

	result, err := s.dispatcher.Execute(ctx, pluginID, payload)
	if errors.Is(err, registry.ErrUnknownPlugin) || errors.Is(err, registry.ErrInvalidPayload) {
		return nil, retry.Permanent(err)
	}

	return result, err
}

// fail marks task as error and cancels the pending tasks of its flow session.
func (s *Scheduler) fail(ctx context.Context, logger *slog.Logger, task *models.Task, cause error) int64 {
	s.finish(ctx, logger, task, models.TaskUpdate{
		Status:       models.TaskStatusError,
		ErrorMessage: cause.Error(),
	})

	cancelled, err := s.tasks.CancelPending(ctx, task.FlowSessionID, s.now())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to cancel flow session tasks", "task_id", task.TaskID, "error", err)

		return 0
	}

	logger.WarnContext(ctx, "Flow session failed", "task_id", task.TaskID, "cancelled_tasks", cancelled)

	return cancelled
}

func (s *Scheduler) finish(ctx context.Context, logger *slog.Logger, task *models.Task, update models.TaskUpdate) {
	update.At = s.now()

	err := s.tasks.Finish(ctx, task.TaskID, update)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record task status",
			"task_id", task.TaskID,
			"status", update.Status,
			"error", err)
	}
}

func (s *Scheduler) publishFinished(
	ctx context.Context,
	first *models.Task,
	status models.TaskStatus,
	failedTaskID string,
	cancelled int64,
	start time.Time,
) {
	if s.publisher == nil {
		return
	}

	event := events.FlowFinished{
		BaseEvent:     events.NewBaseEvent(events.FlowFinishedEvent),
		FlowSessionID: first.FlowSessionID,
		FlowVersionID: first.FlowVersionID,
		Status:        status,
		FailedTaskID:  failedTaskID,
		Cancelled:     cancelled,
		Duration:      s.now().Sub(start),
	}

	err := s.publisher.Publish(ctx, first.FlowSessionID, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish flow finished event",
			"flow_session_id", first.FlowSessionID,
			"error", err)
	}
}
