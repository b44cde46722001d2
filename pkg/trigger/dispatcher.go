// Package trigger turns incoming trigger requests into persisted trigger tasks.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/operion-engine/pkg/eventbus"
	"github.com/dukex/operion-engine/pkg/events"
	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/dukex/operion-engine/pkg/planner"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var (
	// ErrInvalidRequest is returned when a FireRequest fails validation.
	ErrInvalidRequest = errors.New("invalid trigger request")

	// ErrAccountMismatch is returned when the flow version belongs to another account.
	ErrAccountMismatch = errors.New("flow version belongs to another account")
)

// FireRequest starts one run of a flow version.
type FireRequest struct {
	AccountID     string          `json:"account_id"      validate:"required"`
	FlowID        string          `json:"flow_id"         validate:"required"`
	FlowVersionID string          `json:"flow_version_id" validate:"required"`
	Stage         models.Stage    `json:"stage"           validate:"omitempty,oneof=testing production"`
	TriggerID     string          `json:"trigger_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Notifier wakes a scheduler.
type Notifier interface {
	Notify()
}

type Option func(*Dispatcher)

// WithPublisher also announces created trigger tasks on the event bus.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(d *Dispatcher) {
		d.publisher = publisher
	}
}

type Dispatcher struct {
	logger       *slog.Logger
	flowVersions persistence.FlowVersionRepository
	tasks        persistence.TaskRepository
	notifier     Notifier
	publisher    eventbus.EventPublisher
}

func NewDispatcher(
	logger *slog.Logger,
	flowVersions persistence.FlowVersionRepository,
	tasks persistence.TaskRepository,
	notifier Notifier,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		logger:       logger.With("module", "trigger_dispatcher"),
		flowVersions: flowVersions,
		tasks:        tasks,
		notifier:     notifier,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Fire persists a pending trigger task for a new flow session and wakes the scheduler.
// The request payload is kept as the trigger task's inputs.
func (d *Dispatcher) Fire(ctx context.Context, req FireRequest) (*models.Task, error) {
	err := validate.Struct(&req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidRequest)
	}

	flowVersion, err := d.flowVersions.ByID(ctx, req.FlowVersionID)
	if err != nil {
		return nil, err
	}

	if flowVersion.AccountID != "" && flowVersion.AccountID != req.AccountID {
		return nil, ErrAccountMismatch
	}

	if flowVersion.FlowID != "" && flowVersion.FlowID != req.FlowID {
		return nil, fmt.Errorf("%w: flow version %s does not belong to flow %s", ErrInvalidRequest, req.FlowVersionID, req.FlowID)
	}

	stage := req.Stage
	if stage == "" {
		stage = models.StageProduction
	}

	triggerID := req.TriggerID
	if triggerID == "" {
		triggerID = uuid.NewString()
	}

	task := &models.Task{
		TaskID:           uuid.NewString(),
		AccountID:        req.AccountID,
		FlowID:           req.FlowID,
		FlowVersionID:    req.FlowVersionID,
		FlowVersionName:  flowVersion.Name,
		TriggerID:        triggerID,
		TriggerSessionID: uuid.NewString(),
		FlowSessionID:    uuid.NewString(),
		Stage:            stage,
		TaskStatus:       models.TaskStatusPending,
		IsTrigger:        true,
		ProcessingOrder:  0,
		Config:           models.TaskConfig{Inputs: req.Payload},
	}

	// Definition errors are recorded on the trigger task once it is planned.
	if workflow, err := planner.Decode(flowVersion.FlowDefinition); err == nil {
		if node := workflow.TriggerNode(); node != nil {
			task.NodeID = node.NodeID
			task.PluginID = node.PluginID
		}
	}

	err = d.tasks.Insert(ctx, []*models.Task{task})
	if err != nil {
		return nil, fmt.Errorf("failed to insert trigger task: %w", err)
	}

	d.logger.InfoContext(ctx, "Trigger task created",
		"task_id", task.TaskID,
		"flow_session_id", task.FlowSessionID,
		"flow_version_id", task.FlowVersionID,
		"stage", task.Stage)

	d.notifier.Notify()

	if d.publisher != nil {
		err = d.publisher.Publish(ctx, task.FlowSessionID, events.NewTaskCreated(task))
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to publish task created event", "task_id", task.TaskID, "error", err)
		}
	}

	return task, nil
}
