// Package events defines the notifications exchanged over the event bus.
package events

import (
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "operion.tasks"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// TaskCreatedEvent announces new pending work and wakes idle schedulers.
	TaskCreatedEvent EventType = "task.created"

	// FlowFinishedEvent is published once every task of a flow session is terminal.
	FlowFinishedEvent EventType = "flow.finished"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

type TaskCreated struct {
	BaseEvent

	TaskID        string       `json:"task_id"`
	FlowSessionID string       `json:"flow_session_id"`
	Stage         models.Stage `json:"stage"`
}

func (TaskCreated) GetType() EventType {
	return TaskCreatedEvent
}

func NewTaskCreated(task *models.Task) TaskCreated {
	return TaskCreated{
		BaseEvent:     NewBaseEvent(TaskCreatedEvent),
		TaskID:        task.TaskID,
		FlowSessionID: task.FlowSessionID,
		Stage:         task.Stage,
	}
}

type FlowFinished struct {
	BaseEvent

	FlowSessionID string            `json:"flow_session_id"`
	FlowVersionID string            `json:"flow_version_id"`
	Status        models.TaskStatus `json:"status"`
	FailedTaskID  string            `json:"failed_task_id,omitempty"`
	Cancelled     int64             `json:"cancelled"`
	Duration      time.Duration     `json:"duration"`
}

func (FlowFinished) GetType() EventType {
	return FlowFinishedEvent
}
