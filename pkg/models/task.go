package models

import (
	"encoding/json"
	"time"
)

// Stage is the deployment lane a task belongs to.
type Stage string

const (
	StageTesting    Stage = "testing"
	StageProduction Stage = "production"
)

// PollOrder is the order in which the scheduler looks for pending work.
var PollOrder = []Stage{StageTesting, StageProduction}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"    // Waiting to be claimed
	TaskStatusProcessing TaskStatus = "processing" // Claimed by a scheduler
	TaskStatusCompleted  TaskStatus = "completed"  // Terminal, success
	TaskStatusError      TaskStatus = "error"      // Terminal, failure
	TaskStatusCancelled  TaskStatus = "cancelled"  // Terminal, a sibling failed
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusProcessing, TaskStatusCancelled},
	TaskStatusProcessing: {TaskStatusCompleted, TaskStatusError},
}

// IsTerminal reports whether no further transition is possible from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError || s == TaskStatusCancelled
}

// CanTransitionTo reports whether moving from s to next keeps the status monotonic.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// TaskConfig carries the unrendered templates copied from the action.
type TaskConfig struct {
	Variables json.RawMessage `json:"variables,omitempty"`
	Inputs    json.RawMessage `json:"inputs,omitempty"`
}

// Task is the unit of execution and persistence.
type Task struct {
	TaskID           string     `json:"task_id"`
	AccountID        string     `json:"account_id"          validate:"required"`
	FlowID           string     `json:"flow_id"             validate:"required"`
	FlowVersionID    string     `json:"flow_version_id"     validate:"required"`
	FlowVersionName  string     `json:"flow_version_name"`
	TriggerID        string     `json:"trigger_id"`
	TriggerSessionID string     `json:"trigger_session_id"`
	FlowSessionID    string     `json:"flow_session_id"     validate:"required"`
	NodeID           string     `json:"node_id"`
	PluginID         *string    `json:"plugin_id,omitempty"`
	Stage            Stage      `json:"stage"               validate:"required,oneof=testing production"`
	TaskStatus       TaskStatus `json:"task_status"`
	IsTrigger        bool       `json:"is_trigger"`
	ProcessingOrder  int        `json:"processing_order"`
	Config           TaskConfig `json:"config"`

	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
}

// Plugin returns the plugin id or an empty string for tasks without one.
func (t *Task) Plugin() string {
	if t.PluginID == nil {
		return ""
	}

	return *t.PluginID
}

// TaskUpdate is a status transition write. Result and ErrorMessage are optional.
type TaskUpdate struct {
	Status       TaskStatus
	Result       json.RawMessage
	ErrorMessage string
	At           time.Time
}
