package web

import (
	"encoding/json"

	"github.com/dukex/operion-engine/pkg/models"
)

// TriggerRequest is the body of POST /flows/:flowId/versions/:versionId/trigger.
type TriggerRequest struct {
	AccountID string          `json:"account_id"           validate:"required"`
	Stage     models.Stage    `json:"stage,omitempty"      validate:"omitempty,oneof=testing production"`
	TriggerID string          `json:"trigger_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type TriggerResponse struct {
	TaskID           string       `json:"task_id"`
	FlowSessionID    string       `json:"flow_session_id"`
	TriggerSessionID string       `json:"trigger_session_id"`
	Stage            models.Stage `json:"stage"`
}

// SaveFlowVersionRequest is the body of PUT /flows/:flowId/versions/:versionId.
type SaveFlowVersionRequest struct {
	AccountID      string          `json:"account_id"      validate:"required"`
	Name           string          `json:"name"            validate:"required"`
	FlowDefinition json.RawMessage `json:"flow_definition" validate:"required"`
	Published      bool            `json:"published"`
}

// SessionStatus summarizes the tasks of a flow session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

type SessionResponse struct {
	FlowSessionID string         `json:"flow_session_id"`
	Status        SessionStatus  `json:"status"`
	Tasks         []*models.Task `json:"tasks"`
}

// SummarizeSession derives a session status from its tasks: failed once any task is in
// error, completed once every task is terminal, running otherwise.
func SummarizeSession(tasks []*models.Task) SessionStatus {
	status := SessionCompleted

	for _, task := range tasks {
		if task.TaskStatus == models.TaskStatusError {
			return SessionFailed
		}

		if !task.TaskStatus.IsTerminal() {
			status = SessionRunning
		}
	}

	return status
}
