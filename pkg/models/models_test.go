package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_Transitions(t *testing.T) {
	tests := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{TaskStatusPending, TaskStatusProcessing, true},
		{TaskStatusPending, TaskStatusCancelled, true},
		{TaskStatusProcessing, TaskStatusCompleted, true},
		{TaskStatusProcessing, TaskStatusError, true},
		{TaskStatusProcessing, TaskStatusCancelled, false},
		{TaskStatusProcessing, TaskStatusPending, false},
		{TaskStatusCompleted, TaskStatusCancelled, false},
		{TaskStatusError, TaskStatusProcessing, false},
		{TaskStatusCancelled, TaskStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusProcessing.IsTerminal())
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusError.IsTerminal())
	assert.True(t, TaskStatusCancelled.IsTerminal())
}

func TestWorkflow_DecodeAndValidate(t *testing.T) {
	definition := `{
		"actions": [
			{"node_id": "trigger", "type": "trigger"},
			{"node_id": "call", "type": "action", "plugin_id": "http", "input": {"method": "GET", "url": "https://example.com"}}
		],
		"edges": [{"source": "trigger", "target": "call"}]
	}`

	var workflow Workflow

	require.NoError(t, json.Unmarshal([]byte(definition), &workflow))

	validate := validator.New(validator.WithRequiredStructEnabled())
	require.NoError(t, validate.Struct(&workflow))

	trigger := workflow.TriggerNode()
	require.NotNil(t, trigger)
	assert.Equal(t, "trigger", trigger.NodeID)
	assert.Nil(t, trigger.PluginID)
	assert.Equal(t, "http", *workflow.Actions[1].PluginID)
	assert.JSONEq(t, `{"method": "GET", "url": "https://example.com"}`, string(workflow.Actions[1].Input))
}

func TestWorkflow_Validation_UnknownType(t *testing.T) {
	workflow := &Workflow{
		Actions: []*Action{{NodeID: "a", Type: "webhook"}},
	}

	err := validator.New().Struct(workflow)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors

	require.True(t, errors.As(err, &validationErrors))
	assert.Equal(t, "oneof", validationErrors[0].Tag())
}

func TestWorkflow_TriggerNode_Missing(t *testing.T) {
	workflow := &Workflow{
		Actions: []*Action{{NodeID: "a", Type: PluginTypeAction}},
	}

	assert.Nil(t, workflow.TriggerNode())
}

func TestTask_Plugin(t *testing.T) {
	plugin := "http"

	assert.Equal(t, "http", (&Task{PluginID: &plugin}).Plugin())
	assert.Empty(t, (&Task{}).Plugin())
}

func TestAuthAccount_Expired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	soon := now.Add(30 * time.Second)
	later := now.Add(time.Hour)

	assert.False(t, (&AuthAccount{}).Expired(now, time.Minute))
	assert.True(t, (&AuthAccount{ExpiresAt: &past}).Expired(now, 0))
	assert.True(t, (&AuthAccount{ExpiresAt: &soon}).Expired(now, time.Minute))
	assert.False(t, (&AuthAccount{ExpiresAt: &later}).Expired(now, time.Minute))
}

func TestSchedule_NextAfter(t *testing.T) {
	schedule := &Schedule{CronExpression: "*/5 * * * *"}
	reference := time.Date(2025, 1, 1, 12, 2, 0, 0, time.UTC)

	next, err := schedule.NextAfter(reference)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 5, 0, 0, time.UTC), next)

	_, err = (&Schedule{CronExpression: "not a cron"}).NextAfter(reference)
	require.ErrorIs(t, err, ErrInvalidCronExpression)
}
