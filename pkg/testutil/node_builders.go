// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"encoding/json"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/google/uuid"
)

// CreateTestAction creates an action node with default values that can be overridden.
func CreateTestAction(nodeID string, overrides ...func(*models.Action)) *models.Action {
	plugin := "log"
	action := &models.Action{
		NodeID:   nodeID,
		Type:     models.PluginTypeAction,
		PluginID: &plugin,
		Input:    json.RawMessage(`{"message": "test"}`),
	}

	for _, override := range overrides {
		override(action)
	}

	return action
}

// WithTrigger configures the node as the workflow trigger.
func WithTrigger() func(*models.Action) {
	return func(a *models.Action) {
		a.Type = models.PluginTypeTrigger
		a.PluginID = nil
		a.Input = nil
	}
}

// WithPlugin sets the executor plugin of the node.
func WithPlugin(pluginID string) func(*models.Action) {
	return func(a *models.Action) {
		a.PluginID = &pluginID
	}
}

// WithInput sets the raw input template of the node.
func WithInput(input string) func(*models.Action) {
	return func(a *models.Action) {
		a.Input = json.RawMessage(input)
	}
}

// Edge links source to target.
func Edge(source, target string) *models.Edge {
	return &models.Edge{Source: source, Target: target}
}

// CreateTestDefinition encodes a workflow made of actions and edges.
func CreateTestDefinition(actions []*models.Action, edges ...*models.Edge) json.RawMessage {
	definition, err := json.Marshal(models.Workflow{Actions: actions, Edges: edges})
	if err != nil {
		panic(err)
	}

	return definition
}

// CreateTestFlowVersion creates a flow version with default values that can be overridden.
func CreateTestFlowVersion(definition json.RawMessage, overrides ...func(*models.FlowVersion)) *models.FlowVersion {
	flowVersion := &models.FlowVersion{
		ID:             uuid.New().String(),
		FlowID:         "flow-1",
		AccountID:      "account-1",
		Name:           "v1",
		FlowDefinition: definition,
	}

	for _, override := range overrides {
		override(flowVersion)
	}

	return flowVersion
}
