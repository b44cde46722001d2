// Package models defines the core domain models for flow planning and task execution.
package models

import (
	"encoding/json"
	"time"
)

// PluginType tags an action node as the flow's entry point or as an ordinary action.
type PluginType string

const (
	PluginTypeTrigger PluginType = "trigger" // Entry point, exactly one per workflow
	PluginTypeAction  PluginType = "action"  // Anything executed by a plugin executor
)

// Workflow is the graph definition stored in a flow version. It is never mutated
// after being decoded.
type Workflow struct {
	Actions []*Action `json:"actions" validate:"required,min=1,dive,required"`
	Edges   []*Edge   `json:"edges"   validate:"dive,required"`
}

// Action is a node of the workflow graph.
type Action struct {
	NodeID    string          `json:"node_id"             validate:"required"`
	Type      PluginType      `json:"type"                validate:"required,oneof=trigger action"`
	PluginID  *string         `json:"plugin_id,omitempty"`
	Label     string          `json:"label,omitempty"`
	Variables json.RawMessage `json:"variables,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// IsTrigger reports whether the node is the workflow entry point.
func (a *Action) IsTrigger() bool {
	return a.Type == PluginTypeTrigger
}

// Edge is a directed source -> target relation between two node ids.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// FlowVersion is an immutable snapshot of a flow's definition.
type FlowVersion struct {
	ID             string          `json:"flow_version_id"`
	FlowID         string          `json:"flow_id"`
	AccountID      string          `json:"account_id"`
	Name           string          `json:"flow_version_name"`
	FlowDefinition json.RawMessage `json:"flow_definition"`
	Published      bool            `json:"published"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TriggerNode returns the single trigger action of the workflow, or nil when absent.
func (w *Workflow) TriggerNode() *Action {
	for _, action := range w.Actions {
		if action != nil && action.IsTrigger() {
			return action
		}
	}

	return nil
}
