// Package planner compiles a flow version's workflow graph into the ordered list of
// tasks that a trigger starts.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Planner loads flow versions and persists the plans it produces.
type Planner struct {
	logger       *slog.Logger
	flowVersions persistence.FlowVersionRepository
	tasks        persistence.TaskRepository
}

func New(
	logger *slog.Logger,
	flowVersions persistence.FlowVersionRepository,
	tasks persistence.TaskRepository,
) *Planner {
	return &Planner{
		logger:       logger.With("module", "planner"),
		flowVersions: flowVersions,
		tasks:        tasks,
	}
}

// ProcessTrigger fetches the trigger's flow version, plans it and inserts the planned
// tasks in one batch. It returns the inserted tasks.
func (p *Planner) ProcessTrigger(ctx context.Context, trigger *models.Task) ([]*models.Task, error) {
	if !trigger.IsTrigger {
		return nil, newPlanError("ProcessTrigger", trigger.FlowVersionID, ErrNotTrigger)
	}

	flowVersion, err := p.flowVersions.ByID(ctx, trigger.FlowVersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch flow version %s: %w", trigger.FlowVersionID, err)
	}

	tasks, err := Plan(trigger, flowVersion)
	if err != nil {
		return nil, err
	}

	err = p.tasks.Insert(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to insert planned tasks: %w", err)
	}

	p.logger.InfoContext(ctx, "execution plan created",
		"flow_session_id", trigger.FlowSessionID,
		"flow_version_id", flowVersion.ID,
		"tasks", len(tasks))

	return tasks, nil
}

// Decode parses and validates a flow definition.
func Decode(definition json.RawMessage) (*models.Workflow, error) {
	var workflow models.Workflow

	err := json.Unmarshal(definition, &workflow)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWorkflow, err)
	}

	err = validate.Struct(&workflow)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWorkflow, err)
	}

	seen := make(map[string]struct{}, len(workflow.Actions))
	triggers := 0

	for _, action := range workflow.Actions {
		if _, exists := seen[action.NodeID]; exists {
			return nil, fmt.Errorf("%w: duplicate node id %q", ErrMalformedWorkflow, action.NodeID)
		}

		seen[action.NodeID] = struct{}{}

		if action.IsTrigger() {
			triggers++
		}
	}

	if triggers > 1 {
		return nil, fmt.Errorf("%w: %d trigger nodes", ErrMalformedWorkflow, triggers)
	}

	return &workflow, nil
}

// Plan returns one pending task per action reachable from the trigger, in execution order.
// The trigger itself is not part of the plan.
func Plan(trigger *models.Task, flowVersion *models.FlowVersion) ([]*models.Task, error) {
	workflow, err := Decode(flowVersion.FlowDefinition)
	if err != nil {
		return nil, newPlanError("Plan", flowVersion.ID, err)
	}

	actions, err := Order(workflow)
	if err != nil {
		return nil, newPlanError("Plan", flowVersion.ID, err)
	}

	versionName := trigger.FlowVersionName
	if versionName == "" {
		versionName = flowVersion.Name
	}

	now := time.Now().UTC()
	tasks := make([]*models.Task, 0, len(actions))

	for index, action := range actions {
		tasks = append(tasks, &models.Task{
			TaskID:           uuid.NewString(),
			AccountID:        trigger.AccountID,
			FlowID:           trigger.FlowID,
			FlowVersionID:    trigger.FlowVersionID,
			FlowVersionName:  versionName,
			TriggerID:        trigger.TriggerID,
			TriggerSessionID: trigger.TriggerSessionID,
			FlowSessionID:    trigger.FlowSessionID,
			NodeID:           action.NodeID,
			PluginID:         action.PluginID,
			Stage:            trigger.Stage,
			TaskStatus:       models.TaskStatusPending,
			IsTrigger:        false,
			ProcessingOrder:  index + 1,
			Config: models.TaskConfig{
				Variables: action.Variables,
				Inputs:    action.Input,
			},
			CreatedAt: now,
		})
	}

	return tasks, nil
}

// Order walks the graph breadth-first from the trigger's successors, following each
// successor list in edge declaration order. A visited set keyed by node id emits each node
// once, at its first visit; later fan-in arrivals are skipped. Edges into the trigger and
// edges naming unknown nodes are ignored. A cycle among reachable nodes is ErrCycleDetected.
func Order(workflow *models.Workflow) ([]*models.Action, error) {
	trigger := workflow.TriggerNode()
	if trigger == nil {
		return nil, ErrTriggerNotFound
	}

	nodes := make(map[string]*models.Action, len(workflow.Actions))
	for _, action := range workflow.Actions {
		nodes[action.NodeID] = action
	}

	graph := make(map[string][]string)

	for _, edge := range workflow.Edges {
		if _, ok := nodes[edge.Source]; !ok {
			continue
		}

		if _, ok := nodes[edge.Target]; !ok || edge.Target == trigger.NodeID {
			continue
		}

		graph[edge.Source] = append(graph[edge.Source], edge.Target)
	}

	if cycle := findCycle(graph, trigger.NodeID); cycle != "" {
		return nil, fmt.Errorf("%w: node %s is its own descendant", ErrCycleDetected, cycle)
	}

	visited := map[string]struct{}{trigger.NodeID: {}}
	order := make([]*models.Action, 0, len(nodes))
	queue := []string{trigger.NodeID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range graph[current] {
			if _, seen := visited[next]; seen {
				continue
			}

			visited[next] = struct{}{}
			order = append(order, nodes[next])
			queue = append(queue, next)
		}
	}

	return order, nil
}

// findCycle returns a node on a cycle reachable from root, or "" when there is none.
func findCycle(graph map[string][]string, root string) string {
	const (
		unseen = iota
		open
		done
	)

	state := map[string]int{}

	var visit func(node string) string

	visit = func(node string) string {
		state[node] = open

		for _, next := range graph[node] {
			switch state[next] {
			case open:
				return next
			case unseen:
				if cycle := visit(next); cycle != "" {
					return cycle
				}
			}
		}

		state[node] = done

		return ""
	}

	return visit(root)
}
