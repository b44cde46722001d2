package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/planner"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

var errMissingFile = errors.New("a flow file argument is required")

// PlannedTask is the dry-run view of one planned task.
type PlannedTask struct {
	Order    int             `json:"order"`
	NodeID   string          `json:"node_id"`
	PluginID string          `json:"plugin_id"`
	Inputs   json.RawMessage `json:"inputs,omitempty"`
}

func NewPlanCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Print the tasks a flow version would run, without persisting them",
		ArgsUsage: "<flow-version.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "stage",
				Usage: "Stage of the simulated trigger (testing, production)",
				Value: string(models.StageProduction),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			flowVersion, err := readFlowVersion(command.Args().First())
			if err != nil {
				return err
			}

			planned, err := dryRun(flowVersion, models.Stage(command.String("stage")))
			if err != nil {
				return err
			}

			return writeJSON(command.Root().Writer, planned)
		},
	}
}

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check that a flow definition decodes and has an acyclic plan",
		ArgsUsage: "<flow.json>",
		Action: func(_ context.Context, command *cli.Command) error {
			flowVersion, err := readFlowVersion(command.Args().First())
			if err != nil {
				return err
			}

			workflow, err := planner.Decode(flowVersion.FlowDefinition)
			if err != nil {
				return err
			}

			actions, err := planner.Order(workflow)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(command.Root().Writer, "ok: trigger %s, %d actions\n",
				workflow.TriggerNode().NodeID, len(actions))

			return err
		},
	}
}

// readFlowVersion accepts either a flow version document or a bare flow definition.
func readFlowVersion(path string) (*models.FlowVersion, error) {
	if path == "" {
		return nil, errMissingFile
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var flowVersion models.FlowVersion

	err = json.Unmarshal(raw, &flowVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if len(flowVersion.FlowDefinition) == 0 {
		flowVersion.FlowDefinition = raw
	}

	if flowVersion.ID == "" {
		flowVersion.ID = "dry-run"
	}

	return &flowVersion, nil
}

func dryRun(flowVersion *models.FlowVersion, stage models.Stage) ([]PlannedTask, error) {
	trigger := &models.Task{
		TaskID:           uuid.NewString(),
		AccountID:        flowVersion.AccountID,
		FlowID:           flowVersion.FlowID,
		FlowVersionID:    flowVersion.ID,
		TriggerSessionID: uuid.NewString(),
		FlowSessionID:    uuid.NewString(),
		Stage:            stage,
		IsTrigger:        true,
	}

	tasks, err := planner.Plan(trigger, flowVersion)
	if err != nil {
		return nil, err
	}

	planned := make([]PlannedTask, 0, len(tasks))
	for _, task := range tasks {
		planned = append(planned, PlannedTask{
			Order:    task.ProcessingOrder,
			NodeID:   task.NodeID,
			PluginID: task.Plugin(),
			Inputs:   task.Config.Inputs,
		})
	}

	return planned, nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}
