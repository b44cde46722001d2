// Package bundler produces the concrete payload of a task by rendering its variables and
// inputs templates against a context of accounts, secrets and earlier results.
package bundler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/template"
)

type Bundler struct {
	logger   *slog.Logger
	renderer template.Renderer
	sources  []ContextSource
}

func New(logger *slog.Logger, renderer template.Renderer, sources ...ContextSource) *Bundler {
	return &Bundler{
		logger:   logger.With("module", "bundler"),
		renderer: renderer,
		sources:  sources,
	}
}

// Bundle renders the task's variables (if any) and then its inputs. Rendered variables
// are visible to the inputs template under "variables". The rendered inputs must be JSON.
func (b *Bundler) Bundle(ctx context.Context, task *models.Task) (any, error) {
	data := make(map[string]any)

	for _, source := range b.sources {
		err := source.Contribute(ctx, task, data)
		if err != nil {
			return nil, newBundleError("Bundle", task.TaskID,
				fmt.Errorf("%w: %s: %w", ErrContextSource, source.Name(), err))
		}
	}

	if present(task.Config.Variables) {
		rendered, err := b.renderer.Render(template.Source(task.Config.Variables), data)
		if err != nil {
			return nil, newBundleError("RenderVariables", task.TaskID, fmt.Errorf("%w: %w", ErrTemplate, err))
		}

		data["variables"] = template.Value(rendered)
	}

	if !present(task.Config.Inputs) {
		return nil, newBundleError("RenderInputs", task.TaskID, ErrMissingInputs)
	}

	rendered, err := b.renderer.Render(template.Source(task.Config.Inputs), data)
	if err != nil {
		return nil, newBundleError("RenderInputs", task.TaskID, fmt.Errorf("%w: %w", ErrTemplate, err))
	}

	var payload any

	err = json.Unmarshal([]byte(rendered), &payload)
	if err != nil {
		return nil, newBundleError("RenderInputs", task.TaskID,
			fmt.Errorf("%w: rendered inputs are not valid JSON: %w", ErrTemplate, err))
	}

	b.logger.DebugContext(ctx, "task bundled", "task_id", task.TaskID, "node_id", task.NodeID)

	return payload, nil
}

func present(blob json.RawMessage) bool {
	trimmed := bytes.TrimSpace(blob)

	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
