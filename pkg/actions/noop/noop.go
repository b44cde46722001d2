// Package noop provides the executor used for plugin ids without a registered implementation.
package noop

import (
	"context"
	"log/slog"

	"github.com/dukex/operion-engine/pkg/registry"
)

const PluginID = "noop"

type Action struct {
	logger *slog.Logger
}

var _ registry.Executor = (*Action)(nil)

func NewAction(logger *slog.Logger) *Action {
	return &Action{logger: logger.With("action_type", PluginID)}
}

func (*Action) ID() string {
	return PluginID
}

// Execute accepts any payload and completes with a nil result.
func (a *Action) Execute(ctx context.Context, payload any) (any, error) {
	a.logger.DebugContext(ctx, "Skipping payload", "payload", payload)

	return nil, nil
}
