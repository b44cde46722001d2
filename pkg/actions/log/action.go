package log

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/operion-engine/pkg/registry"
)

const PluginID = "log"

// Action writes the payload message to the engine log at the requested level.
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

// Execute logs payload.message and returns it back as {"message": ...}.
func (a *Action) Execute(ctx context.Context, payload any) (any, error) {
	err := registry.ValidatePayload(Schema(), payload)
	if err != nil {
		return nil, err
	}

	fields, _ := payload.(map[string]any)
	message, _ := fields["message"].(string)
	level, _ := fields["level"].(string)

	a.logger.Log(ctx, parseLevel(level), message)

	return map[string]any{"message": message}, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Schema returns the JSON schema for the log payload.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Supports templating for dynamic content.",
				"examples": []string{
					"Workflow step completed successfully",
					"Fetched user {{ load_user.result.id }}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
		"required": []string{"message"},
	}
}
