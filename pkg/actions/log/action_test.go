package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	logaction "github.com/dukex/operion-engine/pkg/actions/log"
	"github.com/dukex/operion-engine/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Execute(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	action := logaction.NewAction(logger)

	result, err := action.Execute(context.Background(), map[string]any{
		"message": "user 42 loaded",
		"level":   "warn",
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"message": "user 42 loaded"}, result)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg="user 42 loaded"`)
	assert.Contains(t, buf.String(), "action_type=log")
}

func TestAction_Execute_InvalidPayload(t *testing.T) {
	t.Parallel()

	action := logaction.NewAction(slog.New(slog.DiscardHandler))

	_, err := action.Execute(context.Background(), map[string]any{"level": "info"})
	require.ErrorIs(t, err, registry.ErrInvalidPayload)

	_, err = action.Execute(context.Background(), map[string]any{"message": "x", "level": "trace"})
	require.ErrorIs(t, err, registry.ErrInvalidPayload)
}
