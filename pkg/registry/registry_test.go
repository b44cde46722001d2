package registry_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/operion-engine/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoExecutor struct {
	id  string
	err error
}

func (e *echoExecutor) ID() string { return e.id }

func (e *echoExecutor) Execute(_ context.Context, payload any) (any, error) {
	if e.err != nil {
		return nil, e.err
	}

	return payload, nil
}

func TestRegistry_Execute(t *testing.T) {
	t.Parallel()

	r := registry.New(slog.New(slog.DiscardHandler))
	r.Register(&echoExecutor{id: "echo"})

	result, err := r.Execute(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", result)

	assert.Equal(t, []string{"echo"}, r.IDs())
}

func TestRegistry_UnknownPlugin(t *testing.T) {
	t.Parallel()

	r := registry.New(slog.New(slog.DiscardHandler))

	_, err := r.Execute(context.Background(), "missing", nil)
	require.ErrorIs(t, err, registry.ErrUnknownPlugin)

	_, err = r.Execute(context.Background(), "", nil)
	require.ErrorIs(t, err, registry.ErrUnknownPlugin)
}

func TestRegistry_Fallback(t *testing.T) {
	t.Parallel()

	r := registry.New(slog.New(slog.DiscardHandler), registry.WithFallback(&echoExecutor{id: "noop"}))

	result, err := r.Execute(context.Background(), "slack", "payload")
	require.NoError(t, err)
	assert.Equal(t, "payload", result)
}

func TestRegistry_ExecutionError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	r := registry.New(slog.New(slog.DiscardHandler))
	r.Register(&echoExecutor{id: "broken", err: boom})

	_, err := r.Execute(context.Background(), "broken", nil)
	require.ErrorIs(t, err, boom)

	var execErr *registry.ExecutionError

	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "broken", execErr.PluginID)
}

func TestValidatePayload(t *testing.T) {
	t.Parallel()

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string"},
		},
		"required": []string{"url"},
	}

	require.NoError(t, registry.ValidatePayload(schema, map[string]any{"url": "https://example.com"}))
	require.ErrorIs(t, registry.ValidatePayload(schema, map[string]any{"url": 1.0}), registry.ErrInvalidPayload)
	require.ErrorIs(t, registry.ValidatePayload(schema, map[string]any{}), registry.ErrInvalidPayload)
}
