package noop_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/operion-engine/pkg/actions/noop"
	"github.com/dukex/operion-engine/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop_AsFallback(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	r := registry.New(logger, registry.WithFallback(noop.NewAction(logger)))

	result, err := r.Execute(context.Background(), "slack", map[string]any{"channel": "#general"})
	require.NoError(t, err)
	assert.Nil(t, result)
}
