package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/planner"
	"github.com/dukex/operion-engine/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diamond = `{
	"actions": [
		{"node_id": "start", "type": "trigger"},
		{"node_id": "a", "type": "action", "plugin_id": "log", "input": {"message": "a"}},
		{"node_id": "b", "type": "action", "plugin_id": "log", "input": {"message": "b"}},
		{"node_id": "c", "type": "action", "plugin_id": "http", "input": {"method": "GET", "url": "https://example.com"}}
	],
	"edges": [
		{"source": "start", "target": "a"},
		{"source": "start", "target": "b"},
		{"source": "a", "target": "c"},
		{"source": "b", "target": "c"}
	]
}`

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestReadFlowVersion(t *testing.T) {
	t.Parallel()

	t.Run("bare definition", func(t *testing.T) {
		t.Parallel()

		flowVersion, err := readFlowVersion(writeFile(t, diamond))
		require.NoError(t, err)
		assert.Equal(t, "dry-run", flowVersion.ID)
		assert.JSONEq(t, diamond, string(flowVersion.FlowDefinition))
	})

	t.Run("flow version document", func(t *testing.T) {
		t.Parallel()

		document := `{"flow_version_id": "fv-1", "flow_id": "flow-1", "flow_definition": ` + diamond + `}`

		flowVersion, err := readFlowVersion(writeFile(t, document))
		require.NoError(t, err)
		assert.Equal(t, "fv-1", flowVersion.ID)
		assert.Equal(t, "flow-1", flowVersion.FlowID)
	})

	t.Run("missing argument", func(t *testing.T) {
		t.Parallel()

		_, err := readFlowVersion("")
		require.ErrorIs(t, err, errMissingFile)
	})
}

func TestDryRun(t *testing.T) {
	t.Parallel()

	flowVersion, err := readFlowVersion(writeFile(t, diamond))
	require.NoError(t, err)

	planned, err := dryRun(flowVersion, models.StageTesting)
	require.NoError(t, err)
	require.Len(t, planned, 3)

	assert.Equal(t, PlannedTask{Order: 1, NodeID: "a", PluginID: "log", Inputs: planned[0].Inputs}, planned[0])
	assert.Equal(t, "b", planned[1].NodeID)
	assert.Equal(t, "c", planned[2].NodeID)
	assert.Equal(t, 3, planned[2].Order)
}

func TestDryRun_Cycle(t *testing.T) {
	t.Parallel()

	cyclic := `{
		"actions": [
			{"node_id": "start", "type": "trigger"},
			{"node_id": "a", "type": "action", "plugin_id": "log"},
			{"node_id": "b", "type": "action", "plugin_id": "log"}
		],
		"edges": [
			{"source": "start", "target": "a"},
			{"source": "a", "target": "b"},
			{"source": "b", "target": "a"}
		]
	}`

	flowVersion, err := readFlowVersion(writeFile(t, cyclic))
	require.NoError(t, err)

	_, err = dryRun(flowVersion, models.StageProduction)
	require.ErrorIs(t, err, planner.ErrCycleDetected)
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, retry.Once(), retryPolicy(0, time.Second, time.Minute))
	assert.Equal(t, retry.Once(), retryPolicy(1, time.Second, time.Minute))

	policy := retryPolicy(3, time.Second, 5*time.Second)
	assert.Equal(t, 3, policy.Attempts)
	assert.Equal(t, retry.Exponential{Initial: time.Second, Max: 5 * time.Second}, policy.Strategy)
}
