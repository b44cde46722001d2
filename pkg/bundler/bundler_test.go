package bundler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/operion-engine/pkg/bundler"
	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence/memory"
	"github.com/dukex/operion-engine/pkg/secrets"
	"github.com/dukex/operion-engine/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAccounts struct {
	accounts []*models.AuthAccount
	err      error
}

func (s *staticAccounts) Accounts(_ context.Context, _ string) ([]*models.AuthAccount, error) {
	return s.accounts, s.err
}

func slackAccounts() *staticAccounts {
	return &staticAccounts{accounts: []*models.AuthAccount{
		{AccountID: "account-1", Slug: "slack", AccessToken: "abc"},
	}}
}

func newTask(variables, inputs string) *models.Task {
	task := &models.Task{
		TaskID:        "task-1",
		AccountID:     "account-1",
		FlowSessionID: "session-1",
		NodeID:        "notify",
	}

	if variables != "" {
		task.Config.Variables = json.RawMessage(variables)
	}

	if inputs != "" {
		task.Config.Inputs = json.RawMessage(inputs)
	}

	return task
}

func newBundler(opts bundler.Options) *bundler.Bundler {
	return bundler.New(slog.New(slog.DiscardHandler), template.NewExprRenderer(), opts.Sources()...)
}

func TestBundle_TwoPhaseRendering(t *testing.T) {
	b := newBundler(bundler.Options{Accounts: slackAccounts()})

	task := newTask(
		`{"token": "{{ accounts.slack.access_token }}"}`,
		`{"token": "{{ variables.token }}"}`,
	)

	payload, err := b.Bundle(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"token": "abc"}, payload)
}

func TestBundle_StringBlobIsTemplateText(t *testing.T) {
	b := newBundler(bundler.Options{Accounts: slackAccounts()})

	task := newTask(
		`"{\"token\": \"{{ accounts.slack.access_token }}\"}"`,
		`"{\"auth\": \"Bearer {{ variables.token }}\"}"`,
	)

	payload, err := b.Bundle(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"auth": "Bearer abc"}, payload)
}

func TestBundle_InputsWithoutVariables(t *testing.T) {
	b := newBundler(bundler.Options{Accounts: slackAccounts()})

	payload, err := b.Bundle(context.Background(), newTask("", `{"method": "GET", "url": "https://example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"method": "GET", "url": "https://example.com"}, payload)
}

func TestBundle_Errors(t *testing.T) {
	tests := []struct {
		name     string
		task     *models.Task
		expected error
	}{
		{"missing inputs", newTask(`{"a": "1"}`, ""), bundler.ErrMissingInputs},
		{"null inputs", newTask("", "null"), bundler.ErrMissingInputs},
		{"bad variables template", newTask(`{"a": "{{ accounts.nope.token }}"}`, `{}`), bundler.ErrTemplate},
		{"bad inputs template", newTask("", `{"a": "{{ unclosed"}`), bundler.ErrTemplate},
		{"inputs not json", newTask("", `"not json {{ accounts.slack.access_token }}"`), bundler.ErrTemplate},
	}

	b := newBundler(bundler.Options{Accounts: slackAccounts()})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Bundle(context.Background(), tt.task)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)

			var bundleErr *bundler.BundleError

			require.True(t, errors.As(err, &bundleErr))
			assert.Equal(t, "task-1", bundleErr.TaskID)
		})
	}
}

func TestBundle_AccountsFailure(t *testing.T) {
	b := newBundler(bundler.Options{Accounts: &staticAccounts{err: errors.New("db down")}})

	_, err := b.Bundle(context.Background(), newTask("", `{}`))
	require.ErrorIs(t, err, bundler.ErrContextSource)
}

func TestBundle_SecretsAndResults(t *testing.T) {
	ctx := context.Background()

	secretStore := secrets.NewMemoryStore()
	require.NoError(t, secretStore.Set(ctx, "account-1", "api_key", "k-123"))

	store := memory.NewPersistence()
	tasks := store.TaskRepository()

	loadUser := &models.Task{
		TaskID:          "load_user",
		FlowSessionID:   "session-1",
		NodeID:          "load_user",
		TaskStatus:      models.TaskStatusPending,
		ProcessingOrder: 1,
	}
	require.NoError(t, tasks.Insert(ctx, []*models.Task{loadUser}))

	_, err := tasks.Claim(ctx, "load_user", loadUser.CreatedAt)
	require.NoError(t, err)
	require.NoError(t, tasks.Finish(ctx, "load_user", models.TaskUpdate{
		Status: models.TaskStatusCompleted,
		Result: json.RawMessage(`{"id": 42}`),
	}))

	b := newBundler(bundler.Options{
		Accounts: slackAccounts(),
		Secrets:  secretStore,
		Results:  tasks,
	})

	payload, err := b.Bundle(ctx, newTask("", `{"key": "{{ secrets.api_key }}", "id": {{ load_user.result.id }}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "k-123", "id": 42.0}, payload)
}

func TestOptions_Sources(t *testing.T) {
	assert.Empty(t, bundler.Options{}.Sources())

	sources := bundler.Options{
		Accounts: slackAccounts(),
		Secrets:  secrets.NewMemoryStore(),
		Results:  memory.NewPersistence().TaskRepository(),
	}.Sources()

	names := make([]string, 0, len(sources))
	for _, source := range sources {
		names = append(names, source.Name())
	}

	assert.Equal(t, []string{"accounts", "secrets", "results"}, names)
}
