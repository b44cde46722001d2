package bundler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/operion-engine/pkg/accounts"
	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/dukex/operion-engine/pkg/secrets"
	"github.com/dukex/operion-engine/pkg/template"
)

// ContextSource adds entries to the rendering context of a task.
type ContextSource interface {
	Name() string
	Contribute(ctx context.Context, task *models.Task, data map[string]any) error
}

// Options selects the context sources of a bundler.
type Options struct {
	Accounts accounts.Provider
	Secrets  secrets.Store
	Results  persistence.TaskRepository
}

// Sources returns the sources enabled in opts: accounts first, then secrets and results.
func (o Options) Sources() []ContextSource {
	sources := make([]ContextSource, 0, 3)

	if o.Accounts != nil {
		sources = append(sources, &AccountsSource{provider: o.Accounts})
	}

	if o.Secrets != nil {
		sources = append(sources, &SecretsSource{store: o.Secrets})
	}

	if o.Results != nil {
		sources = append(sources, &ResultsSource{tasks: o.Results})
	}

	return sources
}

// AccountsSource exposes accounts.<slug>, using the JSON form of each auth account.
type AccountsSource struct {
	provider accounts.Provider
}

func NewAccountsSource(provider accounts.Provider) *AccountsSource {
	return &AccountsSource{provider: provider}
}

func (s *AccountsSource) Name() string { return "accounts" }

func (s *AccountsSource) Contribute(ctx context.Context, task *models.Task, data map[string]any) error {
	list, err := s.provider.Accounts(ctx, task.AccountID)
	if err != nil {
		return err
	}

	bySlug := make(map[string]any, len(list))

	for _, account := range list {
		value, err := toValue(account)
		if err != nil {
			return fmt.Errorf("account %s: %w", account.Slug, err)
		}

		bySlug[account.Slug] = value
	}

	data["accounts"] = bySlug

	return nil
}

// SecretsSource exposes secrets.<name>.
type SecretsSource struct {
	store secrets.Store
}

func NewSecretsSource(store secrets.Store) *SecretsSource {
	return &SecretsSource{store: store}
}

func (s *SecretsSource) Name() string { return "secrets" }

func (s *SecretsSource) Contribute(ctx context.Context, task *models.Task, data map[string]any) error {
	values, err := s.store.Secrets(ctx, task.AccountID)
	if err != nil {
		return err
	}

	named := make(map[string]any, len(values))
	for name, value := range values {
		named[name] = value
	}

	data["secrets"] = named

	return nil
}

// ResultsSource exposes <node_id>.result for completed tasks of the same flow session.
type ResultsSource struct {
	tasks persistence.TaskRepository
}

func NewResultsSource(tasks persistence.TaskRepository) *ResultsSource {
	return &ResultsSource{tasks: tasks}
}

func (s *ResultsSource) Name() string { return "results" }

func (s *ResultsSource) Contribute(ctx context.Context, task *models.Task, data map[string]any) error {
	siblings, err := s.tasks.BySession(ctx, task.FlowSessionID)
	if err != nil {
		return err
	}

	for _, sibling := range siblings {
		if sibling.TaskStatus != models.TaskStatusCompleted || len(sibling.Result) == 0 || sibling.NodeID == "" {
			continue
		}

		var result any

		err := json.Unmarshal(sibling.Result, &result)
		if err != nil {
			return fmt.Errorf("result of node %s: %w", sibling.NodeID, err)
		}

		if _, reserved := data[sibling.NodeID]; reserved {
			continue
		}

		if text, ok := result.(string); ok {
			result = template.Value(text)
		}

		data[sibling.NodeID] = map[string]any{"result": result}
	}

	return nil
}

func toValue(v any) (any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var value any

	err = json.Unmarshal(encoded, &value)
	if err != nil {
		return nil, err
	}

	return value, nil
}
