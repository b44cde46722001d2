// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/dukex/operion-engine/pkg/persistence/memory"
	"github.com/dukex/operion-engine/pkg/persistence/postgresql"
)

var ErrUnsupportedPersistence = errors.New("unsupported persistence provider")

// NewPersistence opens the store selected by the scheme of databaseURL. Postgres
// stores are migrated on open.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence, tasks are lost on restart")

		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPersistence, provider)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return strings.ToLower(provider)
}
