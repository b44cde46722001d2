// Package postgresql provides PostgreSQL persistence implementation for tasks and flow versions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/dukex/operion-engine/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db              *sql.DB
	logger          *slog.Logger
	taskRepo        *TaskRepository
	flowVersionRepo *FlowVersionRepository
	accountRepo     *AccountRepository
	scheduleRepo    *ScheduleRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:              database,
		logger:          logger,
		taskRepo:        NewTaskRepository(database, logger),
		flowVersionRepo: NewFlowVersionRepository(database),
		accountRepo:     NewAccountRepository(database, logger),
		scheduleRepo:    NewScheduleRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.taskRepo
}

func (p *Persistence) FlowVersionRepository() persistence.FlowVersionRepository {
	return p.flowVersionRepo
}

func (p *Persistence) AccountRepository() persistence.AccountRepository {
	return p.accountRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

// nullableJSON maps an empty raw message to SQL NULL.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	return string(raw)
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

type rowScanner interface {
	Scan(dest ...any) error
}
