package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/google/uuid"
)

// ScheduleRepository handles schedule database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

// Active returns every active schedule.
func (r *ScheduleRepository) Active(ctx context.Context) ([]*models.Schedule, error) {
	query := `
		SELECT
			id
		  , account_id
		  , flow_id
		  , flow_version_id
		  , stage
		  , cron_expression
		  , active
		  , created_at
		  , updated_at
		FROM schedules
		WHERE active = true
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		var schedule models.Schedule

		err := rows.Scan(
			&schedule.ID,
			&schedule.AccountID,
			&schedule.FlowID,
			&schedule.FlowVersionID,
			&schedule.Stage,
			&schedule.CronExpression,
			&schedule.Active,
			&schedule.CreatedAt,
			&schedule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, &schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

// Save inserts or updates a schedule.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now().UTC()

	if schedule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate schedule ID: %w", err)
		}

		schedule.ID = id.String()
	}

	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	query := `
		INSERT INTO schedules (
			id, account_id, flow_id, flow_version_id, stage, cron_expression, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			cron_expression = EXCLUDED.cron_expression,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.AccountID,
		schedule.FlowID,
		schedule.FlowVersionID,
		schedule.Stage,
		schedule.CronExpression,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}
