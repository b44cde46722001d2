package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/google/uuid"
)

// FlowVersionRepository handles flow version database operations.
type FlowVersionRepository struct {
	db *sql.DB
}

// NewFlowVersionRepository creates a new flow version repository.
func NewFlowVersionRepository(db *sql.DB) *FlowVersionRepository {
	return &FlowVersionRepository{db: db}
}

func (r *FlowVersionRepository) ByID(ctx context.Context, flowVersionID string) (*models.FlowVersion, error) {
	query := `
		SELECT
			flow_version_id
		  , flow_id
		  , account_id
		  , flow_version_name
		  , flow_definition
		  , published
		  , created_at
		FROM flow_versions
		WHERE flow_version_id = $1
	`

	var (
		flowVersion models.FlowVersion
		definition  []byte
	)

	err := r.db.QueryRowContext(ctx, query, flowVersionID).Scan(
		&flowVersion.ID,
		&flowVersion.FlowID,
		&flowVersion.AccountID,
		&flowVersion.Name,
		&definition,
		&flowVersion.Published,
		&flowVersion.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("flow version %s: %w", flowVersionID, persistence.ErrFlowVersionNotFound)
		}

		return nil, fmt.Errorf("failed to scan flow version: %w", err)
	}

	flowVersion.FlowDefinition = definition

	return &flowVersion, nil
}

// Save inserts a flow version. An existing id is never overwritten: ErrFlowVersionExists.
func (r *FlowVersionRepository) Save(ctx context.Context, flowVersion *models.FlowVersion) error {
	if flowVersion.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow version ID: %w", err)
		}

		flowVersion.ID = id.String()
	}

	if flowVersion.CreatedAt.IsZero() {
		flowVersion.CreatedAt = time.Now().UTC()
	}

	definition := flowVersion.FlowDefinition
	if len(definition) == 0 {
		definition = []byte("{}")
	}

	query := `
		INSERT INTO flow_versions (
			flow_version_id, flow_id, account_id, flow_version_name, flow_definition, published, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (flow_version_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		flowVersion.ID,
		flowVersion.FlowID,
		flowVersion.AccountID,
		flowVersion.Name,
		string(definition),
		flowVersion.Published,
		flowVersion.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save flow version: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save flow version: %w", err)
	}

	if inserted == 0 {
		return fmt.Errorf("flow version %s: %w", flowVersion.ID, persistence.ErrFlowVersionExists)
	}

	return nil
}
