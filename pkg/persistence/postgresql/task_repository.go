package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/lib/pq"
)

const taskColumns = `
	task_id
  , account_id
  , flow_id
  , flow_version_id
  , flow_version_name
  , trigger_id
  , trigger_session_id
  , flow_session_id
  , node_id
  , plugin_id
  , stage
  , task_status
  , is_trigger
  , processing_order
  , config
  , result
  , error_message
  , created_at
  , started_at
  , ended_at
`

// TaskRepository handles task-related database operations.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

// NextPending returns the oldest pending task of a stage, skipping sessions that are
// excluded by the caller or already have a task in processing.
func (r *TaskRepository) NextPending(
	ctx context.Context,
	stage models.Stage,
	excludeSessions []string,
) (*models.Task, error) {
	if excludeSessions == nil {
		excludeSessions = []string{}
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		WHERE t.task_status = 'pending'
		  AND t.stage = $1
		  AND NOT (t.flow_session_id = ANY($2::text[]))
		  AND NOT EXISTS (
			SELECT 1 FROM tasks p
			WHERE p.flow_session_id = t.flow_session_id
			  AND p.task_status = 'processing'
		  )
		ORDER BY t.created_at ASC, t.processing_order ASC
		LIMIT 1
	`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, stage, pq.Array(excludeSessions)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTaskNotFound
		}

		return nil, fmt.Errorf("failed to query pending task: %w", err)
	}

	return task, nil
}

// BySession returns all tasks of a flow session ordered by processing order.
func (r *TaskRepository) BySession(ctx context.Context, flowSessionID string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE flow_session_id = $1
		ORDER BY processing_order ASC
	`

	rows, err := r.db.QueryContext(ctx, query, flowSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session tasks: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// ByID retrieves a task by its ID.
func (r *TaskRepository) ByID(ctx context.Context, taskID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE task_id = $1`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTaskError("ByID", taskID, persistence.ErrTaskNotFound)
		}

		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	return task, nil
}

// Insert saves all tasks in a single transaction.
func (r *TaskRepository) Insert(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	statement, err := transaction.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare task insert: %w", err)
	}

	defer func() {
		_ = statement.Close()
	}()

	now := time.Now().UTC()

	for _, task := range tasks {
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}

		configJSON, err := json.Marshal(task.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal task config: %w", err)
		}

		var errorMessage sql.NullString
		if task.ErrorMessage != nil {
			errorMessage = nullableString(*task.ErrorMessage)
		}

		_, err = statement.ExecContext(ctx,
			task.TaskID,
			task.AccountID,
			task.FlowID,
			task.FlowVersionID,
			task.FlowVersionName,
			task.TriggerID,
			task.TriggerSessionID,
			task.FlowSessionID,
			task.NodeID,
			nullableString(task.Plugin()),
			task.Stage,
			task.TaskStatus,
			task.IsTrigger,
			task.ProcessingOrder,
			string(configJSON),
			nullableJSON(task.Result),
			errorMessage,
			task.CreatedAt,
			task.StartedAt,
			task.EndedAt,
		)
		if err != nil {
			return persistence.NewTaskError("Insert", task.TaskID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit task insert: %w", err)
	}

	return nil
}

// Claim is a conditional pending -> processing write.
func (r *TaskRepository) Claim(ctx context.Context, taskID string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET task_status = 'processing', started_at = $2
		WHERE task_id = $1 AND task_status = 'pending'
	`, taskID, at)
	if err != nil {
		return false, persistence.NewTaskError("Claim", taskID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewTaskError("Claim", taskID, err)
	}

	return affected == 1, nil
}

// Finish moves a processing task into completed or error.
func (r *TaskRepository) Finish(ctx context.Context, taskID string, update models.TaskUpdate) error {
	if !models.TaskStatusProcessing.CanTransitionTo(update.Status) {
		return persistence.NewTaskError("Finish", taskID, persistence.ErrInvalidTransition)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET task_status = $2, result = $3, error_message = $4, ended_at = $5
		WHERE task_id = $1 AND task_status = 'processing'
	`, taskID, update.Status, nullableJSON(update.Result), nullableString(update.ErrorMessage), update.At)
	if err != nil {
		return persistence.NewTaskError("Finish", taskID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewTaskError("Finish", taskID, err)
	}

	if affected == 0 {
		return persistence.NewTaskError("Finish", taskID, persistence.ErrInvalidTransition)
	}

	return nil
}

// CancelPending cancels all pending tasks of a flow session.
func (r *TaskRepository) CancelPending(ctx context.Context, flowSessionID string, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET task_status = 'cancelled', ended_at = $2
		WHERE flow_session_id = $1 AND task_status = 'pending'
	`, flowSessionID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel tasks of session %s: %w", flowSessionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to cancel tasks of session %s: %w", flowSessionID, err)
	}

	return affected, nil
}

func scanTask(scanner rowScanner) (*models.Task, error) {
	var (
		task                   models.Task
		pluginID, errorMessage sql.NullString
		configJSON, resultJSON []byte
		startedAt, endedAt     sql.NullTime
	)

	err := scanner.Scan(
		&task.TaskID,
		&task.AccountID,
		&task.FlowID,
		&task.FlowVersionID,
		&task.FlowVersionName,
		&task.TriggerID,
		&task.TriggerSessionID,
		&task.FlowSessionID,
		&task.NodeID,
		&pluginID,
		&task.Stage,
		&task.TaskStatus,
		&task.IsTrigger,
		&task.ProcessingOrder,
		&configJSON,
		&resultJSON,
		&errorMessage,
		&task.CreatedAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	if pluginID.Valid {
		task.PluginID = &pluginID.String
	}

	if errorMessage.Valid {
		task.ErrorMessage = &errorMessage.String
	}

	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}

	if endedAt.Valid {
		task.EndedAt = &endedAt.Time
	}

	if len(configJSON) > 0 {
		err = json.Unmarshal(configJSON, &task.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal task config: %w", err)
		}
	}

	if len(resultJSON) > 0 {
		task.Result = json.RawMessage(resultJSON)
	}

	return &task, nil
}
