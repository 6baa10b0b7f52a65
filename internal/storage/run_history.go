// Package storage persists finished workflow runs to SQLite. History rows
// are an audit artifact: the engine only writes them, it never reads them
// back to resume state.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/scarecr0w12/ai-server-management/internal/model"
)

// WorkflowRun is one persisted workflow execution
type WorkflowRun struct {
	ID          string               `json:"id"`
	WorkflowID  string               `json:"workflow_id"`
	ServerID    string               `json:"server_id"`
	Template    string               `json:"template"`
	Status      model.WorkflowStatus `json:"status"`
	TotalTasks  int                  `json:"total_tasks"`
	Completed   int                  `json:"completed"`
	Failed      int                  `json:"failed"`
	SuccessRate float64              `json:"success_rate"`
	RecordedAt  time.Time            `json:"recorded_at"`
}

// TaskRun is one persisted task result belonging to a workflow run
type TaskRun struct {
	RunID         string           `json:"run_id"`
	TaskID        string           `json:"task_id"`
	Name          string           `json:"name"`
	Status        model.TaskStatus `json:"status"`
	Output        string           `json:"output,omitempty"`
	Error         string           `json:"error,omitempty"`
	ExecutionTime float64          `json:"execution_time"`
	Timestamp     time.Time        `json:"timestamp"`
}

// RunHistory stores workflow runs in a SQLite database
type RunHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewRunHistory opens (or creates) the run history database at dbPath
func NewRunHistory(logger *zap.Logger, dbPath string) (*RunHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	history := &RunHistory{
		logger: logger.Named("run-history"),
		db:     db,
	}

	if err := history.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return history, nil
}

// initialize creates the necessary tables if they don't exist
func (h *RunHistory) initialize() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			server_id TEXT NOT NULL,
			template TEXT NOT NULL,
			status TEXT NOT NULL,
			total_tasks INTEGER NOT NULL,
			completed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			success_rate REAL NOT NULL,
			recorded_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS task_runs (
			run_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			error TEXT,
			execution_time REAL NOT NULL,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES workflow_runs(id)
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow_id ON workflow_runs(workflow_id);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_server_id ON workflow_runs(server_id);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_recorded_at ON workflow_runs(recorded_at);
		CREATE INDEX IF NOT EXISTS idx_task_runs_run_id ON task_runs(run_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// StoreRun implements engine.RunStore. One workflow_runs row plus one
// task_runs row per recorded result, written in a transaction.
func (h *RunHistory) StoreRun(ctx context.Context, workflow *model.Workflow, summary *model.Summary) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	runID := uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_runs (
			id, workflow_id, server_id, template, status,
			total_tasks, completed, failed, success_rate, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		workflow.ID,
		workflow.ServerID,
		workflow.Template,
		workflow.Status,
		summary.Counts.TotalTasks,
		summary.Counts.Completed,
		summary.Counts.Failed,
		summary.Counts.SuccessRate,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store workflow run: %w", err)
	}

	for taskID, result := range workflow.Results {
		task := workflow.Tasks[taskID]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_runs (
				run_id, task_id, name, status, output, error, execution_time, timestamp
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			taskID,
			task.Name,
			result.Status,
			sql.NullString{String: result.Output, Valid: result.Output != ""},
			sql.NullString{String: result.Error, Valid: result.Error != ""},
			result.ExecutionTime,
			result.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to store task run: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	h.logger.Info("Stored workflow run",
		zap.String("run_id", runID),
		zap.String("workflow_id", workflow.ID),
		zap.Int("tasks", summary.Counts.TotalTasks))
	return nil
}

// ListRuns returns persisted runs, newest first. An empty serverID matches
// all servers.
func (h *RunHistory) ListRuns(ctx context.Context, serverID string, offset, limit int) ([]*WorkflowRun, error) {
	query := `
		SELECT id, workflow_id, server_id, template, status,
		       total_tasks, completed, failed, success_rate, recorded_at
		FROM workflow_runs`
	args := make([]interface{}, 0, 3)

	if serverID != "" {
		query += " WHERE server_id = ?"
		args = append(args, serverID)
	}
	query += " ORDER BY recorded_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*WorkflowRun
	for rows.Next() {
		run := &WorkflowRun{}
		err := rows.Scan(
			&run.ID,
			&run.WorkflowID,
			&run.ServerID,
			&run.Template,
			&run.Status,
			&run.TotalTasks,
			&run.Completed,
			&run.Failed,
			&run.SuccessRate,
			&run.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return runs, nil
}

// TaskResults returns the task rows recorded for a run
func (h *RunHistory) TaskResults(ctx context.Context, runID string) ([]*TaskRun, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT run_id, task_id, name, status, output, error, execution_time, timestamp
		FROM task_runs
		WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task runs: %w", err)
	}
	defer rows.Close()

	var tasks []*TaskRun
	for rows.Next() {
		task := &TaskRun{}
		var output, errorStr sql.NullString
		err := rows.Scan(
			&task.RunID,
			&task.TaskID,
			&task.Name,
			&task.Status,
			&output,
			&errorStr,
			&task.ExecutionTime,
			&task.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		task.Output = output.String
		task.Error = errorStr.String
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return tasks, nil
}

// DeleteBefore deletes runs recorded before the given time
func (h *RunHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	_, err := h.db.ExecContext(ctx, `
		DELETE FROM task_runs WHERE run_id IN
			(SELECT id FROM workflow_runs WHERE recorded_at < ?)`, before)
	if err != nil {
		return fmt.Errorf("failed to delete old task runs: %w", err)
	}

	result, err := h.db.ExecContext(ctx, "DELETE FROM workflow_runs WHERE recorded_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete old runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	h.logger.Info("Deleted old workflow runs",
		zap.Time("before", before),
		zap.Int64("deleted", affected))
	return nil
}

// Close closes the database connection
func (h *RunHistory) Close() error {
	return h.db.Close()
}
