package model

import "time"

// WorkflowStatus represents the lifecycle state of a workflow instance
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	// WorkflowStatusPaused is reserved for interactive workflows; the default
	// decision policy never enters it.
	WorkflowStatusPaused WorkflowStatus = "paused"
)

// Workflow is the mutable run-state for one execution of a template against
// one target host. Tasks are a snapshot taken at creation time; Order
// preserves the template's insertion order for scheduling.
type Workflow struct {
	ID          string                `json:"id"`
	ServerID    string                `json:"server_id"`
	Template    string                `json:"template"`
	Status      WorkflowStatus        `json:"status"`
	Tasks       map[string]Task       `json:"tasks"`
	Order       []string              `json:"-"`
	Results     map[string]TaskResult `json:"results"`
	CurrentTask string                `json:"current_task,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// WorkflowProjection is the lightweight listing view of a workflow instance
type WorkflowProjection struct {
	ID          string         `json:"id"`
	ServerID    string         `json:"server_id"`
	Template    string         `json:"template"`
	Status      WorkflowStatus `json:"status"`
	CurrentTask string         `json:"current_task,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SummaryCounts aggregates task outcomes for a finished run. Tasks that never
// produced a result are excluded from the denominator.
type SummaryCounts struct {
	TotalTasks  int     `json:"total_tasks"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Summary is the structured report returned to the caller after a run
// completes or halts.
type Summary struct {
	WorkflowID      string                `json:"workflow_id"`
	ServerID        string                `json:"server_id"`
	Template        string                `json:"template"`
	Status          WorkflowStatus        `json:"status"`
	Counts          SummaryCounts         `json:"summary"`
	Results         map[string]TaskResult `json:"results"`
	Recommendations []string              `json:"recommendations"`
}
