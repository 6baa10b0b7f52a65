package model

import (
	"time"
)

// TaskStatus represents the outcome of a task execution
type TaskStatus string

const (
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// TaskType classifies a task within a procedure template. The type informs
// the decision policy, not the transport.
type TaskType string

const (
	TaskTypeDiagnostic  TaskType = "diagnostic"
	TaskTypeRemediation TaskType = "remediation"
	TaskTypeMonitoring  TaskType = "monitoring"
	TaskTypeAnalysis    TaskType = "analysis"
)

// Task represents one unit of remote diagnostic or remediation work within a
// procedure template. Tasks are immutable once a workflow snapshots them.
type Task struct {
	ID           string        `json:"id"`
	Type         TaskType      `json:"type"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Command      string        `json:"command,omitempty"`
	Dependencies []string      `json:"dependencies,omitempty"`
	MaxRetries   int           `json:"max_retries"`
	Timeout      time.Duration `json:"timeout"`
}

// TaskResult represents the recorded outcome of a task execution. At most one
// result is ever recorded per task id within a workflow run.
type TaskResult struct {
	TaskID        string     `json:"task_id"`
	Status        TaskStatus `json:"status"`
	Output        string     `json:"output"`
	Error         string     `json:"error,omitempty"`
	ExecutionTime float64    `json:"execution_time"`
	Timestamp     time.Time  `json:"timestamp"`
}
