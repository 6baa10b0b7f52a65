package engine

import "errors"

var (
	// ErrWorkflowNotFound is returned when a workflow id is not registered
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowRunning is returned when Execute is called on a workflow
	// that is already executing
	ErrWorkflowRunning = errors.New("workflow already running")
)
