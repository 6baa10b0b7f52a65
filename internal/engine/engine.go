// Package engine implements the workflow orchestration core: an in-memory
// registry of workflow instances, a dependency-ordered scheduler that drains
// each instance's task graph through the agent transport, and the summary
// generator reducing a finished run into a report with recommendations.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scarecr0w12/ai-server-management/internal/audit"
	"github.com/scarecr0w12/ai-server-management/internal/model"
	"github.com/scarecr0w12/ai-server-management/internal/template"
	"github.com/scarecr0w12/ai-server-management/internal/transport"
)

const (
	defaultInterTaskDelay = 500 * time.Millisecond
	defaultRetryDelay     = time.Second

	auditOutputLimit = 200
)

// RunStore persists finished runs. Implemented by storage.RunHistory; a nil
// store disables persistence.
type RunStore interface {
	StoreRun(ctx context.Context, workflow *model.Workflow, summary *model.Summary) error
}

// Options tunes engine behavior. The zero value selects the defaults.
type Options struct {
	// InterTaskDelay is the pause between consecutive tasks of a run
	InterTaskDelay time.Duration

	// Backoff drives the delay between retry attempts of a failed task
	Backoff RetryStrategy

	// History receives every finished run; may be nil
	History RunStore
}

// Engine owns the workflow registry and executes workflow instances against
// remote hosts through the agent transport. Construct one per process and
// hand it to the serving layers; there are no package-level instances.
type Engine struct {
	logger  *zap.Logger
	client  *transport.Client
	auditor audit.Recorder
	history RunStore

	interTaskDelay time.Duration
	backoff        RetryStrategy

	mu        sync.Mutex
	workflows map[string]*model.Workflow
}

// New creates an engine executing commands through client and writing audit
// records to recorder.
func New(client *transport.Client, recorder audit.Recorder, opts Options, logger *zap.Logger) *Engine {
	if opts.InterTaskDelay <= 0 {
		opts.InterTaskDelay = defaultInterTaskDelay
	}
	if opts.Backoff == nil {
		opts.Backoff = &FixedBackoff{Delay: defaultRetryDelay}
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}

	return &Engine{
		logger:         logger.Named("engine"),
		client:         client,
		auditor:        recorder,
		history:        opts.History,
		interTaskDelay: opts.InterTaskDelay,
		backoff:        opts.Backoff,
		workflows:      make(map[string]*model.Workflow),
	}
}

// Create builds a fresh workflow instance from the named template and
// registers it. Returns false when the template name is unknown; nothing is
// registered in that case.
func (e *Engine) Create(workflowID, serverID, templateName string) bool {
	tasks, ok := template.Tasks(templateName)
	if !ok {
		e.logger.Error("Unknown template", zap.String("template", templateName))
		return false
	}

	workflow := &model.Workflow{
		ID:        workflowID,
		ServerID:  serverID,
		Template:  templateName,
		Status:    model.WorkflowStatusPending,
		Tasks:     make(map[string]model.Task, len(tasks)),
		Order:     make([]string, 0, len(tasks)),
		Results:   make(map[string]model.TaskResult, len(tasks)),
		CreatedAt: time.Now().UTC(),
	}
	for _, task := range tasks {
		workflow.Tasks[task.ID] = task
		workflow.Order = append(workflow.Order, task.ID)
	}

	e.mu.Lock()
	e.workflows[workflowID] = workflow
	e.mu.Unlock()

	e.auditor.Record(context.Background(),
		fmt.Sprintf("Created workflow %s for server %s", templateName, serverID),
		serverID,
		[]string{"workflow", "created"})

	e.logger.Info("Created workflow",
		zap.String("workflow_id", workflowID),
		zap.String("template", templateName),
		zap.String("server_id", serverID))
	return true
}

// Execute drains the workflow's task graph and returns the run summary.
// Tasks run strictly sequentially; the loop stops early when a diagnostic
// task fails. Calling Execute on a workflow that is already running returns
// ErrWorkflowRunning; a run cannot be cancelled once started.
func (e *Engine) Execute(ctx context.Context, workflowID string) (*model.Summary, error) {
	e.mu.Lock()
	workflow, ok := e.workflows[workflowID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrWorkflowNotFound
	}
	if workflow.Status == model.WorkflowStatusRunning {
		e.mu.Unlock()
		return nil, ErrWorkflowRunning
	}
	workflow.Status = model.WorkflowStatusRunning
	e.mu.Unlock()

	e.runLoop(ctx, workflow)

	summary := BuildSummary(workflow)

	e.auditor.Record(ctx,
		fmt.Sprintf("Workflow %s completed with %d/%d tasks successful",
			workflow.Template, summary.Counts.Completed, summary.Counts.TotalTasks),
		workflow.ServerID,
		[]string{"workflow", "summary", "completed"})

	if e.history != nil {
		if err := e.history.StoreRun(ctx, workflow, summary); err != nil {
			e.logger.Error("Failed to store run history",
				zap.String("workflow_id", workflowID),
				zap.Error(err))
		}
	}

	return summary, nil
}

// runLoop executes eligible tasks until the graph is exhausted or the stop
// policy halts the run. Internal faults are caught at this boundary and
// force the workflow to failed instead of propagating.
func (e *Engine) runLoop(ctx context.Context, workflow *model.Workflow) {
	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			workflow.Status = model.WorkflowStatusFailed
			workflow.CurrentTask = ""
			e.mu.Unlock()
			e.logger.Error("Workflow failed",
				zap.String("workflow_id", workflow.ID),
				zap.Any("fault", r))
		}
	}()

	for {
		task, ok := e.nextEligible(workflow)
		if !ok {
			break
		}

		e.mu.Lock()
		workflow.CurrentTask = task.ID
		e.mu.Unlock()

		result := e.runTask(ctx, workflow.ServerID, task)

		e.mu.Lock()
		workflow.Results[task.ID] = result
		e.mu.Unlock()

		e.auditor.Record(ctx,
			fmt.Sprintf("Task %s: %s", task.Name, truncate(result.Output, auditOutputLimit)),
			workflow.ServerID,
			[]string{"workflow", "task_result", workflow.Template})

		// Stop policy: a failed diagnostic halts the run; other failure
		// types do not.
		if result.Status == model.TaskStatusFailed && task.Type == model.TaskTypeDiagnostic {
			e.logger.Warn("Diagnostic task failed, halting workflow",
				zap.String("workflow_id", workflow.ID),
				zap.String("task_id", task.ID))
			break
		}

		time.Sleep(e.interTaskDelay)
	}

	e.mu.Lock()
	workflow.Status = model.WorkflowStatusCompleted
	workflow.CurrentTask = ""
	e.mu.Unlock()
}

// nextEligible returns the first task in template order that has no result
// yet and whose dependencies all have results. A failed dependency still
// satisfies eligibility; this mirrors the reference decision policy, where
// dependency edges express ordering, not success gating. Tasks whose
// dependencies can never be satisfied are left unexecuted.
func (e *Engine) nextEligible(workflow *model.Workflow) (model.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, taskID := range workflow.Order {
		if _, done := workflow.Results[taskID]; done {
			continue
		}

		task := workflow.Tasks[taskID]
		satisfied := true
		for _, dep := range task.Dependencies {
			if _, done := workflow.Results[dep]; !done {
				satisfied = false
				break
			}
		}
		if satisfied {
			return task, true
		}
	}
	return model.Task{}, false
}

// runTask executes one task through the transport, retrying failed attempts
// up to the task's MaxRetries with backoff. Only the final attempt's result
// is returned; execution time covers all attempts.
func (e *Engine) runTask(ctx context.Context, serverID string, task model.Task) model.TaskResult {
	start := time.Now()

	var result model.TaskResult
	for attempt := 0; ; attempt++ {
		result = e.attemptTask(ctx, serverID, task)
		if result.Status == model.TaskStatusCompleted || attempt >= task.MaxRetries {
			break
		}

		delay := e.backoff.NextRetry(attempt)
		e.logger.Info("Retrying task",
			zap.String("task_id", task.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay))
		time.Sleep(delay)
	}

	result.ExecutionTime = time.Since(start).Seconds()
	result.Timestamp = time.Now().UTC()
	return result
}

// attemptTask performs a single execution attempt. Transport failures of any
// kind surface as a failed result, never as an error to the loop.
func (e *Engine) attemptTask(ctx context.Context, serverID string, task model.Task) model.TaskResult {
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	if !e.client.Connected() {
		if err := e.client.Connect(ctx); err != nil {
			return model.TaskResult{
				TaskID: task.ID,
				Status: model.TaskStatusFailed,
				Error:  err.Error(),
			}
		}
	}

	resp, err := e.client.ExecuteCommand(ctx, serverID, task.Command)

	// Any response carrying a status field counts as completed, including
	// agent-level error frames; only an absent or shapeless response fails
	// the task.
	if resp != nil {
		if _, ok := resp["status"]; ok {
			output := ""
			if raw, ok := resp["output"]; ok {
				output = fmt.Sprintf("%v", raw)
			}
			return model.TaskResult{
				TaskID: task.ID,
				Status: model.TaskStatusCompleted,
				Output: output,
			}
		}
	}

	message := "no valid response from agent"
	if err != nil {
		message = err.Error()
		e.logger.Warn("Task attempt failed",
			zap.String("task_id", task.ID),
			zap.String("kind", string(transport.KindOf(err))),
			zap.Error(err))
	}
	return model.TaskResult{
		TaskID: task.ID,
		Status: model.TaskStatusFailed,
		Error:  message,
	}
}

// ListActive returns a projection of every registered workflow instance, in
// no guaranteed order.
func (e *Engine) ListActive() []model.WorkflowProjection {
	e.mu.Lock()
	defer e.mu.Unlock()

	projections := make([]model.WorkflowProjection, 0, len(e.workflows))
	for _, workflow := range e.workflows {
		projections = append(projections, model.WorkflowProjection{
			ID:          workflow.ID,
			ServerID:    workflow.ServerID,
			Template:    workflow.Template,
			Status:      workflow.Status,
			CurrentTask: workflow.CurrentTask,
			CreatedAt:   workflow.CreatedAt,
		})
	}
	return projections
}

// Get returns the workflow registered under id, or false
func (e *Engine) Get(workflowID string) (*model.Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	workflow, ok := e.workflows[workflowID]
	return workflow, ok
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
