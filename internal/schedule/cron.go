// Package schedule runs workflows on cron schedules, so recurring health
// checks and audits execute without a caller.
package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/scarecr0w12/ai-server-management/internal/config"
	"github.com/scarecr0w12/ai-server-management/internal/engine"
)

// Runner owns the cron scheduler and launches one workflow per tick
type Runner struct {
	logger *zap.Logger
	engine *engine.Engine
	cron   *cron.Cron
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewRunner creates a runner executing workflows through eng
func NewRunner(eng *engine.Engine, logger *zap.Logger) *Runner {
	adapter := &cronLogger{logger: logger.Named("cron")}
	return &Runner{
		logger: logger.Named("schedule"),
		engine: eng,
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(adapter))),
	}
}

// Add registers one recurring workflow. Each tick creates and executes a
// fresh workflow instance named after the schedule.
func (r *Runner) Add(entry config.Schedule) error {
	if entry.Name == "" || entry.Spec == "" || entry.Template == "" {
		return fmt.Errorf("schedule requires name, spec and template")
	}

	_, err := r.cron.AddFunc(entry.Spec, func() {
		workflowID := fmt.Sprintf("sched-%s-%s", entry.Name, uuid.New().String())

		if !r.engine.Create(workflowID, entry.ServerID, entry.Template) {
			r.logger.Error("Scheduled workflow creation failed",
				zap.String("schedule", entry.Name),
				zap.String("template", entry.Template))
			return
		}

		summary, err := r.engine.Execute(context.Background(), workflowID)
		if err != nil {
			r.logger.Error("Scheduled workflow execution failed",
				zap.String("schedule", entry.Name),
				zap.String("workflow_id", workflowID),
				zap.Error(err))
			return
		}

		r.logger.Info("Scheduled workflow finished",
			zap.String("schedule", entry.Name),
			zap.String("workflow_id", workflowID),
			zap.Float64("success_rate", summary.Counts.SuccessRate))
	})
	if err != nil {
		return fmt.Errorf("failed to add schedule %s: %w", entry.Name, err)
	}

	r.logger.Info("Registered schedule",
		zap.String("name", entry.Name),
		zap.String("spec", entry.Spec),
		zap.String("template", entry.Template))
	return nil
}

// Start begins firing schedules
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop stops the scheduler and waits for in-flight runs to return
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
