package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scarecr0w12/ai-server-management/internal/model"
)

func summaryWorkflow(tasks []model.Task, results map[string]model.TaskResult) *model.Workflow {
	workflow := &model.Workflow{
		ID:       "wf1",
		ServerID: "srv1",
		Template: "custom",
		Status:   model.WorkflowStatusCompleted,
		Tasks:    make(map[string]model.Task, len(tasks)),
		Results:  results,
	}
	for _, task := range tasks {
		workflow.Tasks[task.ID] = task
		workflow.Order = append(workflow.Order, task.ID)
	}
	return workflow
}

func TestBuildSummaryCounts(t *testing.T) {
	tasks := []model.Task{
		{ID: "a", Type: model.TaskTypeMonitoring, Name: "A", Description: "a"},
		{ID: "b", Type: model.TaskTypeAnalysis, Name: "B", Description: "b"},
		{ID: "c", Type: model.TaskTypeDiagnostic, Name: "C", Description: "c"},
	}

	t.Run("Mixed Outcomes", func(t *testing.T) {
		workflow := summaryWorkflow(tasks, map[string]model.TaskResult{
			"a": {TaskID: "a", Status: model.TaskStatusCompleted},
			"b": {TaskID: "b", Status: model.TaskStatusCompleted},
			"c": {TaskID: "c", Status: model.TaskStatusFailed},
		})

		summary := BuildSummary(workflow)
		assert.Equal(t, 3, summary.Counts.TotalTasks)
		assert.Equal(t, 2, summary.Counts.Completed)
		assert.Equal(t, 1, summary.Counts.Failed)
		// 2/3 rounded to one decimal place
		assert.Equal(t, 66.7, summary.Counts.SuccessRate)
	})

	t.Run("Unreached Tasks Excluded", func(t *testing.T) {
		workflow := summaryWorkflow(tasks, map[string]model.TaskResult{
			"a": {TaskID: "a", Status: model.TaskStatusCompleted},
		})

		summary := BuildSummary(workflow)
		assert.Equal(t, 1, summary.Counts.TotalTasks)
		assert.Equal(t, 100.0, summary.Counts.SuccessRate)
	})

	t.Run("No Results", func(t *testing.T) {
		workflow := summaryWorkflow(tasks, map[string]model.TaskResult{})

		summary := BuildSummary(workflow)
		assert.Equal(t, 0, summary.Counts.TotalTasks)
		assert.Equal(t, 0.0, summary.Counts.SuccessRate)
	})
}

func TestRecommendations(t *testing.T) {
	t.Run("Critical And Warning Lines", func(t *testing.T) {
		tasks := []model.Task{
			{ID: "disk", Type: model.TaskTypeMonitoring, Name: "Check Disk", Description: "disk usage"},
			{ID: "svc", Type: model.TaskTypeDiagnostic, Name: "Check Service", Description: "service state"},
		}
		workflow := summaryWorkflow(tasks, map[string]model.TaskResult{
			"disk": {TaskID: "disk", Status: model.TaskStatusCompleted, Output: "I/O Error on /dev/sda"},
			"svc":  {TaskID: "svc", Status: model.TaskStatusFailed},
		})

		assert.Equal(t, []string{
			"WARNING: Check Disk detected issues - review output",
			"CRITICAL: Check Service failed - investigate service state",
		}, Recommendations(workflow))
	})

	t.Run("Warning Match Is Case Insensitive", func(t *testing.T) {
		tasks := []model.Task{
			{ID: "m", Type: model.TaskTypeMonitoring, Name: "Monitor", Description: "m"},
		}
		workflow := summaryWorkflow(tasks, map[string]model.TaskResult{
			"m": {TaskID: "m", Status: model.TaskStatusCompleted, Output: "ERROR: something"},
		})

		assert.Equal(t,
			[]string{"WARNING: Monitor detected issues - review output"},
			Recommendations(workflow))
	})

	t.Run("Non Monitoring Output Ignored", func(t *testing.T) {
		tasks := []model.Task{
			{ID: "an", Type: model.TaskTypeAnalysis, Name: "Analyze Logs", Description: "logs"},
		}
		workflow := summaryWorkflow(tasks, map[string]model.TaskResult{
			"an": {TaskID: "an", Status: model.TaskStatusCompleted, Output: "error error error"},
		})

		assert.Equal(t,
			[]string{"All diagnostic tasks completed successfully - system appears healthy"},
			Recommendations(workflow))
	})

	t.Run("Healthy", func(t *testing.T) {
		tasks := []model.Task{
			{ID: "a", Type: model.TaskTypeDiagnostic, Name: "A", Description: "a"},
		}
		workflow := summaryWorkflow(tasks, map[string]model.TaskResult{
			"a": {TaskID: "a", Status: model.TaskStatusCompleted, Output: "all good"},
		})

		assert.Equal(t,
			[]string{"All diagnostic tasks completed successfully - system appears healthy"},
			Recommendations(workflow))
	})
}

func TestBuildSummaryDoesNotMutate(t *testing.T) {
	tasks := []model.Task{
		{ID: "a", Type: model.TaskTypeDiagnostic, Name: "A", Description: "a"},
	}
	results := map[string]model.TaskResult{
		"a": {TaskID: "a", Status: model.TaskStatusCompleted},
	}
	workflow := summaryWorkflow(tasks, results)

	summary := BuildSummary(workflow)
	summary.Results["a"] = model.TaskResult{TaskID: "a", Status: model.TaskStatusFailed}

	assert.Equal(t, model.TaskStatusCompleted, workflow.Results["a"].Status)
}
