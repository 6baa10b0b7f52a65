package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/scarecr0w12/ai-server-management/internal/model"
)

const healthyRecommendation = "All diagnostic tasks completed successfully - system appears healthy"

// BuildSummary reduces a terminal or halted workflow into its run report.
// It is a pure function of the instance's tasks and results and never
// mutates the workflow. Tasks that never produced a result are excluded
// from the counts.
func BuildSummary(workflow *model.Workflow) *model.Summary {
	var completed, failed int
	for _, result := range workflow.Results {
		switch result.Status {
		case model.TaskStatusCompleted:
			completed++
		case model.TaskStatusFailed:
			failed++
		}
	}

	total := len(workflow.Results)
	var successRate float64
	if total > 0 {
		successRate = round1(float64(completed) / float64(total) * 100)
	}

	results := make(map[string]model.TaskResult, total)
	for taskID, result := range workflow.Results {
		results[taskID] = result
	}

	return &model.Summary{
		WorkflowID: workflow.ID,
		ServerID:   workflow.ServerID,
		Template:   workflow.Template,
		Status:     workflow.Status,
		Counts: model.SummaryCounts{
			TotalTasks:  total,
			Completed:   completed,
			Failed:      failed,
			SuccessRate: successRate,
		},
		Results:         results,
		Recommendations: Recommendations(workflow),
	}
}

// Recommendations generates one actionable line per notable task outcome:
// a CRITICAL line for every failed task, a WARNING line for every
// monitoring task whose output mentions an error, and a single healthy line
// when nothing else was produced. Lines follow template order.
func Recommendations(workflow *model.Workflow) []string {
	var recommendations []string

	for _, taskID := range workflow.Order {
		result, ok := workflow.Results[taskID]
		if !ok {
			continue
		}
		task := workflow.Tasks[taskID]

		if result.Status == model.TaskStatusFailed {
			recommendations = append(recommendations,
				fmt.Sprintf("CRITICAL: %s failed - investigate %s", task.Name, task.Description))
		} else if task.Type == model.TaskTypeMonitoring && strings.Contains(strings.ToLower(result.Output), "error") {
			recommendations = append(recommendations,
				fmt.Sprintf("WARNING: %s detected issues - review output", task.Name))
		}
	}

	if len(recommendations) == 0 {
		recommendations = append(recommendations, healthyRecommendation)
	}
	return recommendations
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
