package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/banyan/banyan/internal/coordinator"
	"github.com/banyan/banyan/internal/domain/task"
)

// ExecutionInfoHandlers backs GET /execution_info[/{id}] and the
// SPEC_FULL.md §4.2 per-task rollup.
type ExecutionInfoHandlers struct {
	coord *coordinator.Coordinator
}

func newExecutionInfoHandlers(coord *coordinator.Coordinator) *ExecutionInfoHandlers {
	return &ExecutionInfoHandlers{coord: coord}
}

// executionSummary is the SPEC_FULL.md §4.2 read-only rollup derived from a
// task's execution records: attempt count, terminal outcome, total
// wall-clock across every attempt.
type executionSummary struct {
	AttemptCount  int              `json:"attempt_count"`
	LastExitStatus task.ExitStatus `json:"last_exit_status,omitempty"`
	TotalDuration  float64         `json:"total_duration_seconds"`
}

// List handles GET /execution_info?task_id=, returning the ordered attempt
// history for one task plus its summary.
func (h *ExecutionInfoHandlers) List(c *gin.Context) {
	taskID := c.Query("task_id")
	if taskID == "" {
		c.JSON(http.StatusOK, []*task.ExecutionRecord{})
		return
	}
	records, err := h.coord.ExecutionInfoForTask(c.Request.Context(), taskID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"summary": summarize(records),
	})
}

// Get handles GET /execution_info/{id}.
func (h *ExecutionInfoHandlers) Get(c *gin.Context) {
	rec, err := h.coord.ExecutionInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func summarize(records []*task.ExecutionRecord) executionSummary {
	var s executionSummary
	s.AttemptCount = len(records)
	for _, r := range records {
		if r.ExitStatus != "" {
			s.LastExitStatus = r.ExitStatus
		}
		if r.TimeTerminated != nil {
			s.TotalDuration += r.TimeTerminated.Sub(r.TimeStarted).Seconds()
		}
	}
	return s
}
