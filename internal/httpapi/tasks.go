package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/banyan/banyan/internal/bnerr"
	"github.com/banyan/banyan/internal/continuation"
	"github.com/banyan/banyan/internal/coordinator"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/schema"
	"github.com/banyan/banyan/internal/vresource"
)

// TaskHandlers groups the /tasks and its virtual-resource endpoints
// (spec.md §6), following api_handler_tasks.go's handler-struct-per-
// resource shape.
type TaskHandlers struct {
	coord *coordinator.Coordinator
}

func newTaskHandlers(coord *coordinator.Coordinator) *TaskHandlers {
	return &TaskHandlers{coord: coord}
}

// Create handles POST /tasks.
func (h *TaskHandlers) Create(c *gin.Context) {
	var req schema.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bnerr.Validation(bnerr.SubUnknownField, err.Error()))
		return
	}
	if err := schema.Validate(req); err != nil {
		writeError(c, err)
		return
	}
	t, err := h.coord.CreateTask(c.Request.Context(), coordinator.CreateTaskInput{
		Name:               req.Name,
		Command:            req.Command,
		State:              task.Status(req.State),
		RequestedResources: toRequestedResources(req.RequestedResources),
		EstimatedRuntimeMs: req.EstimatedRuntimeMs,
		MaxShutdownTimeMs:  req.MaxShutdownTimeMs,
		MaxAttemptCount:    req.MaxAttemptCount,
	}, req.Continuations)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func toRequestedResources(dto schema.RequestedResourcesDTO) task.RequestedResources {
	return task.RequestedResources{
		CPUMemoryBytes:            dto.CPUMemoryBytes,
		CPUCores:                  task.CPUCores{Count: dto.CPUCoresCount, Percent: dto.CPUCoresPercent},
		GPUCount:                  dto.GPUCount,
		GPUMemoryBytes:            dto.GPUMemoryBytes,
		GPUComputeCapabilityMajor: dto.GPUComputeCapabilityMajor,
		GPUComputeCapabilityMinor: dto.GPUComputeCapabilityMinor,
	}
}

// List handles GET /tasks, with an optional ?name= convenience filter
// (SPEC_FULL.md §4.3).
func (h *TaskHandlers) List(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		t, err := h.coord.FindTaskByName(c.Request.Context(), name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
		return
	}
	tasks, err := h.coord.ListTasks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// Get handles GET /tasks/{id}.
func (h *TaskHandlers) Get(c *gin.Context) {
	t, err := h.coord.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Patch handles PATCH /tasks/{id}, including any embedded virtual-resource
// keys (spec.md §4.4 "Embedding").
func (h *TaskHandlers) Patch(c *gin.Context) {
	var payload vresource.PatchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, bnerr.Validation(bnerr.SubUnknownField, err.Error()))
		return
	}
	if err := schema.Validate(payload); err != nil {
		writeError(c, err)
		return
	}
	// physical/virtual split documents spec.md §4.4's sequencing; the
	// coordinator itself applies state first and virtual keys after, under
	// the same lock, regardless of which half of the payload is present.
	_, hasVirtual := payload.Split()

	u := currentUser(c)
	in := coordinator.PatchTaskInput{
		Role:                u.Role,
		NewState:            task.Status(payload.State),
		HasNewState:         payload.State != "",
		Name:                payload.Name,
		HasName:             payload.Name != "",
		AddContinuations:    payload.AddContinuations,
		RemoveContinuations: payload.RemoveContinuations,
	}
	if hasVirtual && payload.UpdateExecutionData != nil {
		in.ExecutionUpdate = payload.UpdateExecutionData
		in.WorkerID = payload.UpdateExecutionData.Worker
	}

	result, err := h.coord.PatchTask(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"task": result.Task}
	if result.MintedToken != "" {
		resp["token"] = result.MintedToken
	}
	c.JSON(http.StatusOK, resp)
}

// AddContinuationsResourceLevel handles POST /tasks/add_continuations.
func (h *TaskHandlers) AddContinuationsResourceLevel(c *gin.Context) {
	updates, ok := h.resourceLevelUpdates(c)
	if !ok {
		return
	}
	if err := h.coord.ApplyResourceLevelAdd(c.Request.Context(), updates); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// RemoveContinuationsResourceLevel handles POST /tasks/remove_continuations.
func (h *TaskHandlers) RemoveContinuationsResourceLevel(c *gin.Context) {
	updates, ok := h.resourceLevelUpdates(c)
	if !ok {
		return
	}
	if err := h.coord.ApplyResourceLevelRemove(c.Request.Context(), updates); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// AddContinuationsItemLevel handles POST /tasks/{id}/add_continuations.
func (h *TaskHandlers) AddContinuationsItemLevel(c *gin.Context) {
	var values []string
	if err := c.ShouldBindJSON(&values); err != nil {
		writeError(c, bnerr.Validation(bnerr.SubUnknownField, err.Error()))
		return
	}
	updates := vresource.NormalizeItemLevel(c.Param("id"), values)
	if err := h.coord.ApplyResourceLevelAdd(c.Request.Context(), updates); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// RemoveContinuationsItemLevel handles POST /tasks/{id}/remove_continuations.
func (h *TaskHandlers) RemoveContinuationsItemLevel(c *gin.Context) {
	var values []string
	if err := c.ShouldBindJSON(&values); err != nil {
		writeError(c, bnerr.Validation(bnerr.SubUnknownField, err.Error()))
		return
	}
	updates := vresource.NormalizeItemLevel(c.Param("id"), values)
	if err := h.coord.ApplyResourceLevelRemove(c.Request.Context(), updates); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// UpdateExecutionDataItemLevel handles POST /tasks/{id}/update_execution_data,
// the worker-only item-level resource-usage sampling path (spec.md §4.4
// point 3); claim/report go through PATCH /tasks/{id} instead.
func (h *TaskHandlers) UpdateExecutionDataItemLevel(c *gin.Context) {
	var upd vresource.ExecutionDataUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		writeError(c, bnerr.Validation(bnerr.SubUnknownField, err.Error()))
		return
	}
	if err := h.coord.UpdateExecutionUsage(c.Request.Context(), c.Param("id"), upd.Token, task.ResourceUsage{
		MemoryBytes: upd.MemoryBytes,
		CPUUsage:    upd.CPUUsage,
		GPUUsage:    upd.GPUUsage,
	}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// resourceLevelUpdates binds a resource-level body (a list of
// {targets, values} objects) and validates each entry before handing the
// normalized form to the continuation engine.
func (h *TaskHandlers) resourceLevelUpdates(c *gin.Context) ([]continuation.ContinuationUpdate, bool) {
	var reqs []schema.ContinuationUpdateRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		writeError(c, bnerr.Validation(bnerr.SubUnknownField, err.Error()))
		return nil, false
	}
	for _, r := range reqs {
		if err := schema.Validate(r); err != nil {
			writeError(c, err)
			return nil, false
		}
	}
	updates := make([]continuation.ContinuationUpdate, 0, len(reqs))
	for _, r := range reqs {
		updates = append(updates, continuation.ContinuationUpdate{Targets: r.Targets, Values: r.Values})
	}
	if err := vresource.ValidateShape(updates); err != nil {
		writeError(c, err)
		return nil, false
	}
	return updates, true
}
