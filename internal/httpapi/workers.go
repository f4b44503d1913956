package httpapi

import (
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/banyan/banyan/internal/bnerr"
	"github.com/banyan/banyan/internal/coordinator"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/notifier"
	"github.com/banyan/banyan/internal/schema"
)

// WorkerHandlers backs POST/DELETE /registered_workers (spec.md §6).
type WorkerHandlers struct {
	coord *coordinator.Coordinator
	notif *notifier.Notifier
}

func newWorkerHandlers(coord *coordinator.Coordinator, notif *notifier.Notifier) *WorkerHandlers {
	return &WorkerHandlers{coord: coord, notif: notif}
}

// Register handles POST /registered_workers, registering both the identity
// record and the notifier's TCP connection to the worker's control channel
// (spec.md §4.6).
func (h *WorkerHandlers) Register(c *gin.Context) {
	var req schema.RegisterWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bnerr.Validation(bnerr.SubUnknownField, err.Error()))
		return
	}
	if err := schema.Validate(req); err != nil {
		writeError(c, err)
		return
	}
	perms := make([]task.WorkerPermission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, task.WorkerPermission(p))
	}
	w := &task.RegisteredWorker{
		Address:     task.Address{IP: req.Address.IP, Port: req.Address.Port},
		Permissions: perms,
	}
	if err := h.coord.RegisterWorker(c.Request.Context(), w); err != nil {
		writeError(c, err)
		return
	}
	addr := net.JoinHostPort(w.Address.IP, strconv.Itoa(w.Address.Port))
	if err := h.notif.Register(w.WorkerID, addr); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// Deregister handles DELETE /registered_workers/{id}.
func (h *WorkerHandlers) Deregister(c *gin.Context) {
	id := c.Param("id")
	if err := h.coord.DeregisterWorker(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	h.notif.Unregister(id)
	c.Status(http.StatusNoContent)
}

// List handles GET /registered_workers, a dashboard/debug convenience.
func (h *WorkerHandlers) List(c *gin.Context) {
	workers, err := h.coord.ListWorkers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, workers)
}
