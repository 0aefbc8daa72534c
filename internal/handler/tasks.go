package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/operator-console/internal/console"
	"github.com/capitalize-ai/operator-console/internal/middleware"
	"github.com/capitalize-ai/operator-console/internal/model"
)

// TaskHandler handles bulk task progress endpoints.
type TaskHandler struct {
	session *console.Session
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(s *console.Session) *TaskHandler {
	return &TaskHandler{session: s}
}

// Progress handles GET /api/v1/tasks/{id}/progress
// The first request starts polling; until the first poll completes the
// response is 202 with a pending status.
func (h *TaskHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateTaskID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	progress, ok := h.session.WatchTask(id).Latest()
	if !ok {
		writeJSON(w, http.StatusAccepted, model.TaskProgress{TaskID: id, Status: model.TaskPending})
		return
	}
	writeJSON(w, http.StatusOK, progress)
}
