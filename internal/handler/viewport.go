package handler

import (
	"context"
	"net/http"

	"github.com/capitalize-ai/operator-console/internal/console"
	"github.com/capitalize-ai/operator-console/internal/viewport"
)

// ViewportHandler relays scroll geometry from the UI to the session.
type ViewportHandler struct {
	session *console.Session
}

// NewViewportHandler creates a new viewport handler.
func NewViewportHandler(s *console.Session) *ViewportHandler {
	return &ViewportHandler{session: s}
}

type viewportResponse struct {
	Loading bool `json:"loading"`
	Follow  bool `json:"follow"`
}

// Scroll handles POST /api/v1/viewport/scroll
func (h *ViewportHandler) Scroll(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, g viewport.Geometry) (viewportResponse, error) {
		started, err := h.session.OnScroll(ctx, g)
		return viewportResponse{Loading: started}, err
	})
}

// ContentChanged handles POST /api/v1/viewport/content
func (h *ViewportHandler) ContentChanged(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, g viewport.Geometry) (viewportResponse, error) {
		follow, err := h.session.OnContentChanged(ctx, g)
		return viewportResponse{Follow: follow}, err
	})
}

// ListScroll handles POST /api/v1/conversations/scroll
func (h *ViewportHandler) ListScroll(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, g viewport.Geometry) (viewportResponse, error) {
		started, err := h.session.OnListScroll(ctx, g)
		return viewportResponse{Loading: started}, err
	})
}

func (h *ViewportHandler) handle(w http.ResponseWriter, r *http.Request, fn func(context.Context, viewport.Geometry) (viewportResponse, error)) {
	var g viewport.Geometry
	if err := decodeJSON(w, r, &g); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := fn(r.Context(), g)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
