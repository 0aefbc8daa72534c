// Package handler provides the local HTTP API the console UI talks to.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/internal/console"
	"github.com/capitalize-ai/operator-console/internal/middleware"
	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	session *console.Session
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(s *console.Session, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		session: s,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations
// Optional ?tab= and ?keyword= switch the visible slice before listing.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if v := q.Get("tab"); v != "" {
		tab, ok := model.ParseTab(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid tab")
			return
		}
		if err := h.session.SetTab(ctx, tab); err != nil {
			h.logger.Error("failed to switch tab", zap.String("tab", string(tab)), zap.Error(err))
			writeServiceError(w, err)
			return
		}
	}

	if q.Has("keyword") {
		if err := h.session.SetKeyword(ctx, q.Get("keyword")); err != nil {
			h.logger.Error("failed to apply keyword", zap.Error(err))
			writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, h.session.Conversations())
}

// LoadMore handles POST /api/v1/conversations/more
func (h *ConversationHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	if err := h.session.LoadMoreConversations(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Conversations())
}

// Refresh handles POST /api/v1/conversations/refresh
func (h *ConversationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RefreshConversations(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Conversations())
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, found := h.session.Conversation(id)
	if !found {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Select handles POST /api/v1/conversations/{id}/select
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.session.Select(r.Context(), id); err != nil {
		// The selection itself has switched; only the history load failed.
		h.logger.Warn("failed to load history", zap.String("conversation_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, h.session.Messages(id))
}

// Deselect handles DELETE /api/v1/selection
func (h *ConversationHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	_ = h.session.Select(r.Context(), "")
	w.WriteHeader(http.StatusNoContent)
}

// Selection handles GET /api/v1/selection
func (h *ConversationHandler) Selection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"conversationId": h.session.Selected()})
}

// Archive handles POST /api/v1/conversations/{id}/archive
func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.session.Archive(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkUnread handles POST /api/v1/conversations/{id}/unread
func (h *ConversationHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.session.MarkUnread(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
