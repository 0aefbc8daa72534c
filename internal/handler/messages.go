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

// maxImageSize bounds image uploads.
const maxImageSize = 10 << 20

// MessageHandler handles message endpoints.
type MessageHandler struct {
	session *console.Session
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(s *console.Session, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		session: s,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.session.Messages(id))
}

// LoadMore handles POST /api/v1/conversations/{id}/messages/more
func (h *MessageHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.session.LoadMoreMessages(r.Context(), id); err != nil {
		h.logger.Error("failed to load history", zap.String("conversation_id", id), zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Messages(id))
}

// Send handles POST /api/v1/messages
// The message goes to the selected conversation. The response carries the
// provisional message; its delivery outcome arrives on the event stream.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = model.MessageTypeText
	}

	if err := middleware.ValidateMessageType(req.Type); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.session.SendMessage(req.Type, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}

// SendImage handles POST /api/v1/messages/image
// The multipart "file" field is uploaded first; a failed upload sends
// nothing.
func (h *MessageHandler) SendImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	msg, err := h.session.SendImage(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Warn("image send failed", zap.String("name", header.Filename), zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}

// Resend handles POST /api/v1/conversations/{id}/messages/{token}/resend
func (h *MessageHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	token := chi.URLParam(r, "token")

	msg, err := h.session.Resend(id, token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}
