package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/operator-console/internal/backend"
	"github.com/capitalize-ai/operator-console/internal/console"
	"github.com/capitalize-ai/operator-console/internal/conversation"
	"github.com/capitalize-ai/operator-console/internal/messages"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps a session error to a response.
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, conversation.ErrNotFound), errors.Is(err, messages.ErrUnknownMessage):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, messages.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, messages.ErrNoConversation), errors.Is(err, messages.ErrNotResendable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, messages.ErrUploadFailed), errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, console.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}
