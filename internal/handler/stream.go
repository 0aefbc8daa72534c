package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/internal/console"
	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/pkg/logger"
	"github.com/capitalize-ai/operator-console/pkg/metrics"
)

// StreamHandler pushes session change notifications to the UI over SSE.
type StreamHandler struct {
	session   *console.Session
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(s *console.Session, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		session:   s,
		logger:    log,
		heartbeat: 30 * time.Second,
	}
}

// Stream handles GET /api/v1/events
// Each event names what changed; the UI re-reads that part of the session.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"session_id":      h.session.ID(),
		"operator_id":     h.session.OperatorID(),
		"conversation_id": h.session.Selected(),
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected")
			return

		case e, ok := <-events:
			if !ok {
				sendSSEEvent(w, flusher, "closed", map[string]string{"session_id": h.session.ID()})
				return
			}
			if err := sendSSEEvent(w, flusher, string(e.Type), e); err != nil {
				h.logger.Warn("failed to write SSE event", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
