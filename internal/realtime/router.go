// Package realtime routes live events from the operator's event connection
// to the message cache and the conversation store.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/pkg/logger"
	"github.com/capitalize-ai/operator-console/pkg/metrics"
)

// ErrMalformedFrame is returned for frames that cannot be decoded.
var ErrMalformedFrame = errors.New("malformed event frame")

// ErrClosed is returned by a Transport once it has been closed.
var ErrClosed = errors.New("event transport closed")

// Transport delivers raw event frames in arrival order.
type Transport interface {
	// Receive blocks until the next frame arrives or the transport closes.
	Receive() ([]byte, error)
	Close() error
}

// Messages is the part of the message cache the router writes to.
type Messages interface {
	AppendMessage(conversationID string, msg model.Message) bool
	Has(conversationID string) bool
}

// Conversations is the part of the conversation store the router writes to.
type Conversations interface {
	UpdateConversationSummary(id string, summary model.Summary) bool
	MarkReadLocal(id string) bool
}

// Options configures a Router.
type Options struct {
	// AppendToBackground appends events for a conversation that is not
	// selected to its cached history, if that history was already loaded.
	AppendToBackground bool
	// OnUnknownConversation is called for events about conversations the
	// store does not hold.
	OnUnknownConversation func(conversationID string)
	// OnRouted is called after an event has been applied.
	OnRouted func(conversationID string)
}

// Router applies chat-message events against the live selection.
type Router struct {
	selection     *Selection
	messages      Messages
	conversations Conversations
	opts          Options
	logger        *logger.Logger
}

// NewRouter creates a router reading the selection from sel.
func NewRouter(sel *Selection, msgs Messages, convs Conversations, opts Options, log *logger.Logger) *Router {
	if opts.OnUnknownConversation == nil {
		opts.OnUnknownConversation = func(string) {}
	}
	if opts.OnRouted == nil {
		opts.OnRouted = func(string) {}
	}
	return &Router{
		selection:     sel,
		messages:      msgs,
		conversations: convs,
		opts:          opts,
		logger:        log.Named("realtime"),
	}
}

// Run pumps frames from t until it closes or ctx is done. Malformed frames
// are logged and dropped. No reconnect is attempted; Run returns nil when
// the transport closes or ctx is cancelled.
func (r *Router) Run(ctx context.Context, t Transport) error {
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	for {
		frame, err := t.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				r.logger.Info("event transport closed")
				return nil
			}
			r.logger.Info("event transport failed", zap.Error(err))
			return fmt.Errorf("event transport: %w", err)
		}
		if err := r.Handle(frame); err != nil {
			metrics.RealtimeFramesDropped.Inc()
			r.logger.Warn("dropping event frame", zap.Error(err), zap.Int("size", len(frame)))
		}
	}
}

// Handle decodes and applies a single frame. Frames with an unknown type
// are ignored.
func (r *Router) Handle(frame []byte) error {
	var f model.Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	switch f.Type {
	case model.EventTypeChatMessage:
		return r.handleChatMessage(f.Payload)
	default:
		metrics.RecordRealtimeEvent(string(f.Type), "ignored")
		r.logger.Debug("ignoring event", zap.String("type", string(f.Type)))
		return nil
	}
}

func (r *Router) handleChatMessage(payload json.RawMessage) error {
	var msg model.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	id := msg.ConversationID
	if id == "" {
		return fmt.Errorf("%w: missing conversationId", ErrMalformedFrame)
	}
	msg.Normalize()

	selected := r.selection.Is(id)
	route := "summary"
	switch {
	case selected:
		r.messages.AppendMessage(id, msg)
		r.conversations.MarkReadLocal(id)
		route = "selected"
	case r.opts.AppendToBackground && r.messages.Has(id):
		r.messages.AppendMessage(id, msg)
		route = "background"
	}

	summary := model.Summary{LastMessage: msg.Content, Status: statusAfter(msg)}
	if !selected {
		unread := true
		summary.Unread = &unread
	}
	if !r.conversations.UpdateConversationSummary(id, summary) {
		r.logger.Debug("event for unknown conversation", zap.String("conversation_id", id))
		r.opts.OnUnknownConversation(id)
	}

	metrics.RecordRealtimeEvent(string(model.EventTypeChatMessage), route)
	r.opts.OnRouted(id)
	return nil
}

// statusAfter is the conversation status implied by a new message: a guest
// message awaits a reply, an operator message answers it.
func statusAfter(msg model.Message) *model.Status {
	s := model.StatusUnreplied
	if msg.AuthorKind == model.AuthorOperator {
		s = model.StatusReplied
	}
	return &s
}
