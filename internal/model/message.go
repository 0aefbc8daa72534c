package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AuthorKind identifies who wrote a message.
type AuthorKind string

const (
	AuthorOperator AuthorKind = "operator"
	AuthorGuest    AuthorKind = "guest"
)

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeImage
}

// DeliveryState is the delivery state of an outgoing message.
type DeliveryState string

const (
	DeliverySending DeliveryState = "sending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "failed"
)

// CanTransition reports whether a message may move from s to next.
// Only failed messages may go back to sending.
func (s DeliveryState) CanTransition(next DeliveryState) bool {
	switch s {
	case DeliverySending:
		return next == DeliverySent || next == DeliveryFailed
	case DeliveryFailed:
		return next == DeliverySending
	default:
		return false
	}
}

// MessageID is a message identifier. The backend issues numeric ids while
// provisional ids are strings, so both JSON forms are accepted.
type MessageID string

// UnmarshalJSON accepts a JSON string or number.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid message id %s: %w", data, err)
	}
	*id = MessageID(n.String())
	return nil
}

// ProvisionalPrefix marks client-generated message ids.
const ProvisionalPrefix = "tmp-"

// Provisional reports whether the id was generated locally.
func (id MessageID) Provisional() bool {
	return strings.HasPrefix(string(id), ProvisionalPrefix)
}

// Message represents a conversation message.
type Message struct {
	// Identity
	ID             MessageID `json:"id"`
	ConversationID string    `json:"conversationId"`
	ClientToken    string    `json:"clientToken,omitempty"`

	// Content
	AuthorKind AuthorKind  `json:"authorKind,omitempty"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	GuestID    string      `json:"guestId,omitempty"`
	UserID     string      `json:"userId,omitempty"`

	CreatedAt     time.Time     `json:"createdAt"`
	DeliveryState DeliveryState `json:"status,omitempty"`
}

// Normalize fills fields the backend omits: messages carrying an operator
// user id are operator-authored, and anything fetched or pushed is sent.
func (m *Message) Normalize() {
	if m.AuthorKind == "" {
		if m.UserID != "" {
			m.AuthorKind = AuthorOperator
		} else {
			m.AuthorKind = AuthorGuest
		}
	}
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	if m.DeliveryState == "" {
		m.DeliveryState = DeliverySent
	}
}

// Receipt is the backend acknowledgement of a sent message.
type Receipt struct {
	ID        MessageID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

// ListMessagesResponse is the response for listing cached messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
	Loading  bool      `json:"loading"`
}
