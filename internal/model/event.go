package model

import (
	"encoding/json"
	"time"
)

// EventType is the tag of a live event frame.
type EventType string

const (
	EventTypeChatMessage EventType = "chat-message"
)

// Frame is the wire envelope of a live event.
type Frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
