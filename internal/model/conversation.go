// Package model defines data structures for the operator console.
package model

import (
	"time"
)

// Status is the lifecycle status of a conversation.
type Status int

const (
	StatusUnreplied Status = 0
	StatusReplied   Status = 1
	StatusClosed    Status = 2
	StatusArchived  Status = 3
)

// IsActive reports whether a conversation with this status belongs to the
// eagerly loaded active set.
func (s Status) IsActive() bool {
	return s < StatusClosed
}

// String returns the display label for the status.
func (s Status) String() string {
	switch s {
	case StatusUnreplied:
		return "unreplied"
	case StatusReplied:
		return "replied"
	case StatusClosed:
		return "closed"
	case StatusArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// Conversation represents a conversation thread with a guest.
type Conversation struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	IsUnread      bool      `json:"isUnread"`
	GuestID       string    `json:"guestId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
}

// Tab selects which slice of conversations the sidebar shows.
type Tab string

const (
	TabAll       Tab = "all"
	TabUnreplied Tab = "unreplied"
	TabReplied   Tab = "replied"
	TabClosed    Tab = "closed"
)

// ParseTab maps a query value to a tab, accepting both names and the legacy
// numeric values ("-1", "0", "1", "2").
func ParseTab(v string) (Tab, bool) {
	switch v {
	case "", "all", "-1":
		return TabAll, true
	case "unreplied", "0":
		return TabUnreplied, true
	case "replied", "1":
		return TabReplied, true
	case "closed", "2":
		return TabClosed, true
	default:
		return "", false
	}
}

// Paginated reports whether the tab is served by the paginated closed list.
func (t Tab) Paginated() bool {
	return t == TabClosed
}

// ConversationPatch carries the fields of a partial conversation update.
type ConversationPatch struct {
	Status   *Status `json:"status,omitempty"`
	IsUnread *bool   `json:"isUnread,omitempty"`
}

// Summary is the last-activity update applied to a conversation row.
type Summary struct {
	LastMessage string
	Status      *Status
	Unread      *bool
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Tab           Tab            `json:"tab"`
	HasMore       bool           `json:"has_more"`
	Loading       bool           `json:"loading"`
	UnreadCount   int            `json:"unread_count"`
}
