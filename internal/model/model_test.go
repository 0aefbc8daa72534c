package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIDAcceptsNumbersAndStrings(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":42,"conversationId":"c1","content":"hi"}`), &m))
	assert.Equal(t, MessageID("42"), m.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"tmp-abc"}`), &m))
	assert.Equal(t, MessageID("tmp-abc"), m.ID)
	assert.True(t, m.ID.Provisional())

	require.NoError(t, json.Unmarshal([]byte(`{"id":null}`), &m))
	assert.Equal(t, MessageID(""), m.ID)

	assert.Error(t, json.Unmarshal([]byte(`{"id":true}`), &m))
}

func TestDeliveryStateTransitions(t *testing.T) {
	assert.True(t, DeliverySending.CanTransition(DeliverySent))
	assert.True(t, DeliverySending.CanTransition(DeliveryFailed))
	assert.True(t, DeliveryFailed.CanTransition(DeliverySending))

	assert.False(t, DeliverySent.CanTransition(DeliverySending))
	assert.False(t, DeliverySent.CanTransition(DeliveryFailed))
	assert.False(t, DeliveryFailed.CanTransition(DeliverySent))
	assert.False(t, DeliverySending.CanTransition(DeliverySending))
}

func TestNormalize(t *testing.T) {
	m := Message{UserID: "op-1"}
	m.Normalize()
	assert.Equal(t, AuthorOperator, m.AuthorKind)
	assert.Equal(t, MessageTypeText, m.Type)
	assert.Equal(t, DeliverySent, m.DeliveryState)

	g := Message{GuestID: "g-1", Type: MessageTypeImage, DeliveryState: DeliveryFailed}
	g.Normalize()
	assert.Equal(t, AuthorGuest, g.AuthorKind)
	assert.Equal(t, MessageTypeImage, g.Type)
	assert.Equal(t, DeliveryFailed, g.DeliveryState)
}

func TestParseTab(t *testing.T) {
	tests := map[string]Tab{
		"":          TabAll,
		"-1":        TabAll,
		"0":         TabUnreplied,
		"replied":   TabReplied,
		"2":         TabClosed,
		"closed":    TabClosed,
		"unreplied": TabUnreplied,
	}
	for in, want := range tests {
		got, ok := ParseTab(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseTab("3")
	assert.False(t, ok)
	assert.True(t, TabClosed.Paginated())
	assert.False(t, TabAll.Paginated())
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusUnreplied.IsActive())
	assert.True(t, StatusReplied.IsActive())
	assert.False(t, StatusClosed.IsActive())
	assert.False(t, StatusArchived.IsActive())
	assert.Equal(t, "archived", StatusArchived.String())
}

func TestNewTaskProgress(t *testing.T) {
	p := NewTaskProgress(Task{ID: "t1", Status: TaskProcessing, PhoneCount: 3}, 2)
	assert.Equal(t, 67, p.Percent)
	assert.Equal(t, 2, p.SuccessCount)

	empty := NewTaskProgress(Task{ID: "t2", Status: TaskPending}, 5)
	assert.Equal(t, 0, empty.Percent)

	assert.True(t, TaskCancelled.Terminal())
	assert.False(t, TaskProcessing.Terminal())
}
