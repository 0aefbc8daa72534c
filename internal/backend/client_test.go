package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/pkg/logger"
)

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": status, "data": data, "message": ""})
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Token: "tok"}, logger.NewNop())
}

func TestFetchConversations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/conversation", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "<2", r.URL.Query().Get("status"))
		assert.Equal(t, "-1", r.URL.Query().Get("pageSize"))
		assert.False(t, r.URL.Query().Has("keyword"), "empty params are dropped")
		writeEnvelope(w, 0, map[string]any{
			"list": []map[string]any{
				{"id": "c1", "name": "Alice", "status": 0, "isUnread": true},
				{"id": "c2", "name": "Bob", "status": 1},
			},
		})
	})

	list, err := c.FetchConversations(context.Background(), ConversationFilter{Status: "<2"}, 1, -1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[0].Name)
	assert.True(t, list[0].IsUnread)
	assert.Equal(t, model.StatusReplied, list[1].Status)
}

func TestFetchMessagesNormalizes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c1", r.URL.Query().Get("conversationId"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		writeEnvelope(w, 0, map[string]any{
			"list": []map[string]any{
				{"id": 7, "type": "text", "content": "hello", "guestId": "g1"},
				{"id": 8, "type": "image", "content": "https://img", "userId": "op"},
			},
		})
	})

	msgs, err := c.FetchMessages(context.Background(), "c1", 2, 15)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.MessageID("7"), msgs[0].ID)
	assert.Equal(t, "c1", msgs[0].ConversationID)
	assert.Equal(t, model.AuthorGuest, msgs[0].AuthorKind)
	assert.Equal(t, model.AuthorOperator, msgs[1].AuthorKind)
	assert.Equal(t, model.DeliverySent, msgs[1].DeliveryState)
}

func TestSendMessage(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c1", body["conversationId"])
		assert.Equal(t, "text", body["type"])
		assert.Equal(t, "hi", body["content"])
		writeEnvelope(w, 0, map[string]any{"id": 42, "created_at": created})
	})

	receipt, err := c.SendMessage(context.Background(), "c1", model.MessageTypeText, "hi")
	require.NoError(t, err)
	assert.Equal(t, model.MessageID("42"), receipt.ID)
	assert.True(t, created.Equal(receipt.CreatedAt))
}

func TestSendMessageWithoutIDFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, map[string]any{})
	})

	_, err := c.SendMessage(context.Background(), "c1", model.MessageTypeText, "hi")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
}

func TestEnvelopeErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": 10001, "message": "conversation locked"})
	})

	err := c.UpdateConversation(context.Background(), "c1", model.ConversationPatch{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 10001, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "conversation locked")
}

func TestHTTPErrorWithoutEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.CountConversations(context.Background(), CountFilter{TaskID: "t1"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus)
}

func TestUpdateConversationBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/chat/conversation/c9", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"status":3}`, string(raw))
		writeEnvelope(w, 0, nil)
	})

	archived := model.StatusArchived
	require.NoError(t, c.UpdateConversation(context.Background(), "c9", model.ConversationPatch{Status: &archived}))
}

func TestCountConversations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "t1", r.URL.Query().Get("taskId"))
		writeEnvelope(w, 0, map[string]int{"count": 12})
	})

	n, err := c.CountConversations(context.Background(), CountFilter{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestUploadImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "cat.png", header.Filename)
		assert.Equal(t, "PNGDATA", string(data))
		writeEnvelope(w, 0, map[string]string{"url": "https://cdn/cat.png"})
	})

	u, err := c.UploadImage(context.Background(), "cat.png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/cat.png", u)
}

func TestGetTask(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/task/t1", r.URL.Path)
		writeEnvelope(w, 0, map[string]any{"id": "t1", "status": "processing", "phoneCount": 10})
	})

	task, err := c.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskProcessing, task.Status)
	assert.Equal(t, 10, task.PhoneCount)
}

func TestOperatorFromToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "op-7"})
	signed, err := token.SignedString([]byte("whatever"))
	require.NoError(t, err)

	id, err := OperatorFromToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "op-7", id)

	_, err = OperatorFromToken("not-a-jwt")
	assert.Error(t, err)

	empty, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = OperatorFromToken(empty)
	assert.Error(t, err)
}
