package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventURL(t *testing.T) {
	u, err := EventURL("https://events.example.com/ws?v=2", "op 7")
	require.NoError(t, err)
	assert.Equal(t, "wss://events.example.com/ws?user_id=op+7&v=2", u)

	_, err = EventURL("ws://localhost", "")
	assert.Error(t, err)
}

func TestWSTransportReceivesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "op-1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat-message","payload":{}}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	tr, err := DialWebSocket(context.Background(), WSConfig{URL: srv.URL, OperatorID: "op-1", Token: "tok"})
	require.NoError(t, err)
	defer tr.Close()

	frame, err := tr.Receive()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat-message","payload":{}}`, string(frame))

	_, err = tr.Receive()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWSTransportCloseUnblocksReceive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr, err := DialWebSocket(context.Background(), WSConfig{URL: srv.URL, OperatorID: "op-1"})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := tr.Receive()
		errc <- err
	}()
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, <-errc, ErrClosed)
	assert.NoError(t, tr.Close())
}
