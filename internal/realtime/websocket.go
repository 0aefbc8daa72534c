package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the websocket event connection.
type WSConfig struct {
	// URL is the event endpoint. http(s) schemes are rewritten to ws(s).
	URL        string
	OperatorID string
	Token      string
	// HandshakeTimeout defaults to 10s.
	HandshakeTimeout time.Duration
}

// WSTransport receives event frames over a websocket connection.
type WSTransport struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// DialWebSocket opens the operator's event connection at
// <url>?user_id=<operator>.
func DialWebSocket(ctx context.Context, cfg WSConfig) (*WSTransport, error) {
	endpoint, err := EventURL(cfg.URL, cfg.OperatorID)
	if err != nil {
		return nil, err
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &WSTransport{conn: conn}, nil
}

// EventURL builds the event connection address for an operator.
func EventURL(base, operatorID string) (string, error) {
	if operatorID == "" {
		return "", errors.New("operator id is required")
	}
	base = strings.Replace(base, "http://", "ws://", 1)
	base = strings.Replace(base, "https://", "wss://", 1)

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse event url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", operatorID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Receive returns the next text or binary frame. Control frames are handled
// by the connection.
func (t *WSTransport) Receive() ([]byte, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrClosed
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close closes the connection. It is safe to call more than once.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

func (t *WSTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
