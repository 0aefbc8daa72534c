// Package backend provides the HTTP client for the messaging backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/pkg/logger"
	"github.com/capitalize-ai/operator-console/pkg/metrics"
	"github.com/capitalize-ai/operator-console/pkg/tracing"
)

// statusSuccess is the envelope status of a successful call.
const statusSuccess = 0

// Config holds backend client configuration.
type Config struct {
	BaseURL string
	// Token is the operator access token sent as a bearer credential.
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default client when set.
	HTTPClient *http.Client
}

// Client talks to the messaging backend REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a backend client.
func New(cfg Config, log *logger.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 50 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     log.Named("backend"),
	}
}

// envelope is the response wrapper used by every backend endpoint.
type envelope struct {
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// APIError is returned when the backend rejects a call.
type APIError struct {
	Op         string
	HTTPStatus int
	Status     int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend error (http %d, status %d)", e.Op, e.HTTPStatus, e.Status)
	}
	return fmt.Sprintf("%s: %s (http %d, status %d)", e.Op, e.Message, e.HTTPStatus, e.Status)
}

// listData is the payload of list endpoints.
type listData[T any] struct {
	List  []T `json:"list"`
	Total int `json:"total,omitempty"`
}

// ConversationFilter narrows a conversation listing. Status is a backend
// filter expression such as "<2", ">=2" or "3".
type ConversationFilter struct {
	Status  string
	Keyword string
}

// CountFilter narrows a conversation count.
type CountFilter struct {
	Status string
	TaskID string
}

// FetchConversations returns one page of conversations.
func (c *Client) FetchConversations(ctx context.Context, filter ConversationFilter, page, pageSize int) ([]model.Conversation, error) {
	q := cleanParams(map[string]string{
		"status":   filter.Status,
		"keyword":  filter.Keyword,
		"page":     strconv.Itoa(page),
		"pageSize": strconv.Itoa(pageSize),
	})

	var data listData[model.Conversation]
	if err := c.do(ctx, "fetch_conversations", http.MethodGet, "/chat/conversation", q, nil, "", &data); err != nil {
		return nil, err
	}
	return data.List, nil
}

// CountConversations returns the number of conversations matching filter.
func (c *Client) CountConversations(ctx context.Context, filter CountFilter) (int, error) {
	q := cleanParams(map[string]string{
		"status": filter.Status,
		"taskId": filter.TaskID,
	})

	var data struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, "count_conversations", http.MethodGet, "/chat/conversation/count", q, nil, "", &data); err != nil {
		return 0, err
	}
	return data.Count, nil
}

// UpdateConversation applies a partial update to a conversation.
func (c *Client) UpdateConversation(ctx context.Context, id string, patch model.ConversationPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal patch: %w", err)
	}
	path := "/chat/conversation/" + url.PathEscape(id)
	return c.do(ctx, "update_conversation", http.MethodPut, path, nil, bytes.NewReader(body), "application/json", nil)
}

// FetchMessages returns one page of a conversation's history. Page 1 is the
// newest page; items inside a page are ordered oldest first.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, page, pageSize int) ([]model.Message, error) {
	q := cleanParams(map[string]string{
		"conversationId": conversationID,
		"page":           strconv.Itoa(page),
		"pageSize":       strconv.Itoa(pageSize),
	})

	var data listData[model.Message]
	if err := c.do(ctx, "fetch_messages", http.MethodGet, "/message", q, nil, "", &data); err != nil {
		return nil, err
	}
	for i := range data.List {
		if data.List[i].ConversationID == "" {
			data.List[i].ConversationID = conversationID
		}
		data.List[i].Normalize()
	}
	return data.List, nil
}

// SendMessage writes an operator message and returns its durable identity.
func (c *Client) SendMessage(ctx context.Context, conversationID string, msgType model.MessageType, content string) (model.Receipt, error) {
	body, err := json.Marshal(map[string]string{
		"conversationId": conversationID,
		"type":           string(msgType),
		"content":        content,
	})
	if err != nil {
		return model.Receipt{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	var receipt model.Receipt
	if err := c.do(ctx, "send_message", http.MethodPost, "/message", nil, bytes.NewReader(body), "application/json", &receipt); err != nil {
		return model.Receipt{}, err
	}
	if receipt.ID == "" {
		return model.Receipt{}, &APIError{Op: "send_message", HTTPStatus: http.StatusOK, Message: "response carried no message id"}
	}
	return receipt, nil
}

// UploadImage uploads an attachment and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, name string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to read attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	var data struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, "upload_image", http.MethodPost, "/upload", nil, &buf, mw.FormDataContentType(), &data); err != nil {
		return "", err
	}
	return data.URL, nil
}

// GetTask returns a bulk task by id.
func (c *Client) GetTask(ctx context.Context, id string) (model.Task, error) {
	var task model.Task
	if err := c.do(ctx, "get_task", http.MethodGet, "/task/"+url.PathEscape(id), nil, nil, "", &task); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string, out any) (err error) {
	ctx, span := tracing.Start(ctx, "backend."+op,
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)
	start := time.Now()
	defer func() {
		metrics.RecordBackendCall(op, err, time.Since(start).Seconds())
		tracing.End(span, err)
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: execute request: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Op: op, HTTPStatus: resp.StatusCode, Status: -1, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("%s: unmarshal response: %w", op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || env.Status != statusSuccess {
		c.logger.Warn("backend call rejected",
			zap.String("op", op),
			zap.Int("http_status", resp.StatusCode),
			zap.Int("status", env.Status),
			zap.String("message", env.Message),
		)
		return &APIError{Op: op, HTTPStatus: resp.StatusCode, Status: env.Status, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: unmarshal data: %w", op, err)
		}
	}
	return nil
}

// cleanParams drops empty values so the backend does not filter on them.
func cleanParams(params map[string]string) url.Values {
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}
