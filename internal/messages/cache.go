// Package messages caches conversation history per conversation and tracks
// optimistic sends until the backend confirms or rejects them.
package messages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/internal/pager"
	"github.com/capitalize-ai/operator-console/pkg/logger"
	"github.com/capitalize-ai/operator-console/pkg/metrics"
)

// DefaultPageSize is the history page size.
const DefaultPageSize = 15

var (
	// ErrEmptyContent is returned when a send has nothing to deliver.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrNoConversation is returned when no conversation id was given.
	ErrNoConversation = errors.New("no conversation selected")
	// ErrUploadFailed aborts an image send before any message is created.
	ErrUploadFailed = errors.New("image upload failed")
	// ErrSendFailed marks a message the backend did not accept.
	ErrSendFailed = errors.New("message send failed")
	// ErrNotResendable is returned when resending a message that has not failed.
	ErrNotResendable = errors.New("message is not in a failed state")
	// ErrUnknownMessage is returned for tokens the cache does not hold.
	ErrUnknownMessage = errors.New("unknown message")
)

// Backend is the part of the messaging backend the cache calls.
type Backend interface {
	FetchMessages(ctx context.Context, conversationID string, page, pageSize int) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID string, msgType model.MessageType, content string) (model.Receipt, error)
}

// Uploader stores image attachments and returns their public URL.
type Uploader interface {
	UploadImage(ctx context.Context, name string, r io.Reader) (string, error)
}

// Options configures a Cache.
type Options struct {
	PageSize int
	// OperatorID is stamped on outgoing messages.
	OperatorID string
	Now        func() time.Time
	NewToken   func() string
	// OnChange is called after a conversation's messages change. It must not
	// block.
	OnChange func(conversationID string)
}

type historyPager = pager.Pager[model.Message, string]

// Cache holds one paginated history per conversation.
type Cache struct {
	backend  Backend
	uploader Uploader
	opts     Options
	logger   *logger.Logger

	mu      sync.Mutex
	entries map[string]*historyPager
}

// NewCache creates an empty cache. Entries are created on first use.
func NewCache(b Backend, u Uploader, opts Options, log *logger.Logger) *Cache {
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewToken == nil {
		opts.NewToken = uuid.NewString
	}
	if opts.OnChange == nil {
		opts.OnChange = func(string) {}
	}
	return &Cache{
		backend:  b,
		uploader: u,
		opts:     opts,
		logger:   log.Named("messages"),
		entries:  make(map[string]*historyPager),
	}
}

func (c *Cache) entry(conversationID string, create bool) *historyPager {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[conversationID]
	if !ok && create {
		p = pager.New(c.backend.FetchMessages, conversationID, pager.Options{
			Name:      "messages",
			PageSize:  c.opts.PageSize,
			Direction: pager.Prepend,
		}, c.logger)
		c.entries[conversationID] = p
	}
	return p
}

// Has reports whether the conversation's history has been materialized.
func (c *Cache) Has(conversationID string) bool {
	return c.entry(conversationID, false) != nil
}

// Ensure materializes a conversation on first access by loading its newest
// page of history. It does nothing once a page has been loaded.
func (c *Cache) Ensure(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrNoConversation
	}
	p := c.entry(conversationID, true)
	if p.Snapshot().Initialized {
		return nil
	}
	return c.LoadMore(ctx, conversationID)
}

// LoadMore fetches the next older page and prepends it. Subscribers are
// only notified when a fetch ran.
func (c *Cache) LoadMore(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrNoConversation
	}
	p := c.entry(conversationID, true)
	if !p.Enabled() || !p.HasMore() || p.Loading() {
		return nil
	}
	err := p.LoadMore(ctx)
	// Live messages appended while history was empty may come back in the
	// fetched page; keep the copy at its history position.
	p.Update(dedupe)
	c.opts.OnChange(conversationID)
	return err
}

// Messages returns the conversation's messages in display order.
func (c *Cache) Messages(conversationID string) []model.Message {
	p := c.entry(conversationID, false)
	if p == nil {
		return nil
	}
	return p.Items()
}

// State returns the conversation's cursor and messages.
func (c *Cache) State(conversationID string) pager.State[model.Message] {
	p := c.entry(conversationID, false)
	if p == nil {
		return pager.State[model.Message]{PageSize: c.opts.PageSize, Page: 1, HasMore: true}
	}
	return p.Snapshot()
}

// HasMore reports whether older history may exist.
func (c *Cache) HasMore(conversationID string) bool {
	return c.State(conversationID).HasMore
}

// Loading reports whether a history fetch is in flight.
func (c *Cache) Loading(conversationID string) bool {
	return c.State(conversationID).Loading
}

// AppendMessage adds a just-arrived message at the tail, regardless of the
// pagination state. Messages whose durable id is already cached are
// ignored. It reports whether the message was added.
func (c *Cache) AppendMessage(conversationID string, msg model.Message) bool {
	if conversationID == "" {
		return false
	}
	msg.ConversationID = conversationID
	msg.Normalize()

	added := true
	p := c.entry(conversationID, true)
	p.Update(func(items []model.Message) []model.Message {
		if msg.ID != "" && indexByID(items, msg.ID) >= 0 {
			added = false
			return items
		}
		return append(items, msg)
	})
	if added {
		c.opts.OnChange(conversationID)
	}
	return added
}

// Send enqueues a provisional message and delivers it. The returned message
// is the entry's final state; on failure it is marked failed and the error
// wraps ErrSendFailed.
func (c *Cache) Send(ctx context.Context, conversationID string, msgType model.MessageType, content string) (model.Message, error) {
	msg, err := c.Enqueue(conversationID, msgType, content)
	if err != nil {
		return model.Message{}, err
	}
	return c.Deliver(ctx, conversationID, msg.ClientToken)
}

// Enqueue inserts a provisional message in the sending state at the tail
// and returns it. No network call is made.
func (c *Cache) Enqueue(conversationID string, msgType model.MessageType, content string) (model.Message, error) {
	if conversationID == "" {
		return model.Message{}, ErrNoConversation
	}
	if strings.TrimSpace(content) == "" {
		return model.Message{}, ErrEmptyContent
	}
	if !msgType.Valid() {
		return model.Message{}, fmt.Errorf("unsupported message type %q", msgType)
	}

	token := c.opts.NewToken()
	msg := model.Message{
		ID:             model.MessageID(model.ProvisionalPrefix + token),
		ConversationID: conversationID,
		ClientToken:    token,
		AuthorKind:     model.AuthorOperator,
		Type:           msgType,
		Content:        content,
		UserID:         c.opts.OperatorID,
		CreatedAt:      c.opts.Now(),
		DeliveryState:  model.DeliverySending,
	}
	c.entry(conversationID, true).Insert(msg)
	c.opts.OnChange(conversationID)
	return msg, nil
}

// Deliver writes the sending message identified by token to the backend.
// Success replaces its id, timestamp and state in place; failure marks the
// same entry failed.
func (c *Cache) Deliver(ctx context.Context, conversationID, token string) (model.Message, error) {
	pending, ok := c.find(conversationID, token)
	if !ok {
		return model.Message{}, ErrUnknownMessage
	}
	if pending.DeliveryState != model.DeliverySending {
		return pending, fmt.Errorf("cannot deliver message in state %s", pending.DeliveryState)
	}

	receipt, err := c.backend.SendMessage(ctx, conversationID, pending.Type, pending.Content)
	if err != nil {
		failed, _ := c.transition(conversationID, token, func(m *model.Message) {
			m.DeliveryState = model.DeliveryFailed
		})
		metrics.RecordSend(string(pending.Type), string(model.DeliveryFailed))
		c.logger.Warn("message send failed",
			zap.String("conversation_id", conversationID),
			zap.String("client_token", token),
			zap.Error(err),
		)
		return failed, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	sent, _ := c.transition(conversationID, token, func(m *model.Message) {
		m.ID = receipt.ID
		if !receipt.CreatedAt.IsZero() {
			m.CreatedAt = receipt.CreatedAt
		}
		m.DeliveryState = model.DeliverySent
	})
	metrics.RecordSend(string(pending.Type), string(model.DeliverySent))
	return sent, nil
}

// Resend moves a failed message back to sending and delivers it again.
func (c *Cache) Resend(ctx context.Context, conversationID, token string) (model.Message, error) {
	if _, err := c.Retry(conversationID, token); err != nil {
		return model.Message{}, err
	}
	return c.Deliver(ctx, conversationID, token)
}

// Retry moves a failed message back to sending without delivering it.
func (c *Cache) Retry(conversationID, token string) (model.Message, error) {
	msg, ok := c.find(conversationID, token)
	if !ok {
		return model.Message{}, ErrUnknownMessage
	}
	if !msg.DeliveryState.CanTransition(model.DeliverySending) {
		return msg, ErrNotResendable
	}
	retried, _ := c.transition(conversationID, token, func(m *model.Message) {
		m.DeliveryState = model.DeliverySending
	})
	return retried, nil
}

// UploadImage uploads an attachment for an image send. Any failure, or an
// empty URL, is reported as ErrUploadFailed.
func (c *Cache) UploadImage(ctx context.Context, name string, r io.Reader) (string, error) {
	if c.uploader == nil {
		return "", ErrUploadFailed
	}
	u, err := c.uploader.UploadImage(ctx, name, r)
	if err != nil {
		c.logger.Warn("image upload failed", zap.String("name", name), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	if u == "" {
		return "", ErrUploadFailed
	}
	return u, nil
}

// SendImage uploads an image and sends its URL as an image message. A failed
// upload aborts before any message is created.
func (c *Cache) SendImage(ctx context.Context, conversationID, name string, r io.Reader) (model.Message, error) {
	if conversationID == "" {
		return model.Message{}, ErrNoConversation
	}
	u, err := c.UploadImage(ctx, name, r)
	if err != nil {
		return model.Message{}, err
	}
	return c.Send(ctx, conversationID, model.MessageTypeImage, u)
}

func (c *Cache) find(conversationID, token string) (model.Message, bool) {
	for _, m := range c.Messages(conversationID) {
		if m.ClientToken == token {
			return m, true
		}
	}
	return model.Message{}, false
}

// transition applies fn to the message with token if its delivery state
// allows the resulting state. A message that the live feed already delivered
// under the new durable id is dropped so only one copy stays visible.
func (c *Cache) transition(conversationID, token string, fn func(m *model.Message)) (model.Message, bool) {
	p := c.entry(conversationID, false)
	if p == nil {
		return model.Message{}, false
	}

	var out model.Message
	found := false
	p.Update(func(items []model.Message) []model.Message {
		i := indexByToken(items, token)
		if i < 0 {
			return items
		}
		next := items[i]
		fn(&next)
		if next.DeliveryState != items[i].DeliveryState && !items[i].DeliveryState.CanTransition(next.DeliveryState) {
			return items
		}
		items[i] = next
		out, found = next, true

		if next.ID != "" && !next.ID.Provisional() {
			for j := len(items) - 1; j >= 0; j-- {
				if j != i && items[j].ID == next.ID {
					items = append(items[:j], items[j+1:]...)
				}
			}
		}
		return items
	})
	if found {
		c.opts.OnChange(conversationID)
	}
	return out, found
}

func indexByToken(items []model.Message, token string) int {
	for i, m := range items {
		if m.ClientToken == token {
			return i
		}
	}
	return -1
}

func indexByID(items []model.Message, id model.MessageID) int {
	for i, m := range items {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// dedupe drops later copies of messages sharing a durable id.
func dedupe(items []model.Message) []model.Message {
	seen := make(map[model.MessageID]struct{}, len(items))
	out := items[:0]
	for _, m := range items {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}

// History is one conversation's history viewed as a paginated source.
type History struct {
	cache          *Cache
	conversationID string
}

// History binds the cache to a conversation.
func (c *Cache) History(conversationID string) History {
	return History{cache: c, conversationID: conversationID}
}

// HasMore reports whether older history may exist.
func (h History) HasMore() bool { return h.cache.HasMore(h.conversationID) }

// Loading reports whether a history fetch is in flight.
func (h History) Loading() bool { return h.cache.Loading(h.conversationID) }

// LoadMore loads the next older page.
func (h History) LoadMore(ctx context.Context) error {
	return h.cache.LoadMore(ctx, h.conversationID)
}
