// Package console ties the conversation store, message cache, live event
// router and pollers into one operator session.
package console

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/internal/conversation"
	"github.com/capitalize-ai/operator-console/internal/messages"
	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/internal/poller"
	"github.com/capitalize-ai/operator-console/internal/realtime"
	"github.com/capitalize-ai/operator-console/internal/viewport"
	"github.com/capitalize-ai/operator-console/pkg/logger"
)

// ErrClosed is returned by sends started after Close.
var ErrClosed = errors.New("session closed")

// Backend is everything a session needs from the messaging backend.
type Backend interface {
	conversation.Backend
	messages.Backend
	messages.Uploader
	poller.TaskSource
}

// Options configures a Session.
type Options struct {
	OperatorID string
	// PersistRead writes the read flag to the backend when a conversation
	// is opened, in addition to clearing it locally.
	PersistRead bool
	// AppendToBackground lets live events extend the loaded history of
	// conversations that are not open.
	AppendToBackground bool
	MessagePageSize    int
	ClosedPageSize     int
	TaskPollInterval   time.Duration
}

// Session is the synchronization state of one operator console.
type Session struct {
	id       string
	backend  Backend
	opts     Options
	logger   *logger.Logger
	store    *conversation.Store
	cache    *messages.Cache
	selected *realtime.Selection
	router   *realtime.Router
	history  *viewport.Controller
	list     *viewport.Controller
	hub      *hub

	bg         context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	refreshing atomic.Bool

	mu     sync.Mutex
	closed bool
	tasks  map[string]*poller.TaskProgress
}

// New creates a session. Nothing is fetched until Start.
func New(b Backend, opts Options, log *logger.Logger) *Session {
	id := uuid.NewString()
	log = log.WithSession(id, opts.OperatorID).Named("console")

	s := &Session{
		id:       id,
		backend:  b,
		opts:     opts,
		logger:   log,
		selected: &realtime.Selection{},
		hub:      newHub(),
		tasks:    make(map[string]*poller.TaskProgress),
	}
	s.bg, s.cancel = context.WithCancel(context.Background())

	s.store = conversation.NewStore(b, conversation.Options{
		ClosedPageSize: opts.ClosedPageSize,
		Selected:       s.selected.Get,
	}, log)
	s.cache = messages.NewCache(b, b, messages.Options{
		PageSize:   opts.MessagePageSize,
		OperatorID: opts.OperatorID,
		OnChange: func(id string) {
			s.hub.publish(Event{Type: EventMessages, ConversationID: id})
		},
	}, log)
	s.router = realtime.NewRouter(s.selected, s.cache, s.store, realtime.Options{
		AppendToBackground:    opts.AppendToBackground,
		OnUnknownConversation: s.refreshInBackground,
		OnRouted:              s.publishConversations,
	}, log)
	s.history = viewport.New(nil, viewport.Top, viewport.Thresholds{})
	s.list = viewport.New(s.store, viewport.Bottom, viewport.Thresholds{})
	return s
}

// ID returns the session's correlation id.
func (s *Session) ID() string { return s.id }

// OperatorID returns the operator the session acts for.
func (s *Session) OperatorID() string { return s.opts.OperatorID }

// Start loads the active conversations.
func (s *Session) Start(ctx context.Context) error {
	if err := s.store.LoadActive(ctx); err != nil {
		return err
	}
	s.publishConversations("")
	return nil
}

// Run routes live events from t until it closes or ctx is done.
func (s *Session) Run(ctx context.Context, t realtime.Transport) error {
	return s.router.Run(ctx, t)
}

// Close stops pollers and background sends, and ends every subscription.
// No background work starts after it returns.
func (s *Session) Close() {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	tasks := make([]*poller.TaskProgress, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	for _, t := range tasks {
		t.Stop()
	}
	s.wg.Wait()
	s.hub.close()
}

// Subscribe returns a channel of change notifications and a function that
// ends the subscription.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.hub.subscribe()
}

// Conversations returns the visible conversation list.
func (s *Session) Conversations() model.ListConversationsResponse {
	return model.ListConversationsResponse{
		Conversations: s.store.List(),
		Tab:           s.store.Tab(),
		HasMore:       s.store.HasMore(),
		Loading:       s.store.Loading(),
		UnreadCount:   s.store.UnreadCount(),
	}
}

// Conversation looks a conversation up by id.
func (s *Session) Conversation(id string) (model.Conversation, bool) {
	return s.store.Get(id)
}

// SetTab switches the conversation tab.
func (s *Session) SetTab(ctx context.Context, tab model.Tab) error {
	err := s.store.SetTab(ctx, tab)
	s.publishConversations("")
	return err
}

// SetKeyword changes the conversation search keyword.
func (s *Session) SetKeyword(ctx context.Context, keyword string) error {
	err := s.store.SetKeyword(ctx, keyword)
	s.publishConversations("")
	return err
}

// LoadMoreConversations loads the next page of the visible tab.
func (s *Session) LoadMoreConversations(ctx context.Context) error {
	err := s.store.LoadMore(ctx)
	s.publishConversations("")
	return err
}

// RefreshConversations refetches the visible tab. It is the manual
// fallback for events missed while the live connection was down.
func (s *Session) RefreshConversations(ctx context.Context) error {
	var err error
	if s.store.Tab().Paginated() {
		err = s.store.RefreshClosed(ctx)
	} else {
		err = s.store.RefreshActive(ctx)
	}
	s.publishConversations("")
	return err
}

// Archive archives a conversation. An archived open conversation stays
// selected until another is chosen.
func (s *Session) Archive(ctx context.Context, id string) error {
	if err := s.store.ArchiveConversation(ctx, id); err != nil {
		return err
	}
	s.publishConversations(id)
	return nil
}

// MarkUnread flags a conversation unread on the backend.
func (s *Session) MarkUnread(ctx context.Context, id string) error {
	if err := s.store.MarkUnreadPersisted(ctx, id); err != nil {
		return err
	}
	s.publishConversations(id)
	return nil
}

// Select opens a conversation. The selection is switched before any I/O so
// live events are routed against it immediately. An empty id clears the
// selection.
func (s *Session) Select(ctx context.Context, id string) error {
	s.selected.Set(id)
	if id == "" {
		s.history.SetLoader(nil)
		s.publishConversations("")
		return nil
	}

	s.store.MarkReadLocal(id)
	if s.opts.PersistRead {
		if err := s.store.PersistRead(ctx, id); err != nil && !errors.Is(err, conversation.ErrNotFound) {
			s.logger.Warn("failed to persist read state", zap.String("conversation_id", id), zap.Error(err))
		}
	}
	s.history.SetLoader(s.cache.History(id))
	s.publishConversations(id)

	return s.cache.Ensure(ctx, id)
}

// Selected returns the open conversation id.
func (s *Session) Selected() string {
	return s.selected.Get()
}

// Messages returns a conversation's cached history.
func (s *Session) Messages(id string) model.ListMessagesResponse {
	state := s.cache.State(id)
	msgs := state.Items
	if msgs == nil {
		msgs = []model.Message{}
	}
	return model.ListMessagesResponse{Messages: msgs, HasMore: state.HasMore, Loading: state.Loading}
}

// LoadMoreMessages loads older history for a conversation.
func (s *Session) LoadMoreMessages(ctx context.Context, id string) error {
	return s.cache.LoadMore(ctx, id)
}

// SendMessage sends to the open conversation. The provisional message is
// returned at once; delivery continues in the background and its outcome
// is published as a messages event.
func (s *Session) SendMessage(msgType model.MessageType, content string) (model.Message, error) {
	if s.isClosed() {
		return model.Message{}, ErrClosed
	}
	id := s.selected.Get()
	msg, err := s.cache.Enqueue(id, msgType, content)
	if err != nil {
		return model.Message{}, err
	}

	replied := model.StatusReplied
	s.store.UpdateConversationSummary(id, model.Summary{LastMessage: content, Status: &replied})
	s.publishConversations(id)

	s.deliver(id, msg.ClientToken)
	return msg, nil
}

// SendImage uploads an image and sends it to the open conversation. A failed
// upload creates no message.
func (s *Session) SendImage(ctx context.Context, name string, r io.Reader) (model.Message, error) {
	if s.isClosed() {
		return model.Message{}, ErrClosed
	}
	if s.selected.Get() == "" {
		return model.Message{}, messages.ErrNoConversation
	}
	u, err := s.cache.UploadImage(ctx, name, r)
	if err != nil {
		return model.Message{}, err
	}
	return s.SendMessage(model.MessageTypeImage, u)
}

// Resend retries a failed message in the background.
func (s *Session) Resend(conversationID, token string) (model.Message, error) {
	if s.isClosed() {
		return model.Message{}, ErrClosed
	}
	msg, err := s.cache.Retry(conversationID, token)
	if err != nil {
		return msg, err
	}
	s.deliver(conversationID, token)
	return msg, nil
}

func (s *Session) deliver(conversationID, token string) {
	started := s.goBackground(func() {
		// Failures are recorded on the message itself.
		_, _ = s.cache.Deliver(s.bg, conversationID, token)
	})
	if !started {
		s.logger.Warn("session closed before delivery", zap.String("conversation_id", conversationID))
	}
}

// goBackground runs fn tracked by Close. It reports false once the session
// is closed.
func (s *Session) goBackground(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// OnScroll feeds a message viewport scroll position. It reports whether
// older history started loading.
func (s *Session) OnScroll(ctx context.Context, g viewport.Geometry) (bool, error) {
	return s.history.OnScroll(ctx, g)
}

// OnContentChanged feeds the message viewport after it re-rendered. It
// reports whether the view should scroll to the newest message.
func (s *Session) OnContentChanged(ctx context.Context, g viewport.Geometry) (bool, error) {
	return s.history.OnContentChanged(ctx, g)
}

// OnListScroll feeds the conversation list scroll position.
func (s *Session) OnListScroll(ctx context.Context, g viewport.Geometry) (bool, error) {
	started, err := s.list.OnScroll(ctx, g)
	if started {
		s.publishConversations("")
	}
	return started, err
}

// WatchTask starts polling a bulk task's progress, or returns the poller
// already watching it.
func (s *Session) WatchTask(taskID string) *poller.TaskProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[taskID]; ok {
		return t
	}
	t := poller.NewTaskProgress(s.backend, taskID, s.opts.TaskPollInterval, func(p model.TaskProgress) {
		s.hub.publish(Event{Type: EventTaskProgress, TaskID: taskID, Progress: &p})
	}, s.logger)
	s.tasks[taskID] = t
	t.Start(s.bg)
	return t
}

// refreshInBackground refetches the active set when an event names a
// conversation the store does not hold, such as a newly opened one.
// Conversations known to be closed or archived never trigger it.
func (s *Session) refreshInBackground(id string) {
	if s.store.Closed(id) {
		return
	}
	if !s.refreshing.CompareAndSwap(false, true) {
		return
	}
	started := s.goBackground(func() {
		defer s.refreshing.Store(false)
		if err := s.store.RefreshActive(s.bg); err != nil {
			s.logger.Warn("background refresh failed", zap.String("conversation_id", id), zap.Error(err))
			return
		}
		s.publishConversations(id)
	})
	if !started {
		s.refreshing.Store(false)
	}
}

func (s *Session) publishConversations(id string) {
	s.hub.publish(Event{Type: EventConversations, ConversationID: id, UnreadCount: s.store.UnreadCount()})
}
