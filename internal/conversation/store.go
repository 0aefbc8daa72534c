// Package conversation maintains the operator's ordered, filtered list of
// conversations with unread flags and last-message summaries.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/internal/backend"
	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/internal/pager"
	"github.com/capitalize-ai/operator-console/pkg/logger"
	"github.com/capitalize-ai/operator-console/pkg/metrics"
)

const (
	// ActiveFilter selects unreplied and replied conversations.
	ActiveFilter = "<2"
	// ClosedFilter selects closed and archived conversations.
	ClosedFilter = ">=2"

	// DefaultClosedPageSize is the closed tab page size.
	DefaultClosedPageSize = 20
)

// ErrNotFound is returned for ids that are not in the store.
var ErrNotFound = errors.New("conversation not found")

// Backend is the part of the messaging backend the store calls.
type Backend interface {
	FetchConversations(ctx context.Context, filter backend.ConversationFilter, page, pageSize int) ([]model.Conversation, error)
	UpdateConversation(ctx context.Context, id string, patch model.ConversationPatch) error
}

// Options configures a Store.
type Options struct {
	ClosedPageSize int
	// Now stamps summary updates. Defaults to time.Now.
	Now func() time.Time
	// Selected returns the conversation open in the console. A refresh
	// keeps it read.
	Selected func() string
}

// Store holds the active set and the paginated closed list.
type Store struct {
	backend  Backend
	logger   *logger.Logger
	now      func() time.Time
	selected func() string

	mu            sync.RWMutex
	active        []model.Conversation
	activeLoaded  bool
	activeLoading bool
	activeGen     uint64
	tab           model.Tab
	keyword       string
	// archived holds ids archived by this session until a refresh
	// returns them as active again.
	archived map[string]struct{}

	closed *pager.Pager[model.Conversation, backend.ConversationFilter]
}

// NewStore creates a store showing the "all" tab. Nothing is fetched until
// LoadActive or SetTab is called.
func NewStore(b Backend, opts Options, log *logger.Logger) *Store {
	if opts.ClosedPageSize == 0 {
		opts.ClosedPageSize = DefaultClosedPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		backend: b,
		logger:  log.Named("conversations"),
		now:      opts.Now,
		selected: opts.Selected,
		tab:      model.TabAll,
		archived: map[string]struct{}{},
	}
	s.closed = pager.New(
		b.FetchConversations,
		backend.ConversationFilter{Status: ClosedFilter},
		pager.Options{
			Name:                  "closed_conversations",
			PageSize:              opts.ClosedPageSize,
			AutoLoad:              true,
			AutoLoadOnQueryChange: true,
			Disabled:              true,
		},
		s.logger,
	)
	return s
}

// LoadActive fetches the whole active set once. Later calls are no-ops;
// use RefreshActive to fetch again.
func (s *Store) LoadActive(ctx context.Context) error {
	s.mu.Lock()
	if s.activeLoaded || s.activeLoading {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.RefreshActive(ctx)
}

// RefreshActive refetches the active set and replaces the local copy. It is
// the manual fallback for live events missed while disconnected.
func (s *Store) RefreshActive(ctx context.Context) error {
	s.mu.Lock()
	s.activeLoading = true
	s.activeGen++
	gen := s.activeGen
	s.mu.Unlock()

	list, err := s.backend.FetchConversations(ctx, backend.ConversationFilter{Status: ActiveFilter}, 1, pager.Unlimited)
	metrics.RecordPageFetch("active_conversations", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.activeGen {
		return nil
	}
	s.activeLoading = false
	if err != nil {
		s.logger.Error("failed to load active conversations", zap.Error(err))
		return fmt.Errorf("failed to load active conversations: %w", err)
	}

	selected := ""
	if s.selected != nil {
		selected = s.selected()
	}
	active := make([]model.Conversation, 0, len(list))
	for _, c := range list {
		if !c.Status.IsActive() {
			continue
		}
		if c.ID == selected {
			c.IsUnread = false
		}
		delete(s.archived, c.ID)
		active = append(active, c)
	}
	s.active = active
	s.activeLoaded = true
	s.publishUnreadLocked()
	return nil
}

// SetTab switches the visible tab. The closed pager is only enabled while
// the closed tab is shown; the active set is loaded on first use.
func (s *Store) SetTab(ctx context.Context, tab model.Tab) error {
	s.mu.Lock()
	s.tab = tab
	s.mu.Unlock()

	if err := s.closed.SetEnabled(ctx, tab.Paginated()); err != nil {
		return err
	}
	if !tab.Paginated() {
		return s.LoadActive(ctx)
	}
	return nil
}

// SetKeyword changes the search keyword. The active set is filtered
// locally; the closed list is refetched with the keyword.
func (s *Store) SetKeyword(ctx context.Context, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	s.mu.Lock()
	s.keyword = keyword
	s.mu.Unlock()

	return s.closed.SetQuery(ctx, backend.ConversationFilter{Status: ClosedFilter, Keyword: keyword})
}

// Tab returns the visible tab.
func (s *Store) Tab() model.Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tab
}

// List returns the visible conversations for the current tab and keyword.
func (s *Store) List() []model.Conversation {
	s.mu.RLock()
	tab, keyword := s.tab, strings.ToLower(s.keyword)
	if tab.Paginated() {
		s.mu.RUnlock()
		return s.closed.Items()
	}
	defer s.mu.RUnlock()

	out := make([]model.Conversation, 0, len(s.active))
	for _, c := range s.active {
		if tab == model.TabUnreplied && c.Status != model.StatusUnreplied {
			continue
		}
		if tab == model.TabReplied && c.Status != model.StatusReplied {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(c.Name), keyword) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// LoadMore loads the next closed page when the closed tab is shown. The
// active set is never paginated.
func (s *Store) LoadMore(ctx context.Context) error {
	if !s.Tab().Paginated() {
		return nil
	}
	return s.closed.LoadMore(ctx)
}

// HasMore reports whether the visible tab can load more.
func (s *Store) HasMore() bool {
	if !s.Tab().Paginated() {
		return false
	}
	return s.closed.HasMore()
}

// Loading reports whether the visible tab is fetching.
func (s *Store) Loading() bool {
	if s.Tab().Paginated() {
		return s.closed.Loading()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLoading
}

// RefreshClosed restarts the closed list from its first page.
func (s *Store) RefreshClosed(ctx context.Context) error {
	return s.closed.Reload(ctx)
}

// Get looks a conversation up in the active set, then the closed list.
func (s *Store) Get(id string) (model.Conversation, bool) {
	s.mu.RLock()
	if i := s.indexLocked(id); i >= 0 {
		c := s.active[i]
		s.mu.RUnlock()
		return c, true
	}
	s.mu.RUnlock()

	for _, c := range s.closed.Items() {
		if c.ID == id {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// ArchiveConversation archives a conversation on the backend and drops it
// from the active set. The closed list is not touched; refresh it to see
// the archived entry.
func (s *Store) ArchiveConversation(ctx context.Context, id string) error {
	archived := model.StatusArchived
	if err := s.backend.UpdateConversation(ctx, id, model.ConversationPatch{Status: &archived}); err != nil {
		s.logger.Error("failed to archive conversation", zap.String("conversation_id", id), zap.Error(err))
		return fmt.Errorf("failed to archive conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived[id] = struct{}{}
	if i := s.indexLocked(id); i >= 0 {
		s.active = append(s.active[:i], s.active[i+1:]...)
		s.publishUnreadLocked()
	}
	return nil
}

// Closed reports whether id is known to be closed or archived, either from
// the loaded closed pages or from an archive made in this session.
func (s *Store) Closed(id string) bool {
	s.mu.RLock()
	_, ok := s.archived[id]
	s.mu.RUnlock()
	if ok {
		return true
	}
	for _, c := range s.closed.Items() {
		if c.ID == id {
			return true
		}
	}
	return false
}

// MarkReadLocal clears the unread flag without a backend call. It reports
// whether the conversation was found.
func (s *Store) MarkReadLocal(id string) bool {
	return s.setUnreadLocal(id, false)
}

// MarkUnreadPersisted flags a conversation unread on the backend, then
// locally.
func (s *Store) MarkUnreadPersisted(ctx context.Context, id string) error {
	return s.persistUnread(ctx, id, true)
}

// PersistRead clears the unread flag on the backend, then locally, so other
// operator sessions see the conversation as read.
func (s *Store) PersistRead(ctx context.Context, id string) error {
	return s.persistUnread(ctx, id, false)
}

func (s *Store) persistUnread(ctx context.Context, id string, unread bool) error {
	if _, ok := s.Get(id); !ok {
		return ErrNotFound
	}
	if err := s.backend.UpdateConversation(ctx, id, model.ConversationPatch{IsUnread: &unread}); err != nil {
		s.logger.Error("failed to persist unread flag",
			zap.String("conversation_id", id),
			zap.Bool("unread", unread),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update unread flag: %w", err)
	}
	s.setUnreadLocal(id, unread)
	return nil
}

func (s *Store) setUnreadLocal(id string, unread bool) bool {
	found := false

	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.active[i].IsUnread = unread
		s.publishUnreadLocked()
		found = true
	}
	s.mu.Unlock()

	s.closed.Update(func(items []model.Conversation) []model.Conversation {
		for i := range items {
			if items[i].ID == id {
				items[i].IsUnread = unread
				found = true
			}
		}
		return items
	})
	return found
}

// UpdateConversationSummary records new activity on a conversation and
// moves it to the front of the active set, keeping the order of the rest.
// It reports whether the id was in the active set.
func (s *Store) UpdateConversationSummary(id string, summary Summary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}

	c := s.active[i]
	c.LastMessage = summary.LastMessage
	c.LastMessageAt = s.now()
	if summary.Status != nil {
		c.Status = *summary.Status
	}
	if summary.Unread != nil {
		c.IsUnread = *summary.Unread
	}

	rest := append(s.active[:i:i], s.active[i+1:]...)
	if c.Status.IsActive() {
		s.active = append([]model.Conversation{c}, rest...)
	} else {
		s.active = rest
	}
	s.publishUnreadLocked()
	return true
}

// Summary is the last-activity update for a conversation.
type Summary = model.Summary

// UnreadCount counts active conversations flagged unread.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

func (s *Store) unreadLocked() int {
	n := 0
	for _, c := range s.active {
		if c.Status.IsActive() && c.IsUnread {
			n++
		}
	}
	return n
}

func (s *Store) publishUnreadLocked() {
	metrics.UnreadConversations.Set(float64(s.unreadLocked()))
}

func (s *Store) indexLocked(id string) int {
	for i, c := range s.active {
		if c.ID == id {
			return i
		}
	}
	return -1
}
