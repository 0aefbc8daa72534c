// Package pager provides a paginated loader that accumulates pages from a
// backend fetch function and tracks when the source is exhausted.
package pager

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/pkg/logger"
	"github.com/capitalize-ai/operator-console/pkg/metrics"
)

// Unlimited requests every item in a single page.
const Unlimited = -1

// DefaultPageSize is used when Options.PageSize is zero.
const DefaultPageSize = 20

// Direction controls where a fetched page lands in the accumulated items.
type Direction int

const (
	// Append places each new page after the items already loaded.
	Append Direction = iota
	// Prepend places each new page before the items already loaded, for
	// history that is fetched newest page first.
	Prepend
)

// FetchFunc loads one page. Pages are numbered from 1.
type FetchFunc[T any, Q comparable] func(ctx context.Context, query Q, page, pageSize int) ([]T, error)

// Options configures a Pager.
type Options struct {
	// Name labels logs and metrics.
	Name      string
	PageSize  int
	Direction Direction
	// AutoLoad loads the first page when the pager becomes enabled.
	AutoLoad bool
	// AutoLoadOnQueryChange loads the first page after a query change.
	AutoLoadOnQueryChange bool
	// Disabled pagers ignore LoadMore and Reset until enabled.
	Disabled bool
}

// State is a snapshot of the cursor and accumulated items.
type State[T any] struct {
	Items       []T
	Page        int
	PageSize    int
	HasMore     bool
	Loading     bool
	Initialized bool
}

// Pager accumulates pages of T fetched for a query Q.
type Pager[T any, Q comparable] struct {
	fetch  FetchFunc[T, Q]
	opts   Options
	logger *logger.Logger

	mu          sync.Mutex
	query       Q
	items       []T
	page        int
	hasMore     bool
	loading     bool
	initialized bool
	enabled     bool
	// generation is bumped by every reset so a fetch issued before the
	// reset cannot write into the restarted cursor.
	generation uint64
}

// New creates a pager for query. It does not fetch anything.
func New[T any, Q comparable](fetch FetchFunc[T, Q], query Q, opts Options, log *logger.Logger) *Pager[T, Q] {
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Name == "" {
		opts.Name = "pager"
	}
	return &Pager[T, Q]{
		fetch:   fetch,
		opts:    opts,
		logger:  log,
		query:   query,
		page:    1,
		hasMore: true,
		enabled: !opts.Disabled,
	}
}

// LoadMore fetches the next page. It is a no-op when the pager is disabled,
// a fetch is already in flight, or the source is exhausted. A failed fetch
// leaves the cursor where it was so the caller can retry.
func (p *Pager[T, Q]) LoadMore(ctx context.Context) error {
	p.mu.Lock()
	if !p.enabled || p.loading || !p.hasMore {
		p.mu.Unlock()
		return nil
	}
	p.loading = true
	gen := p.generation
	query := p.query
	page := p.page
	pageSize := p.opts.PageSize
	p.mu.Unlock()

	items, err := p.fetch(ctx, query, page, pageSize)
	metrics.RecordPageFetch(p.opts.Name, err)

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		p.logger.Debug("discarding page fetched before reset",
			zap.String("pager", p.opts.Name),
			zap.Int("page", page),
		)
		return nil
	}
	p.loading = false

	if err != nil {
		p.logger.Error("page fetch failed",
			zap.String("pager", p.opts.Name),
			zap.Int("page", page),
			zap.Error(err),
		)
		return fmt.Errorf("failed to load page %d: %w", page, err)
	}

	if p.opts.Direction == Prepend {
		merged := make([]T, 0, len(items)+len(p.items))
		merged = append(merged, items...)
		p.items = append(merged, p.items...)
	} else {
		p.items = append(p.items, items...)
	}
	p.page++
	p.hasMore = pageSize != Unlimited && len(items) >= pageSize
	p.initialized = true

	return nil
}

// Reset clears items and cursor. An in-flight fetch is not awaited; its
// result is discarded when it arrives.
func (p *Pager[T, Q]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	p.resetLocked()
}

func (p *Pager[T, Q]) resetLocked() {
	p.generation++
	p.items = nil
	p.page = 1
	p.hasMore = true
	p.loading = false
	p.initialized = false
}

// Reload resets the pager and loads the first page.
func (p *Pager[T, Q]) Reload(ctx context.Context) error {
	p.Reset()
	return p.LoadMore(ctx)
}

// SetQuery switches the query. A changed query resets the pager, even while
// disabled, and when configured loads the first page for it.
func (p *Pager[T, Q]) SetQuery(ctx context.Context, query Q) error {
	p.mu.Lock()
	if query == p.query {
		p.mu.Unlock()
		return nil
	}
	p.query = query
	p.resetLocked()
	enabled := p.enabled
	p.mu.Unlock()

	if enabled && p.opts.AutoLoadOnQueryChange {
		return p.LoadMore(ctx)
	}
	return nil
}

// SetEnabled turns the pager on or off. Enabling an AutoLoad pager that has
// not loaded yet fetches the first page.
func (p *Pager[T, Q]) SetEnabled(ctx context.Context, enabled bool) error {
	p.mu.Lock()
	was := p.enabled
	p.enabled = enabled
	load := enabled && !was && p.opts.AutoLoad && !p.initialized
	p.mu.Unlock()

	if load {
		return p.LoadMore(ctx)
	}
	return nil
}

// Insert appends items at the tail regardless of cursor state.
func (p *Pager[T, Q]) Insert(items ...T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, items...)
}

// Update rewrites the accumulated items under the pager lock. fn must not
// call back into the pager.
func (p *Pager[T, Q]) Update(fn func(items []T) []T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = fn(p.items)
}

// Items returns a copy of the accumulated items.
func (p *Pager[T, Q]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]T, len(p.items))
	copy(out, p.items)
	return out
}

// Len returns the number of accumulated items.
func (p *Pager[T, Q]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// HasMore reports whether another page may exist.
func (p *Pager[T, Q]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Loading reports whether a fetch is in flight.
func (p *Pager[T, Q]) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Enabled reports whether the pager accepts loads.
func (p *Pager[T, Q]) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Query returns the current query.
func (p *Pager[T, Q]) Query() Q {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Snapshot returns the cursor and a copy of the items.
func (p *Pager[T, Q]) Snapshot() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]T, len(p.items))
	copy(items, p.items)
	return State[T]{
		Items:       items,
		Page:        p.page,
		PageSize:    p.opts.PageSize,
		HasMore:     p.hasMore,
		Loading:     p.loading,
		Initialized: p.initialized,
	}
}
