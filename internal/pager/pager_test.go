package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/operator-console/pkg/logger"
)

// source serves pages of "q:n" strings and records every call.
type source struct {
	mu    sync.Mutex
	total int
	calls []int
	err   error
}

func (s *source) fetch(_ context.Context, q string, page, pageSize int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, page)
	if s.err != nil {
		return nil, s.err
	}
	if pageSize == Unlimited {
		pageSize = s.total
	}
	start := (page - 1) * pageSize
	var out []string
	for i := start; i < start+pageSize && i < s.total; i++ {
		out = append(out, fmt.Sprintf("%s:%d", q, i))
	}
	return out, nil
}

func (s *source) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestLoadMoreUntilExhausted(t *testing.T) {
	src := &source{total: 45}
	p := New(src.fetch, "q", Options{PageSize: 15}, logger.NewNop())
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, p.LoadMore(ctx))
		assert.Equal(t, i*15, p.Len())
		assert.True(t, p.HasMore(), "full page %d keeps hasMore", i)
	}

	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, 45, p.Len())
	assert.False(t, p.HasMore(), "empty page exhausts the source")

	calls := src.callCount()
	require.NoError(t, p.LoadMore(ctx))
	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, calls, src.callCount(), "exhausted pager must not fetch")
}

func TestShortPageExhausts(t *testing.T) {
	src := &source{total: 25}
	p := New(src.fetch, "q", Options{PageSize: 15}, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, p.LoadMore(ctx))
	require.NoError(t, p.LoadMore(ctx))

	st := p.Snapshot()
	assert.Len(t, st.Items, 25)
	assert.False(t, st.HasMore)
	assert.Equal(t, 3, st.Page)
	assert.True(t, st.Initialized)
}

func TestUnlimitedPageSize(t *testing.T) {
	src := &source{total: 7}
	p := New(src.fetch, "q", Options{PageSize: Unlimited}, logger.NewNop())

	require.NoError(t, p.LoadMore(context.Background()))
	assert.Equal(t, 7, p.Len())
	assert.False(t, p.HasMore())
}

func TestResetThenLoadMatchesFreshPager(t *testing.T) {
	ctx := context.Background()

	used := New((&source{total: 100}).fetch, "q", Options{PageSize: 10}, logger.NewNop())
	for range 4 {
		require.NoError(t, used.LoadMore(ctx))
	}
	used.Reset()
	require.NoError(t, used.LoadMore(ctx))

	fresh := New((&source{total: 100}).fetch, "q", Options{PageSize: 10}, logger.NewNop())
	require.NoError(t, fresh.LoadMore(ctx))

	assert.Equal(t, fresh.Snapshot(), used.Snapshot())
}

func TestConcurrentLoadIsSuppressed(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls int
	var mu sync.Mutex
	fetch := func(_ context.Context, _ string, page, pageSize int) ([]int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		started <- struct{}{}
		<-release
		return make([]int, pageSize), nil
	}
	p := New(fetch, "q", Options{PageSize: 5}, logger.NewNop())

	done := make(chan error, 1)
	go func() { done <- p.LoadMore(context.Background()) }()
	<-started

	assert.True(t, p.Loading())
	require.NoError(t, p.LoadMore(context.Background()))

	close(release)
	require.NoError(t, <-done)

	assert.False(t, p.Loading())
	assert.Equal(t, 5, p.Len())
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestFetchResolvingAfterResetIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fetch := func(_ context.Context, q string, page, pageSize int) ([]string, error) {
		if page == 1 && q == "old" {
			started <- struct{}{}
			<-release
		}
		return []string{q}, nil
	}
	p := New(fetch, "old", Options{PageSize: 10}, logger.NewNop())

	done := make(chan error, 1)
	go func() { done <- p.LoadMore(context.Background()) }()
	<-started

	p.Reset()
	assert.False(t, p.Loading())

	close(release)
	require.NoError(t, <-done)

	assert.Empty(t, p.Items())
	assert.False(t, p.Snapshot().Initialized)
}

func TestFailedFetchKeepsCursor(t *testing.T) {
	src := &source{total: 30}
	p := New(src.fetch, "q", Options{PageSize: 10}, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, p.LoadMore(ctx))
	before := p.Snapshot()

	boom := errors.New("boom")
	src.err = boom
	err := p.LoadMore(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, p.Snapshot())

	src.err = nil
	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, 20, p.Len())
	assert.Equal(t, []int{1, 2, 2}, src.calls)
}

func TestPrependDirection(t *testing.T) {
	// page 1 is the newest history, each later page is older.
	pages := map[int][]string{
		1: {"m4", "m5", "m6"},
		2: {"m1", "m2", "m3"},
	}
	fetch := func(_ context.Context, _ string, page, _ int) ([]string, error) {
		return pages[page], nil
	}
	p := New(fetch, "c", Options{PageSize: 3, Direction: Prepend}, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, p.LoadMore(ctx))
	p.Insert("live")
	require.NoError(t, p.LoadMore(ctx))

	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5", "m6", "live"}, p.Items())
}

func TestSetQuery(t *testing.T) {
	src := &source{total: 3}
	ctx := context.Background()

	auto := New(src.fetch, "a", Options{PageSize: 10, AutoLoadOnQueryChange: true}, logger.NewNop())
	require.NoError(t, auto.LoadMore(ctx))
	require.NoError(t, auto.SetQuery(ctx, "b"))
	assert.Equal(t, []string{"b:0", "b:1", "b:2"}, auto.Items())

	manual := New(src.fetch, "a", Options{PageSize: 10}, logger.NewNop())
	require.NoError(t, manual.LoadMore(ctx))
	require.NoError(t, manual.SetQuery(ctx, "b"))
	assert.Empty(t, manual.Items())
	assert.True(t, manual.HasMore())
	assert.Equal(t, "b", manual.Query())

	calls := src.callCount()
	require.NoError(t, manual.SetQuery(ctx, "b"))
	assert.Equal(t, calls, src.callCount(), "unchanged query is a no-op")
}

func TestDisabledPager(t *testing.T) {
	src := &source{total: 3}
	ctx := context.Background()
	p := New(src.fetch, "q", Options{PageSize: 10, Disabled: true, AutoLoad: true}, logger.NewNop())

	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, 0, src.callCount())

	require.NoError(t, p.SetEnabled(ctx, true))
	assert.Equal(t, 3, p.Len(), "enabling an auto-load pager fetches the first page")

	require.NoError(t, p.SetEnabled(ctx, false))
	p.Reset()
	assert.Equal(t, 3, p.Len(), "reset is ignored while disabled")

	require.NoError(t, p.SetEnabled(ctx, true))
	assert.Equal(t, 1, src.callCount(), "already initialized pager does not reload")
}

func TestUpdateRewritesItems(t *testing.T) {
	p := New((&source{total: 2}).fetch, "q", Options{PageSize: 10}, logger.NewNop())
	require.NoError(t, p.LoadMore(context.Background()))

	p.Update(func(items []string) []string {
		for i := range items {
			items[i] = "x" + items[i]
		}
		return items
	})
	assert.Equal(t, []string{"xq:0", "xq:1"}, p.Items())
}
