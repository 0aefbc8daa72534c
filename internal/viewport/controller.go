// Package viewport decides when a scrolling list should load more items and
// whether it should stay pinned to its newest entry.
package viewport

import (
	"context"
	"sync"
)

// DefaultThreshold is the proximity, in pixels, that counts as being at an
// edge.
const DefaultThreshold = 50

// Edge is the end of the list where older items are loaded.
type Edge int

const (
	// Top loads when scrolled near the top; used for message history.
	Top Edge = iota
	// Bottom loads when scrolled near the bottom; used for the conversation
	// list.
	Bottom
)

// Geometry describes the scroll container.
type Geometry struct {
	ScrollTop    float64 `json:"scrollTop"`
	ScrollHeight float64 `json:"scrollHeight"`
	ClientHeight float64 `json:"clientHeight"`
}

func (g Geometry) distanceFromTop() float64 {
	return g.ScrollTop
}

func (g Geometry) distanceFromBottom() float64 {
	return g.ScrollHeight - g.ScrollTop - g.ClientHeight
}

// Underfilled reports whether the content does not fill the viewport, in
// which case the user can never scroll to a load trigger.
func (g Geometry) Underfilled() bool {
	return g.ScrollHeight <= g.ClientHeight
}

// Thresholds are the edge proximities in pixels.
type Thresholds struct {
	Top    float64
	Bottom float64
}

// Loader is the paginated source behind the list.
type Loader interface {
	HasMore() bool
	Loading() bool
	LoadMore(ctx context.Context) error
}

// Controller tracks follow state for one scroll container.
type Controller struct {
	loader     Loader
	edge       Edge
	thresholds Thresholds

	mu        sync.Mutex
	following bool
}

// New creates a controller that starts in follow mode. Zero thresholds are
// replaced by DefaultThreshold.
func New(loader Loader, edge Edge, th Thresholds) *Controller {
	if th.Top == 0 {
		th.Top = DefaultThreshold
	}
	if th.Bottom == 0 {
		th.Bottom = DefaultThreshold
	}
	return &Controller{loader: loader, edge: edge, thresholds: th, following: true}
}

// SetLoader points the controller at another source, as when the operator
// switches conversation. Follow mode is restored.
func (c *Controller) SetLoader(loader Loader) {
	c.mu.Lock()
	c.loader = loader
	c.following = true
	c.mu.Unlock()
}

// OnScroll updates follow state from a scroll position and loads more when
// the load edge is reached. It reports whether a load was started.
func (c *Controller) OnScroll(ctx context.Context, g Geometry) (bool, error) {
	c.mu.Lock()
	c.following = g.distanceFromBottom() <= c.thresholds.Bottom
	loader := c.loader
	atEdge := c.atLoadEdge(g)
	c.mu.Unlock()

	if !atEdge {
		return false, nil
	}
	return c.load(ctx, loader)
}

// OnContentChanged is called after the list changes. It loads more when the
// content is too short to scroll, and reports whether the view should
// scroll to the newest entry.
func (c *Controller) OnContentChanged(ctx context.Context, g Geometry) (bool, error) {
	c.mu.Lock()
	loader := c.loader
	follow := c.following
	c.mu.Unlock()

	if g.Underfilled() {
		if _, err := c.load(ctx, loader); err != nil {
			return follow, err
		}
	}
	return follow, nil
}

// Reset forces follow mode, as on a conversation switch.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.following = true
	c.mu.Unlock()
}

// Following reports whether new entries should scroll into view.
func (c *Controller) Following() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.following
}

func (c *Controller) atLoadEdge(g Geometry) bool {
	if c.edge == Bottom {
		return g.distanceFromBottom() <= c.thresholds.Bottom
	}
	return g.distanceFromTop() <= c.thresholds.Top
}

func (c *Controller) load(ctx context.Context, loader Loader) (bool, error) {
	if loader == nil || !loader.HasMore() || loader.Loading() {
		return false, nil
	}
	return true, loader.LoadMore(ctx)
}
