// Package poller runs periodic refreshes as the fallback for updates the
// live event connection does not deliver.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/pkg/logger"
	"github.com/capitalize-ai/operator-console/pkg/metrics"
)

// ErrStop ends polling when returned by a Func.
var ErrStop = errors.New("stop polling")

// Func is one poll. Returning ErrStop ends polling; any other error is
// logged and polling continues.
type Func func(ctx context.Context) error

// Poller calls a Func on a fixed interval, starting immediately.
type Poller struct {
	name     string
	interval time.Duration
	fn       Func
	logger   *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped poller.
func New(name string, interval time.Duration, fn Func, log *logger.Logger) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   log.Named("poller").With(zap.String("poller", name)),
	}
}

// Run polls until ctx is done or the Func returns ErrStop.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.tick(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.tick(ctx) {
				return
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) (stop bool) {
	err := p.fn(ctx)
	if errors.Is(err, ErrStop) {
		metrics.RecordPoll(p.name, nil)
		p.logger.Debug("polling finished")
		return true
	}
	metrics.RecordPoll(p.name, err)
	if err != nil && ctx.Err() == nil {
		p.logger.Warn("poll failed", zap.Error(err))
	}
	return false
}

// Start runs the poller in the background. Starting a running poller does
// nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		select {
		case <-p.done:
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
}

// Stop cancels a background poller and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when a background poller exits. It is nil before Start.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
