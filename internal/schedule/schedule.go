// Package schedule provides cancellable timers and tickers driven by an
// injectable clock.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Handle controls a scheduled task. Stop is idempotent and safe on a nil
// Handle. Stop does not wait for a running callback; the callback's context
// is cancelled instead.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newHandle(parent context.Context) (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{cancel: cancel, done: make(chan struct{})}, ctx
}

// Stop cancels the task.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
}

// Done is closed once the task goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Every runs fn every interval until the handle is stopped or parent is
// cancelled. Ticks that arrive while fn is still running are dropped.
func Every(parent context.Context, clk clock.Clock, interval time.Duration, fn func(ctx context.Context)) *Handle {
	h, ctx := newHandle(parent)

	// Created before returning so a mock clock advanced right after Every
	// observes the ticker.
	ticker := clk.Ticker(interval)

	go func() {
		defer close(h.done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()

	return h
}

// After runs fn once after d unless the handle is stopped first.
func After(parent context.Context, clk clock.Clock, d time.Duration, fn func(ctx context.Context)) *Handle {
	h, ctx := newHandle(parent)
	timer := clk.Timer(d)

	go func() {
		defer close(h.done)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-timer.C:
			if ctx.Err() == nil {
				fn(ctx)
			}
		}
	}()

	return h
}

// Sleep blocks for d on clk or until ctx is done.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := clk.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
