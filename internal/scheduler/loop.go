// internal/scheduler/loop.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Loop runs a job once on Start and then on every tick of the clock.
type Loop struct {
	clk      clock.Clock
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoop(clk clock.Clock, interval time.Duration) *Loop {
	return &Loop{clk: clk, interval: interval}
}

// Start begins ticking. Calling Start on a running loop does nothing.
func (l *Loop) Start(ctx context.Context, job func(ctx context.Context, now time.Time)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil || job == nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done

	// The ticker is created before the goroutine so a mock clock advanced
	// right after Start still fires it.
	ticker := l.clk.Ticker(l.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		job(runCtx, l.clk.Now())
		for {
			select {
			case t := <-ticker.C:
				job(runCtx, t)
			case <-runCtx.Done():
				return
			}
		}
	}()
}

// Stop cancels the running job and waits for the goroutine to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop has been started and not stopped.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}
