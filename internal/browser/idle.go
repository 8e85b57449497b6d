package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"spotcrawl/internal/config"
	crawlerrors "spotcrawl/internal/errors"
)

const idlePoll = 100 * time.Millisecond

// idleTracker counts in-flight requests from network events. Long-lived
// streams are ignored so they never hold the page busy.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	last     time.Time
	now      func() time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight: make(map[network.RequestID]struct{}),
		last:     time.Now(),
		now:      time.Now,
	}
}

func (t *idleTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Type == network.ResourceTypeWebSocket || e.Type == network.ResourceTypeEventSource {
			return
		}
		t.started(e.RequestID)
	case *network.EventLoadingFinished:
		t.finished(e.RequestID)
	case *network.EventLoadingFailed:
		t.finished(e.RequestID)
	}
}

func (t *idleTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.last = t.now()
}

func (t *idleTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	t.last = t.now()
}

// idle reports whether nothing is in flight and nothing changed for quiet.
func (t *idleTracker) idle(quiet time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && t.now().Sub(t.last) >= quiet
}

// reset forgets requests that never reported completion, e.g. after the
// document that issued them was replaced.
func (t *idleTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = make(map[network.RequestID]struct{})
}

// wait blocks until idle, ctx ends or max elapses.
func (t *idleTracker) wait(ctx context.Context, quiet, max time.Duration) error {
	deadline := time.NewTimer(max)
	defer deadline.Stop()
	tick := time.NewTicker(idlePoll)
	defer tick.Stop()

	for {
		if t.idle(quiet) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			t.reset()
			return crawlerrors.Timeout("wait_idle", "network idle")
		case <-tick.C:
		}
	}
}

// WaitIdle blocks until the tab has had no request in flight for the quiet
// period. It gives up after the maximum wait.
func (s *Session) WaitIdle(ctx context.Context) error {
	return s.idle.wait(ctx, config.IdleQuietPeriod, config.IdleMaxWait)
}
