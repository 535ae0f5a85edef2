package report

import (
	"sync"
	"time"
)

// RateTracker counts requests per caller and route inside a sliding window.
// It is explicit process-scoped state with a documented lifecycle: created by
// the server, swept periodically, stopped on shutdown. Nothing here is a
// package-level global.
type RateTracker struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	counts map[trackKey]*trackEntry
	stop   chan struct{}
}

type trackKey struct {
	caller string
	route  string
}

type trackEntry struct {
	count       int
	windowStart time.Time
}

// NewRateTracker creates a tracker allowing limit requests per caller+route
// per window. The sweep goroutine starts immediately; call Stop when done.
func NewRateTracker(limit int, window time.Duration) *RateTracker {
	if limit <= 0 {
		limit = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	t := &RateTracker{
		window: window,
		limit:  limit,
		counts: make(map[trackKey]*trackEntry),
		stop:   make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Allow records one request for caller+route and reports whether it is
// within the limit for the current window.
func (t *RateTracker) Allow(caller, route string) bool {
	now := time.Now()
	key := trackKey{caller: caller, route: route}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.counts[key]
	if !ok || now.Sub(entry.windowStart) >= t.window {
		t.counts[key] = &trackEntry{count: 1, windowStart: now}
		return true
	}

	entry.count++
	return entry.count <= t.limit
}

// Stop terminates the sweep goroutine.
func (t *RateTracker) Stop() {
	close(t.stop)
}

// sweepLoop drops expired windows so the map does not grow with caller
// churn.
func (t *RateTracker) sweepLoop() {
	ticker := time.NewTicker(t.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.stop:
			return
		}
	}
}

func (t *RateTracker) sweep() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.counts {
		if now.Sub(entry.windowStart) >= t.window {
			delete(t.counts, key)
		}
	}
}
