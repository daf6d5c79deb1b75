package engine

import "time"

// DefaultCapacityRetryPeriod is how long a "no slots" rejection is trusted
// before admission is tried again regardless of live concurrency.
const DefaultCapacityRetryPeriod = 15 * time.Minute

// Gate tracks whether the server is refusing new jobs of one kind. It is
// owned by a single controller goroutine and is not safe for concurrent use.
type Gate struct {
	retryPeriod time.Duration
	now         func() time.Time

	full                 bool
	since                time.Time
	concurrencyAtOverage int
}

// NewGate creates an available gate. now may be nil to use time.Now.
func NewGate(retryPeriod time.Duration, now func() time.Time) *Gate {
	if retryPeriod <= 0 {
		retryPeriod = DefaultCapacityRetryPeriod
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{retryPeriod: retryPeriod, now: now}
}

// MarkFull records a rejection seen while live workers were running.
func (g *Gate) MarkFull(live int) {
	g.full = true
	g.since = g.now()
	g.concurrencyAtOverage = live
}

// IsFull reports whether admission is currently blocked.
func (g *Gate) IsFull() bool { return g.full }

// ShouldClear reports whether a blocked gate may be reopened: either the
// rejection is older than the retry period or a slot has freed up since.
func (g *Gate) ShouldClear(live int) bool {
	if !g.full {
		return false
	}
	return g.now().Sub(g.since) > g.retryPeriod || live < g.concurrencyAtOverage
}

// Clear reopens the gate.
func (g *Gate) Clear() {
	g.full = false
	g.since = time.Time{}
	g.concurrencyAtOverage = 0
}

// RetryIn returns the time left until the rejection goes stale. ok is false
// when the gate is not full.
func (g *Gate) RetryIn() (d time.Duration, ok bool) {
	if !g.full {
		return 0, false
	}
	return max(0, g.retryPeriod-g.now().Sub(g.since)), true
}
