package usecase

import (
	"sync"
	"time"
)

// Gate is the single in-flight latch: at most one outbound frame awaits a
// reply at any time.
//
// A reply that echoes the capture timestamp only clears the hold it belongs
// to, so a late reply for an expired frame is ignored. A reply without an
// echo is taken as the answer to the current hold. Frames the service never
// answers simply expire; nothing is owed for them afterwards.
type Gate struct {
	mu      sync.Mutex
	busy    bool
	since   time.Time
	timeout time.Duration
}

// NewGate returns a gate whose holds expire after timeout; zero disables expiry.
func NewGate(timeout time.Duration) *Gate {
	return &Gate{timeout: timeout}
}

// TryAcquire takes the hold for a frame captured at now.
func (g *Gate) TryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.busy = true
	g.since = now
	return true
}

// Abort drops a hold whose frame never left, e.g. because the send failed.
func (g *Gate) Abort() {
	g.mu.Lock()
	g.busy = false
	g.since = time.Time{}
	g.mu.Unlock()
}

// Release is called for every reply with the timestamp it echoed, zero when
// none. It reports whether the reply cleared the current hold and, if so,
// when that hold was taken.
func (g *Gate) Release(echo time.Time) (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.busy {
		return false, time.Time{}
	}
	// the wire carries milliseconds
	if !echo.IsZero() && echo.UnixMilli() != g.since.UnixMilli() {
		return false, time.Time{}
	}
	since := g.since
	g.busy = false
	g.since = time.Time{}
	return true, since
}

// Expire clears a hold older than the timeout and reports whether it did.
func (g *Gate) Expire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.busy || g.timeout <= 0 || now.Sub(g.since) < g.timeout {
		return false
	}
	g.busy = false
	g.since = time.Time{}
	return true
}

// Clear resets the gate; used on disconnect and stop.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.busy = false
	g.since = time.Time{}
	g.mu.Unlock()
}

func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}
