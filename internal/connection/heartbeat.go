package connection

import (
	"sync"
	"time"
)

// heartbeat decides when to write a keep-alive frame and when the peer has
// gone quiet for too long. It is consulted on every inbound frame and by
// the socket's ticker, so a quiet connection still sends keep-alives.
type heartbeat struct {
	interval time.Duration
	stale    time.Duration // <= 0 disables stale detection

	mu          sync.Mutex
	lastSent    time.Time
	lastInbound time.Time
}

func newHeartbeat(interval, stale time.Duration) *heartbeat {
	return &heartbeat{interval: interval, stale: stale}
}

// Reset starts both clocks at now. Called once the transport is dialed.
func (h *heartbeat) Reset(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSent = now
	h.lastInbound = now
}

// Observe records an inbound frame and reports whether a keep-alive is due.
func (h *heartbeat) Observe(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastInbound = now
	return h.dueLocked(now)
}

// Tick reports whether a keep-alive is due, or ErrStaleConnection when no
// frame has arrived within the stale timeout.
func (h *heartbeat) Tick(now time.Time) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stale > 0 && now.Sub(h.lastInbound) >= h.stale {
		return false, ErrStaleConnection
	}
	return h.dueLocked(now), nil
}

func (h *heartbeat) dueLocked(now time.Time) bool {
	if now.Sub(h.lastSent) < h.interval {
		return false
	}
	h.lastSent = now
	return true
}

// tickEvery is the ticker period: a fifth of the interval, at least 10ms.
func (h *heartbeat) tickEvery() time.Duration {
	d := h.interval / 5
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}
