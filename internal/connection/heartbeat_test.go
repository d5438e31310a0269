package connection

import (
	"errors"
	"testing"
	"time"
)

func TestHeartbeat_Observe(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	h := newHeartbeat(2500*time.Millisecond, 30*time.Second)
	h.Reset(start)

	steps := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"inside threshold", 1000 * time.Millisecond, false},
		{"just before threshold", 2499 * time.Millisecond, false},
		{"at threshold", 2500 * time.Millisecond, true},
		{"right after keep-alive", 2600 * time.Millisecond, false},
		{"heartbeat frame inside new window", 4000 * time.Millisecond, false},
		{"next threshold", 5000 * time.Millisecond, true},
	}

	for _, step := range steps {
		if got := h.Observe(start.Add(step.offset)); got != step.want {
			t.Errorf("%s: Observe() = %v, want %v", step.name, got, step.want)
		}
	}
}

func TestHeartbeat_TickSendsOnQuietConnection(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	h := newHeartbeat(2500*time.Millisecond, 30*time.Second)
	h.Reset(start)

	if due, err := h.Tick(start.Add(time.Second)); due || err != nil {
		t.Errorf("Tick(1s) = %v, %v, want false, nil", due, err)
	}
	if due, err := h.Tick(start.Add(3 * time.Second)); !due || err != nil {
		t.Errorf("Tick(3s) = %v, %v, want true, nil", due, err)
	}
	if due, _ := h.Tick(start.Add(4 * time.Second)); due {
		t.Error("Tick(4s) due again right after a keep-alive")
	}
}

func TestHeartbeat_Stale(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	h := newHeartbeat(2500*time.Millisecond, 10*time.Second)
	h.Reset(start)

	h.Observe(start.Add(5 * time.Second))

	if _, err := h.Tick(start.Add(14 * time.Second)); err != nil {
		t.Errorf("Tick(14s) error = %v, want nil (last frame at 5s)", err)
	}
	if _, err := h.Tick(start.Add(15 * time.Second)); !errors.Is(err, ErrStaleConnection) {
		t.Errorf("Tick(15s) error = %v, want ErrStaleConnection", err)
	}
}

func TestHeartbeat_StaleDisabled(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	h := newHeartbeat(2500*time.Millisecond, -1)
	h.Reset(start)

	if _, err := h.Tick(start.Add(time.Hour)); err != nil {
		t.Errorf("Tick() error = %v, want nil with stale detection disabled", err)
	}
}

func TestHeartbeat_TickEvery(t *testing.T) {
	if got := newHeartbeat(2500*time.Millisecond, 0).tickEvery(); got != 500*time.Millisecond {
		t.Errorf("tickEvery() = %v, want 500ms", got)
	}
	if got := newHeartbeat(time.Millisecond, 0).tickEvery(); got != 10*time.Millisecond {
		t.Errorf("tickEvery() = %v, want 10ms floor", got)
	}
}
