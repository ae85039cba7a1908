// Package adminlock implements the hidden tap-to-unlock gate in front of
// the admin surface. Five taps on the hidden target inside a rolling
// three second window unlock it; a longer pause resets the count.
package adminlock

import (
	"sync"
	"time"
)

// Threshold is the number of taps required to unlock.
const Threshold = 5

// Window is the maximum gap between consecutive taps before the counter
// resets.
const Window = 3 * time.Second

// State is the observable phase of the unlock gate.
type State string

const (
	StateIdle     State = "idle"
	StateCounting State = "counting"
	StateUnlocked State = "unlocked"
)

// Gate is a debounced tap counter. Safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	count   int
	lastTap time.Time
	state   State
	now     func() time.Time
}

// New builds a locked gate.
func New() *Gate {
	return &Gate{state: StateIdle, now: time.Now}
}

// NewWithClock builds a gate with an injectable clock for tests.
func NewWithClock(now func() time.Time) *Gate {
	return &Gate{state: StateIdle, now: now}
}

// Tap registers one tap and returns the resulting state. Once unlocked,
// further taps are no-ops until Reset.
func (g *Gate) Tap() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateUnlocked {
		return StateUnlocked
	}
	now := g.now()
	if g.count > 0 && now.Sub(g.lastTap) > Window {
		g.count = 0
	}
	g.count++
	g.lastTap = now
	if g.count >= Threshold {
		g.state = StateUnlocked
		g.count = 0
		return StateUnlocked
	}
	g.state = StateCounting
	return StateCounting
}

// State returns the current phase, accounting for window expiry.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateCounting && g.now().Sub(g.lastTap) > Window {
		g.count = 0
		g.state = StateIdle
	}
	return g.state
}

// Unlocked reports whether the admin surface is open.
func (g *Gate) Unlocked() bool { return g.State() == StateUnlocked }

// Reset relocks the gate.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count = 0
	g.state = StateIdle
}
