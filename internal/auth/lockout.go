package auth

import (
	"sync"
	"time"
)

// LoginGuard locks a client out for Cooldown after MaxAttempts failed logins.
type LoginGuard struct {
	mu       sync.Mutex
	entries  map[string]*loginEntry
	max      int
	cooldown time.Duration
	now      func() time.Time
}

type loginEntry struct {
	failures    int
	lockedUntil time.Time
}

func NewLoginGuard(maxAttempts int, cooldown time.Duration) *LoginGuard {
	return NewLoginGuardWithNow(maxAttempts, cooldown, time.Now)
}

func NewLoginGuardWithNow(maxAttempts int, cooldown time.Duration, now func() time.Time) *LoginGuard {
	return &LoginGuard{
		entries:  make(map[string]*loginEntry),
		max:      maxAttempts,
		cooldown: cooldown,
		now:      now,
	}
}

// Locked reports whether key is locked out and for how much longer.
func (g *LoginGuard) Locked(key string) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok || e.lockedUntil.IsZero() {
		return 0, false
	}
	remaining := e.lockedUntil.Sub(g.now())
	if remaining <= 0 {
		delete(g.entries, key)
		return 0, false
	}
	return remaining, true
}

// Fail records a failed attempt and reports whether key is now locked.
func (g *LoginGuard) Fail(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		e = &loginEntry{}
		g.entries[key] = e
	}
	e.failures++
	if e.failures >= g.max {
		e.failures = 0
		e.lockedUntil = g.now().Add(g.cooldown)
		return true
	}
	return false
}

func (g *LoginGuard) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
}
