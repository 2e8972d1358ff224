package verify

import "sync"

// userGuard enforces at most one active verification session per user,
// regardless of how the session was triggered.
type userGuard struct {
	mu     sync.Mutex
	active map[uint64]struct{}
}

func newUserGuard() *userGuard {
	return &userGuard{
		active: make(map[uint64]struct{}),
	}
}

// tryAcquire claims the user's session slot. Reports false when a session is
// already live for the user.
func (g *userGuard) tryAcquire(userID uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.active[userID]; ok {
		return false
	}

	g.active[userID] = struct{}{}

	return true
}

// release frees the user's session slot.
func (g *userGuard) release(userID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.active, userID)
}
