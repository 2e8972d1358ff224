package verify

import "sync"

// waitKey identifies a pending response wait: one user replying in one channel.
type waitKey struct {
	userID    uint64
	channelID uint64
}

// responseWaiters is the registry of suspended sessions. The event router
// delivers every incoming user message; a session blocked in awaitResponse
// receives the first one matching its (user, channel) pair.
type responseWaiters struct {
	mu      sync.Mutex
	pending map[waitKey]chan string
}

func newResponseWaiters() *responseWaiters {
	return &responseWaiters{
		pending: make(map[waitKey]chan string),
	}
}

// register creates the wait channel for key. A stale channel for the same key
// is dropped; the per-user guard keeps this from happening between live
// sessions.
func (w *responseWaiters) register(key waitKey) <-chan string {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan string, 1)
	w.pending[key] = ch

	return ch
}

// unregister removes the wait channel for key.
func (w *responseWaiters) unregister(key waitKey) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.pending, key)
}

// deliver hands a message to a waiting session, if any. Reports whether a
// session consumed it.
func (w *responseWaiters) deliver(userID, channelID uint64, content string) bool {
	w.mu.Lock()
	ch, ok := w.pending[waitKey{userID: userID, channelID: channelID}]
	w.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case ch <- content:
		return true
	default:
		// Session already has an undelivered message queued.
		return false
	}
}
