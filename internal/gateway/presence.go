package gateway

// presenceTransition is the result of feeding a registry change to the
// presence tracker.
type presenceTransition int

const (
	transitionNone presenceTransition = iota
	transitionOnline
	transitionOffline
)

// presenceTracker is a per-user two-state machine (offline, online) driven
// by live-connection counts. It announces only the 0->1 and 1->0 edges, so
// extra tabs from an already-online user stay silent.
type presenceTracker struct {
	online map[string]bool
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{online: make(map[string]bool)}
}

// Observe records the user's current live-connection count and returns the
// transition it caused, if any. Call it after every registry mutation for
// the affected user.
func (t *presenceTracker) Observe(userID string, connCount int) presenceTransition {
	switch {
	case connCount > 0 && !t.online[userID]:
		t.online[userID] = true
		return transitionOnline
	case connCount == 0 && t.online[userID]:
		delete(t.online, userID)
		return transitionOffline
	default:
		return transitionNone
	}
}

func (t *presenceTracker) IsOnline(userID string) bool {
	return t.online[userID]
}
