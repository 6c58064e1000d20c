package gateway

// Registry tracks every live connection and the user it belongs to. It is
// owned by the gateway run loop: all mutation happens on that one goroutine,
// so the maps need no lock.
type Registry struct {
	byConn map[string]*Entry
	byUser map[string]map[string]struct{}
}

// Entry is one live connection record.
type Entry struct {
	ConnID string
	UserID string
	Live   bool
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*Entry),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Register inserts an entry for connID. A user may hold any number of
// simultaneous connections; a connection ID is recorded at most once.
func (r *Registry) Register(connID, userID string) {
	if _, exists := r.byConn[connID]; exists {
		return
	}
	r.byConn[connID] = &Entry{ConnID: connID, UserID: userID, Live: true}
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
}

// Unregister removes the entry for connID and reports which user it belonged
// to. Unregistering an unknown connection is a no-op.
func (r *Registry) Unregister(connID string) (userID string, ok bool) {
	entry, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	entry.Live = false
	delete(r.byConn, connID)
	if conns, ok := r.byUser[entry.UserID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, entry.UserID)
		}
	}
	return entry.UserID, true
}

// Connections returns the IDs of every live connection held by userID.
func (r *Registry) Connections(userID string) []string {
	conns, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

func (r *Registry) ConnectionCount(userID string) int {
	return len(r.byUser[userID])
}

// IsOnline reports whether userID holds at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	return len(r.byUser[userID]) > 0
}

// UserOf resolves a connection ID to its owner.
func (r *Registry) UserOf(connID string) (string, bool) {
	entry, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	return entry.UserID, true
}
