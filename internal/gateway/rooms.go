package gateway

// roomSet holds the ephemeral room subscriptions: which connections are
// currently joined to which room's broadcast scope. Room existence is owned
// by storage; an unknown room here simply has no subscribers. Like the
// Registry, it is only ever touched by the run loop goroutine.
type roomSet struct {
	byRoom map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

func newRoomSet() *roomSet {
	return &roomSet{
		byRoom: make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

func (s *roomSet) Join(connID, roomID string) {
	if roomID == "" {
		return
	}
	conns, ok := s.byRoom[roomID]
	if !ok {
		conns = make(map[string]struct{})
		s.byRoom[roomID] = conns
	}
	conns[connID] = struct{}{}

	rooms, ok := s.byConn[connID]
	if !ok {
		rooms = make(map[string]struct{})
		s.byConn[connID] = rooms
	}
	rooms[roomID] = struct{}{}
}

// Leave is idempotent: leaving a room the connection never joined, or a room
// that no longer exists, is a no-op.
func (s *roomSet) Leave(connID, roomID string) {
	if conns, ok := s.byRoom[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(s.byRoom, roomID)
		}
	}
	if rooms, ok := s.byConn[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(s.byConn, connID)
		}
	}
}

// LeaveAll drops every subscription held by connID, returning the rooms it
// was joined to.
func (s *roomSet) LeaveAll(connID string) []string {
	rooms := s.byConn[connID]
	if len(rooms) == 0 {
		delete(s.byConn, connID)
		return nil
	}
	out := make([]string, 0, len(rooms))
	for roomID := range rooms {
		out = append(out, roomID)
		if conns, ok := s.byRoom[roomID]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(s.byRoom, roomID)
			}
		}
	}
	delete(s.byConn, connID)
	return out
}

// Members returns the connections currently subscribed to roomID. A vanished
// or never-joined room yields an empty set, never an error.
func (s *roomSet) Members(roomID string) []string {
	conns, ok := s.byRoom[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}
