package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"taskchat-gateway/pkg/logger"

	"github.com/gorilla/websocket"
)

// Gateway owns the realtime state of the process: the session registry, the
// room subscription sets and the presence tracker. A single run loop applies
// every mutation and every broadcast in arrival order, so the state needs no
// locking and events to the same room are delivered in send order.
type Gateway struct {
	registry *Registry
	rooms    *roomSet
	presence *presenceTracker
	clients  map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundCommand
	dispatch   chan Event
	queries    chan presenceQuery

	stop     chan struct{}
	stopOnce sync.Once
}

type inboundCommand struct {
	client *Client
	frame  commandFrame
}

type presenceQuery struct {
	userID string
	reply  chan bool
}

func New() *Gateway {
	return &Gateway{
		registry:   NewRegistry(),
		rooms:      newRoomSet(),
		presence:   newPresenceTracker(),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundCommand),
		dispatch:   make(chan Event),
		queries:    make(chan presenceQuery),
		stop:       make(chan struct{}),
	}
}

// Run processes connection lifecycle events, inbound commands and external
// dispatches until Shutdown is called. It must run on exactly one goroutine.
func (g *Gateway) Run() {
	for {
		select {
		case <-g.stop:
			for _, c := range g.clients {
				close(c.send)
			}
			g.clients = make(map[string]*Client)
			return

		case c := <-g.register:
			g.addClient(c)

		case c := <-g.unregister:
			g.removeClient(c)

		case cmd := <-g.inbound:
			g.handleCommand(cmd.client, cmd.frame)

		case ev := <-g.dispatch:
			g.route(ev)

		case q := <-g.queries:
			q.reply <- g.registry.IsOnline(q.userID)
		}
	}
}

// Shutdown stops the run loop and closes every client send channel.
func (g *Gateway) Shutdown() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// Admit hands an authenticated connection to the gateway and starts its
// pumps. The caller must have verified the token already; userID is the
// resolved identity.
func (g *Gateway) Admit(conn *websocket.Conn, userID string) *Client {
	c := newClient(g, conn, userID)
	select {
	case g.register <- c:
	case <-g.stop:
		conn.Close()
		return nil
	}
	go c.writePump()
	go c.readPump()
	return c
}

// Dispatch queues an event for fan-out. This is the only way external
// collaborators (HTTP handlers, services) reach the realtime layer.
func (g *Gateway) Dispatch(ev Event) {
	select {
	case g.dispatch <- ev:
	case <-g.stop:
	}
}

// IsOnline reports whether the user currently holds a live connection.
func (g *Gateway) IsOnline(userID string) bool {
	q := presenceQuery{userID: userID, reply: make(chan bool, 1)}
	select {
	case g.queries <- q:
		return <-q.reply
	case <-g.stop:
		return false
	}
}

func (g *Gateway) addClient(c *Client) {
	g.clients[c.id] = c
	g.registry.Register(c.id, c.userID)
	logger.Info("User %s connected (conn %s)", c.userID, c.id)

	if g.presence.Observe(c.userID, g.registry.ConnectionCount(c.userID)) == transitionOnline {
		g.route(Event{
			Type:    EventUserStatusChange,
			Payload: StatusChangePayload{UserID: c.userID, Status: StatusOnline},
		})
	}
}

// removeClient is idempotent: the read pump and a failed delivery can both
// report the same connection.
func (g *Gateway) removeClient(c *Client) {
	if _, ok := g.clients[c.id]; !ok {
		return
	}
	delete(g.clients, c.id)
	g.rooms.LeaveAll(c.id)
	userID, ok := g.registry.Unregister(c.id)
	close(c.send)
	if !ok {
		return
	}
	logger.Info("User %s disconnected (conn %s)", userID, c.id)

	if g.presence.Observe(userID, g.registry.ConnectionCount(userID)) == transitionOffline {
		g.route(Event{
			Type:    EventUserStatusChange,
			Payload: StatusChangePayload{UserID: userID, Status: StatusOffline},
		})
	}
}

func (g *Gateway) handleCommand(c *Client, f commandFrame) {
	switch f.Type {
	case "join-room":
		if f.RoomID == "" {
			logger.Warn("join-room from user %s without roomId", c.userID)
			return
		}
		g.rooms.Join(c.id, f.RoomID)
		g.route(Event{
			Type:     EventUserJoined,
			RoomID:   f.RoomID,
			SenderID: c.userID,
			Payload:  RoomPresencePayload{UserID: c.userID, RoomID: f.RoomID},
		})

	case "leave-room":
		if f.RoomID == "" {
			logger.Warn("leave-room from user %s without roomId", c.userID)
			return
		}
		g.rooms.Leave(c.id, f.RoomID)
		g.route(Event{
			Type:     EventUserLeft,
			RoomID:   f.RoomID,
			SenderID: c.userID,
			Payload:  RoomPresencePayload{UserID: c.userID, RoomID: f.RoomID},
		})

	case "send-message":
		if f.RoomID == "" {
			logger.Warn("send-message from user %s without roomId", c.userID)
			return
		}
		body := f.Message
		if body == nil {
			body = make(map[string]any)
		}
		// The web client reads chatRoomId; keep both keys populated.
		body["roomId"] = f.RoomID
		body["chatRoomId"] = f.RoomID
		g.route(Event{
			Type:     EventNewMessage,
			RoomID:   f.RoomID,
			SenderID: c.userID,
			Payload:  body,
		})

	case "typing":
		if f.RoomID == "" {
			logger.Warn("typing from user %s without roomId", c.userID)
			return
		}
		g.route(Event{
			Type:     EventUserTyping,
			RoomID:   f.RoomID,
			SenderID: c.userID,
			Payload: TypingPayload{
				UserID:     c.userID,
				FullName:   f.FullName,
				IsTyping:   f.IsTyping,
				ChatRoomID: f.RoomID,
			},
		})

	case "mark-read":
		if f.RoomID == "" {
			logger.Warn("mark-read from user %s without roomId", c.userID)
			return
		}
		ts := f.Timestamp
		if ts == "" {
			ts = time.Now().UTC().Format(time.RFC3339)
		}
		g.route(Event{
			Type:     EventMessagesRead,
			RoomID:   f.RoomID,
			SenderID: c.userID,
			Payload: ReadReceiptPayload{
				ChatRoomID: f.RoomID,
				UserID:     c.userID,
				Timestamp:  ts,
			},
		})

	case "silent-refresh":
		if f.Refresh == nil {
			logger.Warn("silent-refresh from user %s without payload", c.userID)
			return
		}
		g.route(Event{Type: EventSilentRefresh, Payload: *f.Refresh})

	default:
		logger.Warn("Dropping unknown command %q from user %s", f.Type, c.userID)
	}
}

// route decides the delivery scope from the event tag alone and fans out.
func (g *Gateway) route(ev Event) {
	switch ev.Type {
	case EventUserStatusChange, EventSilentRefresh:
		g.toAll(ev)

	case EventNewMessage:
		g.toRoom(ev)
		g.toAll(Event{
			Type:    EventSilentRefresh,
			Payload: SilentRefreshPayload{Type: "new-message", RoomID: ev.RoomID, Message: ev.Payload},
		})

	case EventMessagesRead:
		g.toRoom(ev)
		g.toAll(Event{
			Type:    EventSilentRefresh,
			Payload: SilentRefreshPayload{Type: "messages-read", RoomID: ev.RoomID, UserID: ev.SenderID},
		})

	case EventChatMemberUpdate:
		g.toRoom(ev)
		g.toUser(ev)
		g.toAll(Event{
			Type:    EventSilentRefresh,
			Payload: SilentRefreshPayload{Type: "chat-member-update", RoomID: ev.RoomID, UserID: ev.UserID},
		})

	case EventForceUserAdded:
		g.toRoom(ev)
		g.toUser(ev)

	case EventMessagesDeleted, EventChatCleared:
		g.toRoom(ev)

	case EventUserTyping, EventUserJoined, EventUserLeft:
		g.toRoomExceptSender(ev)

	case EventNotification:
		g.toUser(ev)

	default:
		logger.Warn("Dropping event with unknown type %q", ev.Type)
	}
}

func (g *Gateway) toAll(ev Event) {
	targets := make([]string, 0, len(g.clients))
	for id := range g.clients {
		targets = append(targets, id)
	}
	g.deliver(ev, targets)
}

func (g *Gateway) toRoom(ev Event) {
	g.deliver(ev, g.rooms.Members(ev.RoomID))
}

func (g *Gateway) toUser(ev Event) {
	g.deliver(ev, g.registry.Connections(ev.UserID))
}

func (g *Gateway) toRoomExceptSender(ev Event) {
	members := g.rooms.Members(ev.RoomID)
	targets := members[:0]
	for _, id := range members {
		if userID, ok := g.registry.UserOf(id); ok && userID == ev.SenderID {
			continue
		}
		targets = append(targets, id)
	}
	g.deliver(ev, targets)
}

// deliver fans an event out to the given connections. Each delivery is
// independent: a connection whose send buffer is full gets dropped without
// affecting the remaining targets.
func (g *Gateway) deliver(ev Event, connIDs []string) {
	if len(connIDs) == 0 {
		return
	}
	data, err := json.Marshal(outboundFrame{Event: ev.Type, Data: ev.Payload})
	if err != nil {
		logger.Error("Error marshaling %s event: %v", ev.Type, err)
		return
	}

	var dropped []*Client
	for _, id := range connIDs {
		c, ok := g.clients[id]
		if !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		logger.Warn("Dropping connection %s (user %s): send buffer full", c.id, c.userID)
		g.removeClient(c)
	}
}
