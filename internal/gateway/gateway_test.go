package gateway

import (
	"encoding/json"
	"testing"
)

// Tests drive the loop handlers directly: the run loop applies commands one
// at a time on a single goroutine, and calling the handlers from the test
// goroutine preserves exactly those semantics.

func addConn(g *Gateway, userID string) *Client {
	c := newClient(g, nil, userID)
	g.addClient(c)
	return c
}

type testFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// recvFrames drains every frame currently buffered for the connection.
func recvFrames(t *testing.T, c *Client) []testFrame {
	t.Helper()
	var frames []testFrame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return frames
			}
			var f testFrame
			if err := json.Unmarshal(raw, &f); err != nil {
				t.Fatalf("bad frame %q: %v", raw, err)
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func countEvents(frames []testFrame, event string) int {
	n := 0
	for _, f := range frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

func firstEvent(frames []testFrame, event string) (testFrame, bool) {
	for _, f := range frames {
		if f.Event == event {
			return f, true
		}
	}
	return testFrame{}, false
}

func drainAll(t *testing.T, clients ...*Client) {
	t.Helper()
	for _, c := range clients {
		recvFrames(t, c)
	}
}

func TestConnectBroadcastsOnlineOnce(t *testing.T) {
	g := New()

	observer := addConn(g, "bob")
	drainAll(t, observer)

	a1 := addConn(g, "alice")
	frames := recvFrames(t, observer)
	if n := countEvents(frames, "user-status-change"); n != 1 {
		t.Fatalf("expected exactly one status change for alice's first connection, got %d", n)
	}
	f, _ := firstEvent(frames, "user-status-change")
	if f.Data["userId"] != "alice" || f.Data["status"] != "online" {
		t.Fatalf("unexpected status payload: %v", f.Data)
	}

	// Second tab: no further announcement.
	addConn(g, "alice")
	drainAll(t, a1)
	if frames := recvFrames(t, observer); countEvents(frames, "user-status-change") != 0 {
		t.Fatal("second connection from an online user must not announce presence")
	}
}

func TestOfflineOnlyAfterLastDisconnect(t *testing.T) {
	g := New()

	observer := addConn(g, "bob")
	a1 := addConn(g, "alice")
	a2 := addConn(g, "alice")
	drainAll(t, observer, a1, a2)

	g.removeClient(a1)
	if frames := recvFrames(t, observer); countEvents(frames, "user-status-change") != 0 {
		t.Fatal("disconnect with another tab open must not announce offline")
	}

	g.removeClient(a2)
	frames := recvFrames(t, observer)
	if n := countEvents(frames, "user-status-change"); n != 1 {
		t.Fatalf("expected exactly one offline announcement, got %d", n)
	}
	f, _ := firstEvent(frames, "user-status-change")
	if f.Data["userId"] != "alice" || f.Data["status"] != "offline" {
		t.Fatalf("unexpected status payload: %v", f.Data)
	}
}

func TestRoomBroadcastReachesAllJoined(t *testing.T) {
	g := New()

	a1 := addConn(g, "alice")
	a2 := addConn(g, "alice")
	b := addConn(g, "bob")
	c := addConn(g, "carol")

	g.handleCommand(a1, commandFrame{Type: "join-room", RoomID: "room-42"})
	g.handleCommand(a2, commandFrame{Type: "join-room", RoomID: "room-42"})
	g.handleCommand(b, commandFrame{Type: "join-room", RoomID: "room-42"})
	drainAll(t, a1, a2, b, c)

	g.handleCommand(b, commandFrame{
		Type:    "send-message",
		RoomID:  "room-42",
		Message: map[string]any{"text": "hello"},
	})

	// Every joined connection gets the message, including the sender's own
	// and the sender's other devices.
	for name, conn := range map[string]*Client{"a1": a1, "a2": a2, "b": b} {
		frames := recvFrames(t, conn)
		if n := countEvents(frames, "new-message"); n != 1 {
			t.Fatalf("%s: expected exactly one new-message, got %d", name, n)
		}
		f, _ := firstEvent(frames, "new-message")
		if f.Data["text"] != "hello" || f.Data["roomId"] != "room-42" {
			t.Fatalf("%s: unexpected message payload: %v", name, f.Data)
		}
	}

	// Carol never joined: no message, but the global refresh still reaches
	// her so her room list can update.
	frames := recvFrames(t, c)
	if countEvents(frames, "new-message") != 0 {
		t.Fatal("carol must not receive messages for a room she is not joined to")
	}
	if countEvents(frames, "silent-refresh") != 1 {
		t.Fatal("carol should receive the global refresh for the new message")
	}
}

func TestRoomMessagesDeliveredInSendOrder(t *testing.T) {
	g := New()

	a := addConn(g, "alice")
	b := addConn(g, "bob")
	g.handleCommand(a, commandFrame{Type: "join-room", RoomID: "room-1"})
	g.handleCommand(b, commandFrame{Type: "join-room", RoomID: "room-1"})
	drainAll(t, a, b)

	for _, text := range []string{"one", "two", "three"} {
		g.handleCommand(a, commandFrame{
			Type:    "send-message",
			RoomID:  "room-1",
			Message: map[string]any{"text": text},
		})
	}

	frames := recvFrames(t, b)
	var got []string
	for _, f := range frames {
		if f.Event == "new-message" {
			got = append(got, f.Data["text"].(string))
		}
	}
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("messages out of order: got %v", got)
		}
	}
}

func TestTypingExcludesAllSenderConnections(t *testing.T) {
	g := New()

	a1 := addConn(g, "alice")
	a2 := addConn(g, "alice")
	b := addConn(g, "bob")

	g.handleCommand(a1, commandFrame{Type: "join-room", RoomID: "room-42"})
	g.handleCommand(a2, commandFrame{Type: "join-room", RoomID: "room-42"})
	g.handleCommand(b, commandFrame{Type: "join-room", RoomID: "room-42"})
	drainAll(t, a1, a2, b)

	g.handleCommand(a1, commandFrame{
		Type:     "typing",
		RoomID:   "room-42",
		FullName: "Alice A",
		IsTyping: true,
	})

	frames := recvFrames(t, b)
	if n := countEvents(frames, "user-typing"); n != 1 {
		t.Fatalf("bob should receive one typing indicator, got %d", n)
	}
	f, _ := firstEvent(frames, "user-typing")
	if f.Data["userId"] != "alice" || f.Data["fullName"] != "Alice A" || f.Data["isTyping"] != true {
		t.Fatalf("unexpected typing payload: %v", f.Data)
	}

	// Neither of the sender's own connections hears their typing state.
	for name, conn := range map[string]*Client{"a1": a1, "a2": a2} {
		if frames := recvFrames(t, conn); countEvents(frames, "user-typing") != 0 {
			t.Fatalf("%s: sender's own connection received its typing indicator", name)
		}
	}
}

func TestMarkReadBroadcastsRoomAndRefresh(t *testing.T) {
	g := New()

	a := addConn(g, "alice")
	b := addConn(g, "bob")
	outsider := addConn(g, "carol")
	g.handleCommand(a, commandFrame{Type: "join-room", RoomID: "room-7"})
	g.handleCommand(b, commandFrame{Type: "join-room", RoomID: "room-7"})
	drainAll(t, a, b, outsider)

	g.handleCommand(a, commandFrame{Type: "mark-read", RoomID: "room-7", Timestamp: "2026-01-02T03:04:05Z"})

	// Read receipts go to the whole room, sender included.
	for name, conn := range map[string]*Client{"a": a, "b": b} {
		frames := recvFrames(t, conn)
		f, ok := firstEvent(frames, "messages-read")
		if !ok {
			t.Fatalf("%s: expected a messages-read event", name)
		}
		if f.Data["chatRoomId"] != "room-7" || f.Data["userId"] != "alice" || f.Data["timestamp"] != "2026-01-02T03:04:05Z" {
			t.Fatalf("%s: unexpected read receipt payload: %v", name, f.Data)
		}
	}

	// Clients outside the room only see the refresh signal.
	frames := recvFrames(t, outsider)
	if countEvents(frames, "messages-read") != 0 {
		t.Fatal("outsider must not receive the read receipt")
	}
	f, ok := firstEvent(frames, "silent-refresh")
	if !ok {
		t.Fatal("outsider should receive the global refresh")
	}
	if f.Data["type"] != "messages-read" || f.Data["roomId"] != "room-7" {
		t.Fatalf("unexpected refresh payload: %v", f.Data)
	}
}

func TestMemberUpdateReachesRoomAffectedUserAndLists(t *testing.T) {
	g := New()

	inRoom := addConn(g, "alice")
	affected := addConn(g, "dave") // not joined to the room's live scope
	bystander := addConn(g, "carol")
	g.handleCommand(inRoom, commandFrame{Type: "join-room", RoomID: "room-9"})
	drainAll(t, inRoom, affected, bystander)

	g.route(Event{
		Type:    EventChatMemberUpdate,
		RoomID:  "room-9",
		UserID:  "dave",
		Payload: MemberUpdatePayload{RoomID: "room-9", Action: "add", UserID: "dave"},
	})

	if frames := recvFrames(t, inRoom); countEvents(frames, "chat-member-update") != 1 {
		t.Fatal("room members should receive the member update")
	}
	if frames := recvFrames(t, affected); countEvents(frames, "chat-member-update") != 1 {
		t.Fatal("the affected user should receive the member update directly")
	}
	frames := recvFrames(t, bystander)
	if countEvents(frames, "chat-member-update") != 0 {
		t.Fatal("bystanders must not receive the member update itself")
	}
	if countEvents(frames, "silent-refresh") != 1 {
		t.Fatal("bystanders should receive the refresh so list views update")
	}
}

func TestJoinAndLeaveNotifyOthersOnly(t *testing.T) {
	g := New()

	a := addConn(g, "alice")
	b := addConn(g, "bob")
	g.handleCommand(a, commandFrame{Type: "join-room", RoomID: "room-3"})
	drainAll(t, a, b)

	g.handleCommand(b, commandFrame{Type: "join-room", RoomID: "room-3"})

	frames := recvFrames(t, a)
	f, ok := firstEvent(frames, "user-joined")
	if !ok {
		t.Fatal("alice should be told bob joined")
	}
	if f.Data["userId"] != "bob" || f.Data["roomId"] != "room-3" {
		t.Fatalf("unexpected join payload: %v", f.Data)
	}
	if frames := recvFrames(t, b); countEvents(frames, "user-joined") != 0 {
		t.Fatal("the joining user must not be told about their own join")
	}

	g.handleCommand(b, commandFrame{Type: "leave-room", RoomID: "room-3"})
	if frames := recvFrames(t, a); countEvents(frames, "user-left") != 1 {
		t.Fatal("alice should be told bob left")
	}
}

func TestMalformedCommandsDropped(t *testing.T) {
	g := New()

	a := addConn(g, "alice")
	b := addConn(g, "bob")
	g.handleCommand(a, commandFrame{Type: "join-room", RoomID: "room-1"})
	g.handleCommand(b, commandFrame{Type: "join-room", RoomID: "room-1"})
	drainAll(t, a, b)

	// Missing roomId, unknown command, refresh without payload: all dropped
	// with no reply and no broadcast.
	g.handleCommand(a, commandFrame{Type: "send-message", Message: map[string]any{"text": "x"}})
	g.handleCommand(a, commandFrame{Type: "typing"})
	g.handleCommand(a, commandFrame{Type: "mark-read"})
	g.handleCommand(a, commandFrame{Type: "join-room"})
	g.handleCommand(a, commandFrame{Type: "warp-core-breach"})
	g.handleCommand(a, commandFrame{Type: "silent-refresh"})

	if frames := recvFrames(t, a); len(frames) != 0 {
		t.Fatalf("sender should receive nothing for malformed commands, got %v", frames)
	}
	if frames := recvFrames(t, b); len(frames) != 0 {
		t.Fatalf("room should receive nothing for malformed commands, got %v", frames)
	}
}

func TestBroadcastToVanishedRoom(t *testing.T) {
	g := New()
	observer := addConn(g, "bob")
	drainAll(t, observer)

	// The room has no subscribers (deleted mid-session): fan-out completes
	// silently, only the global refresh goes anywhere.
	g.route(Event{
		Type:     EventNewMessage,
		RoomID:   "room-deleted",
		SenderID: "alice",
		Payload:  map[string]any{"text": "too late", "roomId": "room-deleted"},
	})

	frames := recvFrames(t, observer)
	if countEvents(frames, "new-message") != 0 {
		t.Fatal("nobody should receive a message for an empty room")
	}
	if countEvents(frames, "silent-refresh") != 1 {
		t.Fatal("the refresh accompaniment still fires")
	}
}

func TestSlowConnectionDroppedWithoutAbortingFanout(t *testing.T) {
	g := New()

	slow := addConn(g, "alice")
	fast := addConn(g, "bob")
	g.handleCommand(slow, commandFrame{Type: "join-room", RoomID: "room-1"})
	g.handleCommand(fast, commandFrame{Type: "join-room", RoomID: "room-1"})
	drainAll(t, slow, fast)

	// Jam the slow connection's send buffer.
	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte("{}")
	}

	g.handleCommand(fast, commandFrame{
		Type:    "send-message",
		RoomID:  "room-1",
		Message: map[string]any{"text": "still delivered"},
	})

	if frames := recvFrames(t, fast); countEvents(frames, "new-message") != 1 {
		t.Fatal("remaining targets must still be delivered to when one connection stalls")
	}
	if _, ok := g.clients[slow.id]; ok {
		t.Fatal("the stalled connection should have been dropped")
	}
	if g.registry.IsOnline("alice") {
		t.Fatal("the dropped connection should be unregistered")
	}
}

func TestNotificationReachesAllUserDevices(t *testing.T) {
	g := New()

	d1 := addConn(g, "dave")
	d2 := addConn(g, "dave")
	other := addConn(g, "erin")
	drainAll(t, d1, d2, other)

	g.route(Event{
		Type:    EventNotification,
		UserID:  "dave",
		Payload: map[string]any{"text": "you were assigned a task"},
	})

	for name, conn := range map[string]*Client{"d1": d1, "d2": d2} {
		frames := recvFrames(t, conn)
		f, ok := firstEvent(frames, "notification")
		if !ok {
			t.Fatalf("%s: every device of the target user should be notified", name)
		}
		if f.Data["text"] != "you were assigned a task" {
			t.Fatalf("%s: unexpected notification payload: %v", name, f.Data)
		}
	}
	if frames := recvFrames(t, other); countEvents(frames, "notification") != 0 {
		t.Fatal("notifications are user-scoped and must not reach other users")
	}
}

func TestClientSilentRefreshRelay(t *testing.T) {
	g := New()

	a := addConn(g, "alice")
	b := addConn(g, "bob")
	drainAll(t, a, b)

	g.handleCommand(a, commandFrame{
		Type:    "silent-refresh",
		Refresh: &SilentRefreshPayload{Type: "task-updated"},
	})

	for name, conn := range map[string]*Client{"a": a, "b": b} {
		frames := recvFrames(t, conn)
		f, ok := firstEvent(frames, "silent-refresh")
		if !ok {
			t.Fatalf("%s: refresh relay should reach every connection", name)
		}
		if f.Data["type"] != "task-updated" {
			t.Fatalf("%s: unexpected refresh payload: %v", name, f.Data)
		}
	}
}

func TestDisconnectCleansRoomSubscriptions(t *testing.T) {
	g := New()

	a := addConn(g, "alice")
	b := addConn(g, "bob")
	g.handleCommand(a, commandFrame{Type: "join-room", RoomID: "room-1"})
	g.handleCommand(b, commandFrame{Type: "join-room", RoomID: "room-1"})
	drainAll(t, a, b)

	g.removeClient(a)
	if members := g.rooms.Members("room-1"); len(members) != 1 {
		t.Fatalf("room should only hold bob after alice disconnects, got %d members", len(members))
	}

	// Subscriptions are ephemeral: a reconnect starts with none.
	a2 := addConn(g, "alice")
	if rooms := g.rooms.byConn[a2.id]; len(rooms) != 0 {
		t.Fatal("a fresh connection must not inherit room subscriptions")
	}
}
