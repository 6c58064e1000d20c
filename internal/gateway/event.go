package gateway

// EventType is the closed set of events the gateway can deliver. The
// delivery scope of an event is a function of its type alone; see
// (*Gateway).route.
type EventType string

const (
	EventUserStatusChange EventType = "user-status-change"
	EventUserJoined       EventType = "user-joined"
	EventUserLeft         EventType = "user-left"
	EventNewMessage       EventType = "new-message"
	EventUserTyping       EventType = "user-typing"
	EventMessagesRead     EventType = "messages-read"
	EventChatMemberUpdate EventType = "chat-member-update"
	EventForceUserAdded   EventType = "force-user-added"
	EventMessagesDeleted  EventType = "messages-deleted"
	EventChatCleared      EventType = "chat-cleared"
	EventNotification     EventType = "notification"
	EventSilentRefresh    EventType = "silent-refresh"
)

// Event is one unit of fan-out work. RoomID scopes room-targeted events,
// UserID names the affected user for user-targeted delivery, and SenderID
// identifies the originating user for except-sender scoping. Payload is the
// wire data sent to each recipient.
type Event struct {
	Type     EventType
	RoomID   string
	UserID   string
	SenderID string
	Payload  any
}

// outboundFrame is the envelope every delivered event is wrapped in.
type outboundFrame struct {
	Event EventType `json:"event"`
	Data  any       `json:"data"`
}

// Payload shapes. Field names match what the web client already consumes,
// so they stay camelCase on the wire.

type StatusChangePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type RoomPresencePayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type TypingPayload struct {
	UserID     string `json:"userId"`
	FullName   string `json:"fullName"`
	IsTyping   bool   `json:"isTyping"`
	ChatRoomID string `json:"chatRoomId"`
}

type ReadReceiptPayload struct {
	ChatRoomID string `json:"chatRoomId"`
	UserID     string `json:"userId"`
	Timestamp  string `json:"timestamp"`
}

type MemberUpdatePayload struct {
	RoomID string `json:"roomId"`
	Action string `json:"action"` // "add" or "remove"
	UserID string `json:"userId"`
}

type ForceUserAddedPayload struct {
	RoomID string `json:"roomId"`
	User   any    `json:"user"`
}

type MessagesDeletedPayload struct {
	RoomID     string `json:"roomId"`
	MessageIDs []int  `json:"messageIds"`
	DeleteAll  bool   `json:"deleteAll"`
}

type ChatClearedPayload struct {
	ChatRoomID string `json:"chatRoomId"`
	ClearedBy  string `json:"clearedBy"`
}

// SilentRefreshPayload is the catch-all "something changed, re-fetch"
// signal. Type names what changed; the rest is optional context.
type SilentRefreshPayload struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Message any    `json:"message,omitempty"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)
