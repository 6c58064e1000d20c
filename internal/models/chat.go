package models

import "time"

// ChatRoom is the persistent conversation record. Its participant list is
// the authoritative membership set; the realtime subscription set lives in
// the gateway and is rebuilt by clients on every connect.
type ChatRoom struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	IsDirectMessage bool      `json:"isDirectMessage"`
	CreatedBy       int       `json:"createdBy"`
	CreatedAt       time.Time `json:"createdAt"`
	Participants    []Member  `json:"participants,omitempty"`
}

type Member struct {
	ID       int    `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type Message struct {
	ID         int       `json:"id"`
	RoomID     int       `json:"roomId"`
	SenderID   int       `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CreateChatRoomRequest struct {
	Name            string `json:"name"`
	IsDirectMessage bool   `json:"isDirectMessage"`
	ParticipantIDs  []int  `json:"participantIds"`
}

type AddMemberRequest struct {
	UserID int `json:"userId"`
}

type DeleteMessagesRequest struct {
	MessageIDs []int `json:"messageIds"`
	DeleteAll  bool  `json:"deleteAll"`
}
