package database

import (
	"context"

	"taskchat-gateway/internal/models"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

type ChatRoomRepository interface {
	CreateChatRoom(ctx context.Context, req *models.CreateChatRoomRequest, creatorID int) (*models.ChatRoom, error)
	GetChatRoomByID(ctx context.Context, id int) (*models.ChatRoom, error)
	ListUserChatRooms(ctx context.Context, userID int) ([]*models.ChatRoom, error)
	DeleteChatRoom(ctx context.Context, roomID int) error
	SetCreator(ctx context.Context, roomID, userID int) error
}

// ParticipantRepository owns the durable participant list. This list is
// authoritative for who may be told to join a room; the gateway's own
// subscription set only governs delivery.
type ParticipantRepository interface {
	AddParticipant(ctx context.Context, roomID, userID int) error
	RemoveParticipant(ctx context.Context, roomID, userID int) error
	IsParticipant(ctx context.Context, roomID, userID int) (bool, error)
	GetParticipants(ctx context.Context, roomID int) ([]*models.Member, error)
}

type MessageRepository interface {
	SaveMessage(ctx context.Context, roomID, senderID int, content string) (*models.Message, error)
	LoadRecentMessages(ctx context.Context, roomID, limit int) ([]*models.Message, error)
	DeleteMessages(ctx context.Context, roomID int, messageIDs []int) (int64, error)
	DeleteAllMessages(ctx context.Context, roomID int) (int64, error)
}

type Database interface {
	UserRepository
	ChatRoomRepository
	ParticipantRepository
	MessageRepository
	Close() error
}
