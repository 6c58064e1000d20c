package services

import (
	"context"
	"fmt"
	"strconv"

	"taskchat-gateway/internal/database"
	"taskchat-gateway/internal/gateway"
	"taskchat-gateway/internal/models"
)

// Broadcaster is the realtime layer's dispatch contract. Storage-side
// membership changes go through it so live clients hear about them; it is
// the only way this package reaches the gateway.
type Broadcaster interface {
	Dispatch(gateway.Event)
}

type RoomService struct {
	db        database.Database
	broadcast Broadcaster
}

func NewRoomService(db database.Database, broadcast Broadcaster) *RoomService {
	return &RoomService{db: db, broadcast: broadcast}
}

func (s *RoomService) CreateRoom(ctx context.Context, req *models.CreateChatRoomRequest, creatorID int) (*models.ChatRoom, error) {
	if req.Name == "" && !req.IsDirectMessage {
		return nil, fmt.Errorf("room name is required")
	}

	room, err := s.db.CreateChatRoom(ctx, req, creatorID)
	if err != nil {
		return nil, err
	}

	s.broadcast.Dispatch(gateway.Event{
		Type:    gateway.EventSilentRefresh,
		Payload: gateway.SilentRefreshPayload{Type: "new-chat-room", RoomID: strconv.Itoa(room.ID)},
	})

	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, roomID int) (*models.ChatRoom, error) {
	room, err := s.db.GetChatRoomByID(ctx, roomID)
	if err != nil {
		return nil, ErrRoomNotFound
	}
	room.Participants, err = s.membersOf(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *RoomService) ListUserRooms(ctx context.Context, userID int) ([]*models.ChatRoom, error) {
	return s.db.ListUserChatRooms(ctx, userID)
}

// AddMember adds userID to the room's persistent participant list and
// announces the change to live clients.
func (s *RoomService) AddMember(ctx context.Context, roomID, userID, byUserID int) error {
	room, err := s.db.GetChatRoomByID(ctx, roomID)
	if err != nil {
		return ErrRoomNotFound
	}
	if room.IsDirectMessage {
		return ErrDirectMessageRoom
	}

	// Creator or existing participant may add members.
	if room.CreatedBy != byUserID {
		isMember, err := s.db.IsParticipant(ctx, roomID, byUserID)
		if err != nil {
			return err
		}
		if !isMember {
			return ErrForbidden
		}
	}

	already, err := s.db.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if already {
		return ErrAlreadyParticipant
	}

	if err := s.db.AddParticipant(ctx, roomID, userID); err != nil {
		return err
	}

	s.broadcast.Dispatch(gateway.Event{
		Type:   gateway.EventChatMemberUpdate,
		RoomID: strconv.Itoa(roomID),
		UserID: strconv.Itoa(userID),
		Payload: gateway.MemberUpdatePayload{
			RoomID: strconv.Itoa(roomID),
			Action: "add",
			UserID: strconv.Itoa(userID),
		},
	})
	return nil
}

// RemoveMember removes memberID from the participant list. The creator may
// remove anyone; everyone else may only remove themselves. Removing the last
// participant deletes the room, and live clients get a delete-chat-room
// refresh instead of a member update.
func (s *RoomService) RemoveMember(ctx context.Context, roomID, memberID, byUserID int) error {
	room, err := s.db.GetChatRoomByID(ctx, roomID)
	if err != nil {
		return ErrRoomNotFound
	}
	if room.IsDirectMessage {
		return ErrDirectMessageRoom
	}

	isCreator := room.CreatedBy == byUserID
	isRemovingSelf := memberID == byUserID
	if !isCreator && !isRemovingSelf {
		return ErrForbidden
	}

	isMember, err := s.db.IsParticipant(ctx, roomID, memberID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotParticipant
	}

	if err := s.db.RemoveParticipant(ctx, roomID, memberID); err != nil {
		return err
	}

	remaining, err := s.db.GetParticipants(ctx, roomID)
	if err != nil {
		return err
	}

	if len(remaining) == 0 {
		if err := s.db.DeleteChatRoom(ctx, roomID); err != nil {
			return err
		}
		s.broadcast.Dispatch(gateway.Event{
			Type:    gateway.EventSilentRefresh,
			Payload: gateway.SilentRefreshPayload{Type: "delete-chat-room", RoomID: strconv.Itoa(roomID)},
		})
		return nil
	}

	// The creator leaving hands the room to the next participant.
	if isRemovingSelf && isCreator {
		if err := s.db.SetCreator(ctx, roomID, remaining[0].ID); err != nil {
			return err
		}
	}

	s.broadcast.Dispatch(gateway.Event{
		Type:   gateway.EventChatMemberUpdate,
		RoomID: strconv.Itoa(roomID),
		UserID: strconv.Itoa(memberID),
		Payload: gateway.MemberUpdatePayload{
			RoomID: strconv.Itoa(roomID),
			Action: "remove",
			UserID: strconv.Itoa(memberID),
		},
	})
	return nil
}

// ForceAddMember is the admin path: no permission check against the room,
// and the added user's profile rides along in the event so their client can
// react without a re-fetch.
func (s *RoomService) ForceAddMember(ctx context.Context, roomID, userID int) (*models.Member, error) {
	if _, err := s.db.GetChatRoomByID(ctx, roomID); err != nil {
		return nil, ErrRoomNotFound
	}

	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	already, err := s.db.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, ErrAlreadyParticipant
	}

	if err := s.db.AddParticipant(ctx, roomID, userID); err != nil {
		return nil, err
	}

	member := &models.Member{ID: user.ID, FullName: user.FullName, Email: user.Email}
	s.broadcast.Dispatch(gateway.Event{
		Type:   gateway.EventForceUserAdded,
		RoomID: strconv.Itoa(roomID),
		UserID: strconv.Itoa(userID),
		Payload: gateway.ForceUserAddedPayload{
			RoomID: strconv.Itoa(roomID),
			User:   member,
		},
	})
	return member, nil
}

// DeleteMessages removes the given messages (or all of them) and tells the
// room so open clients drop them from view.
func (s *RoomService) DeleteMessages(ctx context.Context, roomID int, req *models.DeleteMessagesRequest) (int64, error) {
	var (
		deleted int64
		err     error
	)
	if req.DeleteAll {
		deleted, err = s.db.DeleteAllMessages(ctx, roomID)
	} else {
		deleted, err = s.db.DeleteMessages(ctx, roomID, req.MessageIDs)
	}
	if err != nil {
		return 0, err
	}

	ids := req.MessageIDs
	if req.DeleteAll {
		ids = []int{}
	}
	s.broadcast.Dispatch(gateway.Event{
		Type:   gateway.EventMessagesDeleted,
		RoomID: strconv.Itoa(roomID),
		Payload: gateway.MessagesDeletedPayload{
			RoomID:     strconv.Itoa(roomID),
			MessageIDs: ids,
			DeleteAll:  req.DeleteAll,
		},
	})
	return deleted, nil
}

// ClearMessages empties a room's history on behalf of a participant.
func (s *RoomService) ClearMessages(ctx context.Context, roomID, byUserID int) (int64, error) {
	canAccess, err := s.CanUserAccessRoom(ctx, byUserID, roomID)
	if err != nil {
		return 0, err
	}
	if !canAccess {
		return 0, ErrForbidden
	}

	deleted, err := s.db.DeleteAllMessages(ctx, roomID)
	if err != nil {
		return 0, err
	}

	s.broadcast.Dispatch(gateway.Event{
		Type:   gateway.EventChatCleared,
		RoomID: strconv.Itoa(roomID),
		Payload: gateway.ChatClearedPayload{
			ChatRoomID: strconv.Itoa(roomID),
			ClearedBy:  strconv.Itoa(byUserID),
		},
	})
	return deleted, nil
}

func (s *RoomService) SaveMessage(ctx context.Context, roomID, senderID int, content string) (*models.Message, error) {
	canAccess, err := s.CanUserAccessRoom(ctx, senderID, roomID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, ErrForbidden
	}
	return s.db.SaveMessage(ctx, roomID, senderID, content)
}

func (s *RoomService) GetHistory(ctx context.Context, roomID, userID, limit int) ([]*models.Message, error) {
	canAccess, err := s.CanUserAccessRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = 50
	}
	return s.db.LoadRecentMessages(ctx, roomID, limit)
}

func (s *RoomService) GetRoomMembers(ctx context.Context, roomID, userID int) ([]*models.Member, error) {
	canAccess, err := s.CanUserAccessRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, ErrForbidden
	}
	return s.db.GetParticipants(ctx, roomID)
}

// CanUserAccessRoom is the authorization half of the realtime trust
// boundary: HTTP callers consult it before telling a client to join a room;
// the gateway itself never re-checks.
func (s *RoomService) CanUserAccessRoom(ctx context.Context, userID, roomID int) (bool, error) {
	if _, err := s.db.GetChatRoomByID(ctx, roomID); err != nil {
		return false, ErrRoomNotFound
	}
	return s.db.IsParticipant(ctx, roomID, userID)
}

func (s *RoomService) membersOf(ctx context.Context, roomID int) ([]models.Member, error) {
	members, err := s.db.GetParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Member, 0, len(members))
	for _, m := range members {
		out = append(out, *m)
	}
	return out, nil
}
