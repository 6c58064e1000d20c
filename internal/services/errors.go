package services

import "errors"

var (
	ErrRoomNotFound       = errors.New("chat room not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("not authorized for this chat room")
	ErrNotParticipant     = errors.New("user is not a member of this chat room")
	ErrAlreadyParticipant = errors.New("user is already a member of this chat room")
	ErrDirectMessageRoom  = errors.New("direct message chats cannot change members")
)
