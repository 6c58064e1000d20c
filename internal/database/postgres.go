package database

import (
	"context"
	"fmt"

	"taskchat-gateway/internal/models"
	"taskchat-gateway/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, full_name, email, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (full_name, email, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, full_name, email, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, req.FullName, req.Email, string(hash)).Scan(
		&user.ID, &user.FullName, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, full_name, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.FullName, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// ChatRoom Repository Implementation

func (db *PostgresDB) CreateChatRoom(ctx context.Context, req *models.CreateChatRoomRequest, creatorID int) (*models.ChatRoom, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO chat_rooms (name, is_direct_message, created_by, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, name, is_direct_message, created_by, created_at`

	room := &models.ChatRoom{}
	err = tx.QueryRow(ctx, query, req.Name, req.IsDirectMessage, creatorID).Scan(
		&room.ID, &room.Name, &room.IsDirectMessage, &room.CreatedBy, &room.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat room: %w", err)
	}

	// Creator is always a participant
	participants := append([]int{creatorID}, req.ParticipantIDs...)
	seen := make(map[int]bool)
	for _, userID := range participants {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		_, err = tx.Exec(ctx,
			`INSERT INTO chat_room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			room.ID, userID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to add participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return room, nil
}

func (db *PostgresDB) GetChatRoomByID(ctx context.Context, id int) (*models.ChatRoom, error) {
	query := `SELECT id, name, is_direct_message, created_by, created_at FROM chat_rooms WHERE id = $1`

	room := &models.ChatRoom{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.IsDirectMessage, &room.CreatedBy, &room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (db *PostgresDB) ListUserChatRooms(ctx context.Context, userID int) ([]*models.ChatRoom, error) {
	query := `
		SELECT r.id, r.name, r.is_direct_message, r.created_by, r.created_at
		FROM chat_rooms r
		JOIN chat_room_participants p ON p.room_id = r.id
		WHERE p.user_id = $1
		ORDER BY r.created_at DESC`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.ChatRoom
	for rows.Next() {
		room := &models.ChatRoom{}
		if err := rows.Scan(&room.ID, &room.Name, &room.IsDirectMessage, &room.CreatedBy, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (db *PostgresDB) DeleteChatRoom(ctx context.Context, roomID int) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE room_id = $1`, roomID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chat_room_participants WHERE room_id = $1`, roomID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chat_rooms WHERE id = $1`, roomID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (db *PostgresDB) SetCreator(ctx context.Context, roomID, userID int) error {
	_, err := db.pool.Exec(ctx, `UPDATE chat_rooms SET created_by = $2 WHERE id = $1`, roomID, userID)
	return err
}

// Participant Repository Implementation

func (db *PostgresDB) AddParticipant(ctx context.Context, roomID, userID int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO chat_room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, userID,
	)
	return err
}

func (db *PostgresDB) RemoveParticipant(ctx context.Context, roomID, userID int) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM chat_room_participants WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	)
	return err
}

func (db *PostgresDB) IsParticipant(ctx context.Context, roomID, userID int) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_room_participants WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) GetParticipants(ctx context.Context, roomID int) ([]*models.Member, error) {
	query := `
		SELECT u.id, u.full_name, u.email
		FROM users u
		JOIN chat_room_participants p ON p.user_id = u.id
		WHERE p.room_id = $1
		ORDER BY u.full_name`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m := &models.Member{}
		if err := rows.Scan(&m.ID, &m.FullName, &m.Email); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Message Repository Implementation

func (db *PostgresDB) SaveMessage(ctx context.Context, roomID, senderID int, content string) (*models.Message, error) {
	query := `
		INSERT INTO chat_messages (room_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, room_id, sender_id, content, created_at`

	msg := &models.Message{}
	err := db.pool.QueryRow(ctx, query, roomID, senderID, content).Scan(
		&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return msg, nil
}

func (db *PostgresDB) LoadRecentMessages(ctx context.Context, roomID, limit int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.sender_id, u.full_name, m.content, m.created_at
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first for display
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (db *PostgresDB) DeleteMessages(ctx context.Context, roomID int, messageIDs []int) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM chat_messages WHERE room_id = $1 AND id = ANY($2)`,
		roomID, messageIDs,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (db *PostgresDB) DeleteAllMessages(ctx context.Context, roomID int) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM chat_messages WHERE room_id = $1`, roomID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
