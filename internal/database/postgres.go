package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-sync/internal/models"
	"chat-sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// fetchLimit bounds the initial bulk read of a room.
const fetchLimit = 200

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
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// Pool exposes the connection pool for the LISTEN/NOTIFY transport.
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Probe verifies that the chat procedures installed by the migrations exist.
func (db *PostgresDB) Probe(ctx context.Context) error {
	query := `
		SELECT to_regprocedure('chat_list_rooms(uuid)') IS NOT NULL
		   AND to_regprocedure('chat_mark_read(uuid, uuid)') IS NOT NULL
		   AND to_regprocedure('chat_get_profile(uuid)') IS NOT NULL`

	var installed bool
	if err := db.pool.QueryRow(ctx, query).Scan(&installed); err != nil {
		return fmt.Errorf("probe chat procedures: %w", err)
	}
	if !installed {
		return errors.New("chat procedures are not installed")
	}
	return nil
}

// Room Directory
func (db *PostgresDB) ListRooms(ctx context.Context, actorID string) ([]models.Room, error) {
	if err := uuid.Validate(actorID); err != nil {
		return nil, fmt.Errorf("invalid actor id: %w", err)
	}

	query := `
		SELECT id::text, name, last_message, last_message_at, unread_count
		FROM chat_list_rooms($1)`

	rows, err := db.pool.Query(ctx, query, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		var (
			room     models.Room
			preview  *string
			previewT *time.Time
		)
		if err := rows.Scan(&room.ID, &room.Name, &preview, &previewT, &room.UnreadCount); err != nil {
			return nil, err
		}
		if preview != nil {
			room.LastMessage = *preview
		}
		if previewT != nil {
			room.LastMessageAt = *previewT
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PostgresDB) MarkRead(ctx context.Context, actorID, roomID string) error {
	_, err := db.pool.Exec(ctx, `SELECT chat_mark_read($1, $2)`, roomID, actorID)
	if err != nil {
		return fmt.Errorf("mark room %s read: %w", roomID, err)
	}
	return nil
}

// Messages
func (db *PostgresDB) FetchMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	query := `
		SELECT id::text, room_id::text, sender_id::text, content, created_at, updated_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, fetchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, err
		}
		msg.Sender = models.PlaceholderSender(msg.SenderID)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PostgresDB) InsertMessage(ctx context.Context, roomID, senderID, content string) (models.Message, error) {
	query := `
		INSERT INTO messages (room_id, sender_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id::text, room_id::text, sender_id::text, content, created_at, updated_at`

	var msg models.Message
	err := db.pool.QueryRow(ctx, query, roomID, senderID, content).Scan(
		&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	msg.Sender = models.PlaceholderSender(msg.SenderID)

	return msg, nil
}

// Profiles
func (db *PostgresDB) LookupProfiles(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if uuid.Validate(id) == nil {
			ids = append(ids, id)
		}
	}

	profiles := make(map[string]models.Profile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	query := `
		SELECT id::text, COALESCE(display_name, ''), COALESCE(email, ''), COALESCE(avatar_url, '')
		FROM profiles
		WHERE id = ANY($1::uuid[])`

	rows, err := db.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Email, &p.AvatarURL); err != nil {
			return nil, err
		}
		profiles[p.ID] = p
	}

	return profiles, rows.Err()
}

func (db *PostgresDB) LookupProfileRPC(ctx context.Context, userID string) (models.Profile, error) {
	if uuid.Validate(userID) != nil {
		return models.Profile{}, ErrNotFound
	}

	query := `
		SELECT id::text, COALESCE(display_name, ''), COALESCE(email, ''), COALESCE(avatar_url, '')
		FROM chat_get_profile($1)`

	var p models.Profile
	err := db.pool.QueryRow(ctx, query, userID).Scan(&p.ID, &p.DisplayName, &p.Email, &p.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("profile rpc: %w", err)
	}

	return p, nil
}
