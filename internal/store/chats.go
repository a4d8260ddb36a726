package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"localchat-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatStore defines persistence operations for chats and their members.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *models.Chat, members []models.ChatMember) error
	GetChatByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)
	GetDirectChatByMembers(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error)
	ListGeoGroups(ctx context.Context) ([]*models.Chat, error)

	GetChatMembers(ctx context.Context, chatID uuid.UUID) ([]models.MemberInfo, error)
	GetMemberRole(ctx context.Context, chatID, userID uuid.UUID) (models.MemberRole, error)
	AddMember(ctx context.Context, member models.ChatMember) error
	RemoveMember(ctx context.Context, chatID, userID uuid.UUID) error
	CountMembers(ctx context.Context, chatID uuid.UUID) (int, error)
	DeleteChatCascade(ctx context.Context, chatID uuid.UUID) error
}

// PostgresChatStore implements ChatStore with PostgreSQL.
type PostgresChatStore struct {
	db *pgxpool.Pool
}

func NewPostgresChatStore(db *pgxpool.Pool) *PostgresChatStore {
	return &PostgresChatStore{db: db}
}

const chatColumns = `id, is_group, name, created_by, latitude, longitude, radius_km, created_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	chat := &models.Chat{}
	err := row.Scan(
		&chat.ID,
		&chat.IsGroup,
		&chat.Name,
		&chat.CreatedBy,
		&chat.Latitude,
		&chat.Longitude,
		&chat.RadiusKm,
		&chat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// CreateChat inserts the chat row and one membership row per member in a
// single transaction.
func (s *PostgresChatStore) CreateChat(ctx context.Context, chat *models.Chat, members []models.ChatMember) error {
	if len(members) == 0 {
		return fmt.Errorf("at least one member is required to create a chat")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	chatQuery := `
        INSERT INTO chats (id, is_group, name, created_by, latitude, longitude, radius_km, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        RETURNING created_at
    `
	err = tx.QueryRow(ctx, chatQuery,
		chat.ID, chat.IsGroup, chat.Name, chat.CreatedBy, chat.Latitude, chat.Longitude, chat.RadiusKm,
	).Scan(&chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat entry: %w", err)
	}

	memberQuery := `INSERT INTO chat_members (chat_id, user_id, role, created_at) VALUES ($1, $2, $3, NOW())`
	for _, m := range members {
		if _, err = tx.Exec(ctx, memberQuery, chat.ID, m.UserID, m.Role); err != nil {
			return fmt.Errorf("failed to add member %s to chat %s: %w", m.UserID, chat.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresChatStore) GetChatByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`
	chat, err := scanChat(s.db.QueryRow(ctx, query, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat by ID %s: %w", chatID, err)
	}
	return chat, nil
}

// GetDirectChatByMembers finds the non-group chat whose member set is exactly
// {userA, userB}. The existence check before insert is a documented
// check-then-act race window; concurrent creates for the same pair can both
// miss here.
func (s *PostgresChatStore) GetDirectChatByMembers(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error) {
	query := `
        SELECT ` + chatColumns + `
        FROM chats c
        WHERE c.is_group = FALSE
          AND EXISTS (SELECT 1 FROM chat_members m1 WHERE m1.chat_id = c.id AND m1.user_id = $1)
          AND EXISTS (SELECT 1 FROM chat_members m2 WHERE m2.chat_id = c.id AND m2.user_id = $2)
          AND (SELECT COUNT(*) FROM chat_members mc WHERE mc.chat_id = c.id) = 2
        LIMIT 1
    `
	chat, err := scanChat(s.db.QueryRow(ctx, query, userA, userB))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get direct chat by members: %w", err)
	}
	return chat, nil
}

// ListChatsForUser returns every chat the user belongs to, most recently
// active first, with the last message (sender populated) attached.
func (s *PostgresChatStore) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	query := `
        SELECT
            c.id, c.is_group, c.name, c.created_by, c.latitude, c.longitude, c.radius_km, c.created_at,
            lm.id, lm.sender_id, lm.content, lm.message_type, lm.created_at, lu.username
        FROM chats c
        JOIN chat_members cm ON cm.chat_id = c.id AND cm.user_id = $1
        LEFT JOIN LATERAL (
            SELECT m.id, m.sender_id, m.content, m.message_type, m.created_at
            FROM messages m
            WHERE m.chat_id = c.id
            ORDER BY m.created_at DESC
            LIMIT 1
        ) lm ON TRUE
        LEFT JOIN users lu ON lu.id = lm.sender_id
        ORDER BY lm.created_at DESC NULLS LAST, c.created_at DESC
    `
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats for user %s: %w", userID, err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		chat := &models.Chat{}
		var lmID, lmSenderID *uuid.UUID
		var lmContent, lmType, lmSenderName *string
		var lmCreatedAt *time.Time

		err := rows.Scan(
			&chat.ID, &chat.IsGroup, &chat.Name, &chat.CreatedBy,
			&chat.Latitude, &chat.Longitude, &chat.RadiusKm, &chat.CreatedAt,
			&lmID, &lmSenderID, &lmContent, &lmType, &lmCreatedAt, &lmSenderName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat row for user %s: %w", userID, err)
		}

		if lmID != nil && lmSenderID != nil {
			chat.LastMessage = &models.Message{
				ID:       *lmID,
				ChatID:   chat.ID,
				SenderID: *lmSenderID,
				Content:  deref(lmContent),
				Type:     models.MessageType(deref(lmType)),
			}
			if lmCreatedAt != nil {
				chat.LastMessage.Timestamp = models.JSONTime(*lmCreatedAt)
			}
			if lmSenderName != nil {
				chat.LastMessage.Sender = &models.PublicUser{ID: *lmSenderID, Username: *lmSenderName}
			}
		}
		chats = append(chats, chat)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows for user %s: %w", userID, err)
	}
	return chats, nil
}

// ListGeoGroups returns all group chats with geo fields set, for the local
// group matcher.
func (s *PostgresChatStore) ListGeoGroups(ctx context.Context) ([]*models.Chat, error) {
	query := `
        SELECT ` + chatColumns + `
        FROM chats
        WHERE is_group = TRUE
          AND latitude IS NOT NULL AND longitude IS NOT NULL AND radius_km IS NOT NULL
    `
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query geo groups: %w", err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan geo group row: %w", err)
		}
		chats = append(chats, chat)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating geo group rows: %w", err)
	}
	return chats, nil
}

func (s *PostgresChatStore) GetChatMembers(ctx context.Context, chatID uuid.UUID) ([]models.MemberInfo, error) {
	query := `
        SELECT u.id, u.username, u.postal_code, cm.role
        FROM chat_members cm
        JOIN users u ON u.id = cm.user_id
        WHERE cm.chat_id = $1
        ORDER BY cm.created_at
    `
	rows, err := s.db.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var members []models.MemberInfo
	for rows.Next() {
		var m models.MemberInfo
		if err := rows.Scan(&m.UserID, &m.Username, &m.PostalCode, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan member row for chat %s: %w", chatID, err)
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows for chat %s: %w", chatID, err)
	}
	return members, nil
}

func (s *PostgresChatStore) GetMemberRole(ctx context.Context, chatID, userID uuid.UUID) (models.MemberRole, error) {
	query := `SELECT role FROM chat_members WHERE chat_id = $1 AND user_id = $2`
	var role models.MemberRole
	err := s.db.QueryRow(ctx, query, chatID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrMemberNotFound
		}
		return "", fmt.Errorf("failed to get role for user %s in chat %s: %w", userID, chatID, err)
	}
	return role, nil
}

// AddMember is idempotent: re-adding an existing member is a no-op.
func (s *PostgresChatStore) AddMember(ctx context.Context, member models.ChatMember) error {
	query := `
        INSERT INTO chat_members (chat_id, user_id, role, created_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (chat_id, user_id) DO NOTHING
    `
	_, err := s.db.Exec(ctx, query, member.ChatID, member.UserID, member.Role)
	if err != nil {
		return fmt.Errorf("failed to add user %s to chat %s: %w", member.UserID, member.ChatID, err)
	}
	return nil
}

func (s *PostgresChatStore) RemoveMember(ctx context.Context, chatID, userID uuid.UUID) error {
	query := `DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2`
	tag, err := s.db.Exec(ctx, query, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove user %s from chat %s: %w", userID, chatID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *PostgresChatStore) CountMembers(ctx context.Context, chatID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM chat_members WHERE chat_id = $1`, chatID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members for chat %s: %w", chatID, err)
	}
	return count, nil
}

// DeleteChatCascade removes a chat and everything hanging off it: messages,
// read receipts, remaining memberships, then the chat row. Cleanup, not
// soft-delete.
func (s *PostgresChatStore) DeleteChatCascade(ctx context.Context, chatID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	statements := []string{
		`DELETE FROM messages WHERE chat_id = $1`,
		`DELETE FROM read_receipts WHERE chat_id = $1`,
		`DELETE FROM chat_members WHERE chat_id = $1`,
		`DELETE FROM chats WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err = tx.Exec(ctx, stmt, chatID); err != nil {
			return fmt.Errorf("failed cascade delete for chat %s: %w", chatID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cascade delete for chat %s: %w", chatID, err)
	}
	log.Printf("ChatStore: Cascade-deleted empty chat %s", chatID)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var (
	ErrChatNotFound   = fmt.Errorf("chat not found")
	ErrMemberNotFound = fmt.Errorf("chat member not found")
)
