package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"localchat-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageStore defines persistence operations for messages. Messages are
// append-only; rows are only ever removed by a whole-chat cascade.
type MessageStore interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	ListByChatID(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*models.Message, error)
	GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
}

// PostgresMessageStore implements MessageStore with PostgreSQL.
type PostgresMessageStore struct {
	db *pgxpool.Pool
}

func NewPostgresMessageStore(db *pgxpool.Pool) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

func scanMessageWithSender(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	var createdAt time.Time
	var sender models.PublicUser

	err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.Content,
		&msg.Type,
		&createdAt,
		&sender.Username,
	)
	if err != nil {
		return nil, err
	}

	msg.Timestamp = models.JSONTime(createdAt)
	sender.ID = msg.SenderID
	msg.Sender = &sender
	return &msg, nil
}

func (s *PostgresMessageStore) CreateMessage(ctx context.Context, message *models.Message) error {
	query := `
        INSERT INTO messages (id, chat_id, sender_id, content, message_type, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := s.db.Exec(ctx, query,
		message.ID,
		message.ChatID,
		message.SenderID,
		message.Content,
		message.Type,
		message.Timestamp.Time(),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByChatID returns one page of a chat's messages, oldest-first within the
// page, each with the sender's id and name denormalized.
func (s *PostgresMessageStore) ListByChatID(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*models.Message, error) {
	query := `
        SELECT m.id, m.chat_id, m.sender_id, m.content, m.message_type, m.created_at, u.username
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.chat_id = $1
        ORDER BY m.created_at ASC
        LIMIT $2 OFFSET $3
    `
	rows, err := s.db.Query(ctx, query, chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages by chat ID: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		msg, err := scanMessageWithSender(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func (s *PostgresMessageStore) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	query := `
        SELECT m.id, m.chat_id, m.sender_id, m.content, m.message_type, m.created_at, u.username
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.id = $1
    `
	msg, err := scanMessageWithSender(s.db.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message by ID: %w", err)
	}
	return msg, nil
}

var (
	ErrMessageNotFound = fmt.Errorf("message not found")
)
