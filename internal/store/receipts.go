package store

import (
	"context"
	"fmt"

	"localchat-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReceiptStore defines persistence operations for read receipts.
type ReceiptStore interface {
	Upsert(ctx context.Context, receipt *models.ReadReceipt) error
	ListByChatID(ctx context.Context, chatID uuid.UUID) ([]*models.ReadReceipt, error)
}

// PostgresReceiptStore implements ReceiptStore with PostgreSQL.
type PostgresReceiptStore struct {
	db *pgxpool.Pool
}

func NewPostgresReceiptStore(db *pgxpool.Pool) *PostgresReceiptStore {
	return &PostgresReceiptStore{db: db}
}

// Upsert writes a receipt, overwriting any prior receipt for the same
// (chat_id, user_id). Monotonicity of the read position is the client's
// responsibility, not enforced here.
func (s *PostgresReceiptStore) Upsert(ctx context.Context, receipt *models.ReadReceipt) error {
	query := `
        INSERT INTO read_receipts (chat_id, user_id, message_id, read_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (chat_id, user_id)
        DO UPDATE SET message_id = EXCLUDED.message_id, read_at = EXCLUDED.read_at
    `
	_, err := s.db.Exec(ctx, query, receipt.ChatID, receipt.UserID, receipt.MessageID, receipt.ReadAt)
	if err != nil {
		return fmt.Errorf("failed to upsert read receipt for chat %s user %s: %w", receipt.ChatID, receipt.UserID, err)
	}
	return nil
}

func (s *PostgresReceiptStore) ListByChatID(ctx context.Context, chatID uuid.UUID) ([]*models.ReadReceipt, error) {
	query := `SELECT chat_id, user_id, message_id, read_at FROM read_receipts WHERE chat_id = $1`
	rows, err := s.db.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query read receipts for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var receipts []*models.ReadReceipt
	for rows.Next() {
		r := &models.ReadReceipt{}
		if err := rows.Scan(&r.ChatID, &r.UserID, &r.MessageID, &r.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan read receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating read receipt rows: %w", err)
	}
	return receipts, nil
}
