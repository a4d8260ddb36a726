package store

import (
	"context"
	"fmt"

	"localchat-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AlertStore defines persistence operations for notification alerts.
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Alert, error)
}

// PostgresAlertStore implements AlertStore with PostgreSQL.
type PostgresAlertStore struct {
	db *pgxpool.Pool
}

func NewPostgresAlertStore(db *pgxpool.Pool) *PostgresAlertStore {
	return &PostgresAlertStore{db: db}
}

func (s *PostgresAlertStore) Create(ctx context.Context, alert *models.Alert) error {
	query := `
        INSERT INTO alerts (id, user_id, chat_id, body, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING created_at
    `
	err := s.db.QueryRow(ctx, query, alert.ID, alert.UserID, alert.ChatID, alert.Body).Scan(&alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert for user %s: %w", alert.UserID, err)
	}
	return nil
}

func (s *PostgresAlertStore) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Alert, error) {
	query := `
        SELECT id, user_id, chat_id, body, created_at
        FROM alerts
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		a := &models.Alert{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.ChatID, &a.Body, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return alerts, nil
}
