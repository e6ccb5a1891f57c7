package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dispatchdesk/internal/models"
)

// TelegramLinkRepository keeps the chat <-> user mapping. A chat and a user
// each appear in at most one row.
type TelegramLinkRepository interface {
	GetByChatID(ctx context.Context, chatID int64) (*models.TelegramIdentity, error)
	GetByUserID(ctx context.Context, userID int64) (*models.TelegramIdentity, error)
	Create(ctx context.Context, link *models.TelegramIdentity) error
}

type telegramLinkRepository struct{ db *sql.DB }

func NewTelegramLinkRepository(db *sql.DB) TelegramLinkRepository {
	return &telegramLinkRepository{db: db}
}

func (r *telegramLinkRepository) GetByChatID(ctx context.Context, chatID int64) (*models.TelegramIdentity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, chat_id, user_id, linked_at
		FROM telegram_links
		WHERE chat_id = $1
	`, chatID)
	return scanLink(row)
}

func (r *telegramLinkRepository) GetByUserID(ctx context.Context, userID int64) (*models.TelegramIdentity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, chat_id, user_id, linked_at
		FROM telegram_links
		WHERE user_id = $1
	`, userID)
	return scanLink(row)
}

func (r *telegramLinkRepository) Create(ctx context.Context, link *models.TelegramIdentity) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO telegram_links (chat_id, user_id, linked_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, link.ChatID, link.UserID, link.LinkedAt)
	if err := row.Scan(&link.ID); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("telegram link create: %w", err)
	}
	return nil
}

func scanLink(row *sql.Row) (*models.TelegramIdentity, error) {
	var l models.TelegramIdentity
	if err := row.Scan(&l.ID, &l.ChatID, &l.UserID, &l.LinkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("telegram link scan: %w", err)
	}
	return &l, nil
}
