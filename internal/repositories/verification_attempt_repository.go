package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"dispatchdesk/internal/models"
)

// AttemptMutation edits an attempt in place and reports whether anything
// changed. Returning false leaves the stored row untouched.
type AttemptMutation func(a *models.VerificationAttempt) bool

// VerificationAttemptRepository stores attempts. Every Mutate* call is one
// atomic read-modify-write scoped to a single attempt.
type VerificationAttemptRepository interface {
	Create(ctx context.Context, a *models.VerificationAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.VerificationAttempt, error)
	GetByLinkToken(ctx context.Context, token string) (*models.VerificationAttempt, error)

	MutateByID(ctx context.Context, id uuid.UUID, fn AttemptMutation) (*models.VerificationAttempt, error)
	// MutateLatestWaitingByChatID locks the newest WAITING_FOR_CONTACT attempt
	// of the chat (created_at DESC, LIMIT 1). Older waiting attempts are ignored.
	MutateLatestWaitingByChatID(ctx context.Context, chatID int64, fn AttemptMutation) (*models.VerificationAttempt, error)
}

type verificationAttemptRepository struct {
	DB *sql.DB
}

func NewVerificationAttemptRepository(db *sql.DB) VerificationAttemptRepository {
	return &verificationAttemptRepository{DB: db}
}

const selectAttempt = `
	SELECT id, phone, status, link_token, chat_id, code_hash,
		attempts, max_attempts, expires_at, created_at, updated_at
	FROM verification_attempts
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*models.VerificationAttempt, error) {
	var (
		a        models.VerificationAttempt
		status   string
		chatID   sql.NullInt64
		codeHash sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.Phone, &status, &a.LinkToken, &chatID, &codeHash,
		&a.Attempts, &a.MaxAttempts, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Status = models.VerificationStatus(status)
	if chatID.Valid {
		id := chatID.Int64
		a.ChatID = &id
	}
	if codeHash.Valid {
		a.CodeHash = codeHash.String
	}
	return &a, nil
}

func nullableChat(chatID *int64) sql.NullInt64 {
	if chatID == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *chatID, Valid: true}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *verificationAttemptRepository) Create(ctx context.Context, a *models.VerificationAttempt) error {
	const q = `
		INSERT INTO verification_attempts (
			id, phone, status, link_token, chat_id, code_hash,
			attempts, max_attempts, expires_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	_, err := r.DB.ExecContext(ctx, q,
		a.ID, a.Phone, string(a.Status), a.LinkToken, nullableChat(a.ChatID), nullableString(a.CodeHash),
		a.Attempts, a.MaxAttempts, a.ExpiresAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("verification attempt create: %w", err)
	}
	return nil
}

func (r *verificationAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VerificationAttempt, error) {
	a, err := scanAttempt(r.DB.QueryRowContext(ctx, selectAttempt+`WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("verification attempt get: %w", err)
	}
	return a, err
}

func (r *verificationAttemptRepository) GetByLinkToken(ctx context.Context, token string) (*models.VerificationAttempt, error) {
	a, err := scanAttempt(r.DB.QueryRowContext(ctx, selectAttempt+`WHERE link_token = $1`, token))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("verification attempt by link token: %w", err)
	}
	return a, err
}

func (r *verificationAttemptRepository) MutateByID(ctx context.Context, id uuid.UUID, fn AttemptMutation) (*models.VerificationAttempt, error) {
	return r.mutate(ctx, `WHERE id = $1 FOR UPDATE`, id, fn)
}

func (r *verificationAttemptRepository) MutateLatestWaitingByChatID(ctx context.Context, chatID int64, fn AttemptMutation) (*models.VerificationAttempt, error) {
	return r.mutate(ctx, `
		WHERE chat_id = $1 AND status = 'WAITING_FOR_CONTACT'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`, chatID, fn)
}

// mutate locks one row, lets fn edit it and writes it back in the same
// transaction.
func (r *verificationAttemptRepository) mutate(ctx context.Context, where string, arg any, fn AttemptMutation) (*models.VerificationAttempt, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("verification attempt begin: %w", err)
	}
	defer tx.Rollback()

	a, err := scanAttempt(tx.QueryRowContext(ctx, selectAttempt+where, arg))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("verification attempt lock: %w", err)
	}
	if !fn(a) {
		return a, nil
	}

	const q = `
		UPDATE verification_attempts
		SET status = $1, chat_id = $2, code_hash = $3, attempts = $4,
			expires_at = $5, updated_at = $6
		WHERE id = $7
	`
	if _, err := tx.ExecContext(ctx, q,
		string(a.Status), nullableChat(a.ChatID), nullableString(a.CodeHash), a.Attempts,
		a.ExpiresAt, a.UpdatedAt, a.ID,
	); err != nil {
		return nil, fmt.Errorf("verification attempt update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("verification attempt commit: %w", err)
	}
	return a, nil
}
