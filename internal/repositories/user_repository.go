package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dispatchdesk/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (phone, username, profile_complete)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.DB.QueryRowContext(ctx, q, user.Phone, user.Username, user.ProfileComplete).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("user create: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	const q = `
		SELECT id, phone, username, profile_complete, created_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.DB.QueryRowContext(ctx, q, id))
}

func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	const q = `
		SELECT id, phone, username, profile_complete, created_at
		FROM users
		WHERE phone = $1
	`
	return r.scanOne(r.DB.QueryRowContext(ctx, q, phone))
}

func (r *userRepository) scanOne(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var username sql.NullString
	if err := row.Scan(&u.ID, &u.Phone, &username, &u.ProfileComplete, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user scan: %w", err)
	}
	if username.Valid {
		u.Username = username.String
	}
	return u, nil
}
