package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dispatchdesk/internal/models"
	"dispatchdesk/internal/repositories"
	"dispatchdesk/internal/utils"
)

type UserService interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	// FindOrCreateByPhone returns the user owning phone, creating one with a
	// placeholder username on first verification.
	FindOrCreateByPhone(ctx context.Context, phone string) (*models.User, error)
}

type userService struct {
	repo   repositories.UserRepository
	logger *zap.Logger
}

func NewUserService(repo repositories.UserRepository, logger *zap.Logger) UserService {
	return &userService{repo: repo, logger: logger}
}

func (s *userService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *userService) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.repo.GetByPhone(ctx, phone)
}

func (s *userService) FindOrCreateByPhone(ctx context.Context, phone string) (*models.User, error) {
	u, err := s.repo.GetByPhone(ctx, phone)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("find user by phone: %w", err)
	}

	u = &models.User{
		Phone:           phone,
		Username:        placeholderUsername(phone),
		ProfileComplete: false,
	}
	err = s.repo.Create(ctx, u)
	if err == nil {
		s.logger.Info("[users][create] placeholder user created", zap.Int64("user_id", u.ID))
		return u, nil
	}
	if !errors.Is(err, repositories.ErrAlreadyExists) {
		return nil, fmt.Errorf("create user: %w", err)
	}
	// lost a race with a concurrent verification of the same phone
	u, err = s.repo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, ErrConflict
	}
	return u, nil
}

func placeholderUsername(phone string) string {
	suffix, err := utils.RandomHex(3)
	if err != nil {
		suffix = "000000"
	}
	return "user_" + utils.PhoneTail(phone, 4) + suffix
}
