package services

import (
	"context"

	"go.uber.org/zap"

	"dispatchdesk/internal/models"
	"dispatchdesk/internal/repositories"
)

// AssignmentHook runs once after a phone is verified so that company
// invitations addressed to that phone reach the user.
type AssignmentHook interface {
	ApplyPendingAssignment(ctx context.Context, user *models.User, phone string) error
}

type NoopAssignmentHook struct{}

func (NoopAssignmentHook) ApplyPendingAssignment(context.Context, *models.User, string) error {
	return nil
}

type invitationAssignmentHook struct {
	repo   repositories.EmployeeInvitationRepository
	logger *zap.Logger
}

func NewInvitationAssignmentHook(repo repositories.EmployeeInvitationRepository, logger *zap.Logger) AssignmentHook {
	return &invitationAssignmentHook{repo: repo, logger: logger}
}

func (h *invitationAssignmentHook) ApplyPendingAssignment(ctx context.Context, user *models.User, phone string) error {
	n, err := h.repo.ClaimPendingByPhone(ctx, user.ID, phone)
	if err != nil {
		return err
	}
	if n > 0 {
		h.logger.Info("[assign][claim] invitations assigned", zap.Int64("user_id", user.ID), zap.Int64("count", n))
	}
	return nil
}
