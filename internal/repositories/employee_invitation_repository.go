package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// EmployeeInvitationRepository hands pending company invitations over to the
// user that proved ownership of the invited phone.
type EmployeeInvitationRepository interface {
	ClaimPendingByPhone(ctx context.Context, userID int64, phone string) (int64, error)
}

type employeeInvitationRepository struct {
	DB *sql.DB
}

func NewEmployeeInvitationRepository(db *sql.DB) EmployeeInvitationRepository {
	return &employeeInvitationRepository{DB: db}
}

// ClaimPendingByPhone returns how many invitations were assigned.
func (r *employeeInvitationRepository) ClaimPendingByPhone(ctx context.Context, userID int64, phone string) (int64, error) {
	const q = `
		UPDATE employee_invitations
		SET user_id = $1, accepted_at = NOW()
		WHERE phone = $2 AND accepted_at IS NULL
	`
	res, err := r.DB.ExecContext(ctx, q, userID, phone)
	if err != nil {
		return 0, fmt.Errorf("employee invitation claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("employee invitation claim rows: %w", err)
	}
	return n, nil
}
