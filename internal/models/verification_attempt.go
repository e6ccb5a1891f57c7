package models

import (
	"time"

	"github.com/google/uuid"
)

type VerificationStatus string

const (
	StatusPending           VerificationStatus = "PENDING"
	StatusWaitingForContact VerificationStatus = "WAITING_FOR_CONTACT"
	StatusSent              VerificationStatus = "SENT"
	StatusVerified          VerificationStatus = "VERIFIED"
	StatusExpired           VerificationStatus = "EXPIRED"
	StatusBlocked           VerificationStatus = "BLOCKED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s VerificationStatus) IsTerminal() bool {
	switch s {
	case StatusVerified, StatusExpired, StatusBlocked:
		return true
	}
	return false
}

// VerificationAttempt is one phone verification session. Only the hash of the
// one-time code is stored, salted with the link token.
type VerificationAttempt struct {
	ID          uuid.UUID          `json:"id"`
	Phone       string             `json:"phone"`
	Status      VerificationStatus `json:"status"`
	LinkToken   string             `json:"-"`
	ChatID      *int64             `json:"-"`
	CodeHash    string             `json:"-"`
	Attempts    int                `json:"attempts"`
	MaxAttempts int                `json:"max_attempts"`
	ExpiresAt   time.Time          `json:"expires_at"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// HasChat reports whether the bot has already seen a chat for this attempt.
func (a *VerificationAttempt) HasChat() bool {
	return a.ChatID != nil && *a.ChatID != 0
}

func (a *VerificationAttempt) Clone() *VerificationAttempt {
	if a == nil {
		return nil
	}
	c := *a
	if a.ChatID != nil {
		id := *a.ChatID
		c.ChatID = &id
	}
	return &c
}
