package models

import "time"

// User is owned by the accounts part of the back office; verification only
// looks users up by phone and creates them lazily.
type User struct {
	ID              int64     `json:"id"`
	Phone           string    `json:"phone"`
	Username        string    `json:"username"`
	ProfileComplete bool      `json:"profile_complete"`
	CreatedAt       time.Time `json:"created_at"`
}

// TelegramIdentity binds one Telegram chat to one user.
type TelegramIdentity struct {
	ID       int64     `json:"id"`
	ChatID   int64     `json:"chat_id"`
	UserID   int64     `json:"user_id"`
	LinkedAt time.Time `json:"linked_at"`
}

// EmployeeInvitation is a company's pending invite addressed to a phone
// number; it is claimed by the first user that verifies that phone.
type EmployeeInvitation struct {
	ID         int64      `json:"id"`
	CompanyID  int64      `json:"company_id"`
	Phone      string     `json:"phone"`
	Role       string     `json:"role"`
	UserID     *int64     `json:"user_id,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
