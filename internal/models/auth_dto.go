package models

import "time"

type PhoneVerificationRequest struct {
	Phone string `json:"phone" binding:"required" example:"+85512345678"`
}

type PhoneVerificationResponse struct {
	AttemptID    string    `json:"attempt_id"`
	DeepLink     *string   `json:"deep_link"`
	ExpiresAt    time.Time `json:"expires_at"`
	SentDirectly bool      `json:"sent_directly"`
}

type VerifyCodeRequest struct {
	AttemptID string `json:"attempt_id" binding:"required"`
	Code      string `json:"code" binding:"required" example:"123456"`
}

type VerifyCodeResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

type AttemptStatusResponse struct {
	Status    VerificationStatus `json:"status"`
	ExpiresAt time.Time          `json:"expires_at"`
}
