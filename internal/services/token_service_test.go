package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchdesk/internal/models"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	s := NewTokenService("test-secret", time.Hour, "dispatchdesk")
	tok, exp, err := s.IssueAccessToken(&models.User{ID: 9, Phone: testPhone})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := s.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.UserID)
	assert.Equal(t, testPhone, claims.Phone)
}

func TestTokenServiceRejects(t *testing.T) {
	s := NewTokenService("test-secret", time.Hour, "dispatchdesk")
	tok, _, err := s.IssueAccessToken(&models.User{ID: 9})
	require.NoError(t, err)

	other := NewTokenService("other-secret", time.Hour, "dispatchdesk")
	_, err = other.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.clock = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
