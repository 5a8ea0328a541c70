package session_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-session"
)

func TestClassifyTokenError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "expired token message",
			err:      errors.New("invitation token has expired"),
			expected: session.TextCodeTokenExpired,
		},
		{
			name:     "already used message",
			err:      errors.New("this invitation has already been used"),
			expected: session.TextCodeTokenAlreadyUsed,
		},
		{
			name:     "used wins over expired when both appear",
			err:      errors.New("token has already been used and has expired"),
			expected: session.TextCodeTokenAlreadyUsed,
		},
		{
			name:     "anything else is invalid",
			err:      errors.New("no such token"),
			expected: session.TextCodeTokenInvalid,
		},
		{
			name:     "case insensitive",
			err:      errors.New("Token Has EXPIRED"),
			expected: session.TextCodeTokenExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := session.ClassifyTokenError(tt.err)
			assert.True(t, session.HasTextCode(classified, tt.expected),
				"expected %s, got %v", tt.expected, classified)
		})
	}
}

func TestClassifyTokenErrorNil(t *testing.T) {
	assert.NoError(t, session.ClassifyTokenError(nil))
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, session.IsInvalidCredentials(session.ErrInvalidCredentials))
	assert.True(t, session.IsSessionExpired(session.ErrSessionExpired))
	assert.True(t, session.IsRefreshExpired(session.ErrRefreshExpired))
	assert.True(t, session.IsNetworkError(session.ErrNetwork))
	assert.True(t, session.IsStorageUnavailable(session.ErrStorageUnavailable))

	assert.False(t, session.IsInvalidCredentials(nil))
	assert.False(t, session.IsInvalidCredentials(errors.New("plain error")))
	assert.False(t, session.IsNetworkError(session.ErrSessionExpired))
}

func TestHasTextCode(t *testing.T) {
	assert.True(t, session.HasTextCode(session.ErrTokenExpired, session.TextCodeTokenExpired))
	assert.False(t, session.HasTextCode(session.ErrTokenExpired, session.TextCodeTokenInvalid))
	assert.False(t, session.HasTextCode(nil, session.TextCodeTokenExpired))
	assert.False(t, session.HasTextCode(errors.New("legacy"), session.TextCodeTokenExpired))
}
