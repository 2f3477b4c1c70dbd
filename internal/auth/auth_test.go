package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chase-Garrett/towhee/internal/auth"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("hunter22")
	require.NoError(t, err)

	assert.True(t, auth.CheckPassword(hash, "hunter22"))
	assert.False(t, auth.CheckPassword(hash, "hunter2"))
	assert.False(t, auth.CheckPassword([]byte("not a hash"), "hunter22"))
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)

	signed, err := tokens.Issue("user-1")
	require.NoError(t, err)

	userID, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestTokenRejections(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	signed, err := tokens.Issue("user-1")
	require.NoError(t, err)

	// wrong secret
	other := auth.NewTokens("different", time.Hour)
	_, err = other.Verify(signed)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// garbage
	_, err = tokens.Verify("not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// expired
	expired := auth.NewTokens("secret", -time.Minute)
	signed, err = expired.Issue("user-1")
	require.NoError(t, err)
	_, err = tokens.Verify(signed)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
