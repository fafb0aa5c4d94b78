package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	tm, err := NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := tm.Issue(7, "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "tellusko", claims.Issuer)
}

func TestValidate_WrongSecret(t *testing.T) {
	tm1, err := NewTokenManager("secret-one", time.Hour)
	require.NoError(t, err)
	tm2, err := NewTokenManager("secret-two", time.Hour)
	require.NoError(t, err)

	token, err := tm1.Issue(7, "ada@example.com")
	require.NoError(t, err)

	_, err = tm2.Validate(token)
	require.Error(t, err)
}

func TestValidate_Expired(t *testing.T) {
	tm, err := NewTokenManager("test-secret", -time.Minute)
	require.NoError(t, err)

	token, err := tm.Issue(7, "ada@example.com")
	require.NoError(t, err)

	_, err = tm.Validate(token)
	require.Error(t, err)
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", time.Hour)
	require.Error(t, err)
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)

	assert.True(t, CheckPassword(hash, "s3cret!"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestHashPassword_RejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	require.Error(t, err)
}
