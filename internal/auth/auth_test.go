package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinmckay/vulnsuite/internal/auth"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, auth.CheckPassword(hash, "hunter2"))
	assert.False(t, auth.CheckPassword(hash, "hunter3"))
	assert.False(t, auth.CheckPassword("not-a-hash", "hunter2"))
}

func TestNewUserKey(t *testing.T) {
	a := auth.NewUserKey()
	b := auth.NewUserKey()

	assert.Len(t, a, 64)
	assert.Regexp(t, "^[0-9a-f]+$", a)
	assert.NotEqual(t, a, b)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)

	token, err := svc.IssueToken("key-alice", "alice")
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "key-alice", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	issuer := auth.NewService("secret-a", time.Hour)
	verifier := auth.NewService("secret-b", time.Hour)

	token, err := issuer.IssueToken("key-alice", "alice")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyTokenExpired(t *testing.T) {
	svc := auth.NewService("test-secret", -time.Minute)

	token, err := svc.IssueToken("key-alice", "alice")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyTokenGarbage(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)

	_, err := svc.VerifyToken("not.a.token")
	assert.Error(t, err)
}

func TestIssuedBeforeStart(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)

	token, err := svc.IssueToken("key-alice", "alice")
	require.NoError(t, err)
	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)

	assert.False(t, svc.IssuedBeforeStart(claims))

	// A token minted before this service instance existed must be
	// treated as stale.
	stale := *claims
	stale.IssuedAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	assert.True(t, svc.IssuedBeforeStart(&stale))
}
