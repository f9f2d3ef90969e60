package services

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelvault/internal/models"
	"reelvault/internal/test"
)

func TestAuthService_Login(t *testing.T) {
	db := test.GetTestDB(t)
	auth := NewAuthService(db, "test-secret", time.Hour)
	test.CreateTestUser(t, db, "alice", "secret1", false)

	user, err := auth.Login("alice", "secret1")
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.NotNil(t, stored.LastLoginAt)

	_, err = auth.Login("alice", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = auth.Login("nobody", "secret1")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestAuthService_LoginSoftDeletedUser(t *testing.T) {
	db := test.GetTestDB(t)
	auth := NewAuthService(db, "test-secret", time.Hour)
	user := test.CreateTestUser(t, db, "alice", "secret1", false)
	require.NoError(t, db.Delete(user).Error)

	_, err := auth.Login("alice", "secret1")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = auth.ResolveUser(user.ID)
	assert.True(t, IsNotFound(err))
}

func TestAuthService_Register(t *testing.T) {
	auth := NewAuthService(test.GetTestDB(t), "test-secret", time.Hour)

	user, err := auth.Register("carol", "secret1")
	require.NoError(t, err)
	assert.False(t, user.IsAdmin)

	_, err = auth.Register("carol", "secret1")
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestAuthService_Tokens(t *testing.T) {
	db := test.GetTestDB(t)
	auth := NewAuthService(db, "test-secret", time.Hour)
	test.CreateTestUser(t, db, "admin", "admin123", true)

	token, user, err := auth.IssueToken("admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	claims, err := auth.ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.True(t, claims.IsAdmin)

	other := NewAuthService(db, "other-secret", time.Hour)
	_, err = other.ValidateToken(token.AccessToken)
	assert.Error(t, err)

	_, _, err = auth.IssueToken("admin", "nope")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestAuthService_RejectsExpiredAndForeignTokens(t *testing.T) {
	auth := NewAuthService(test.GetTestDB(t), "test-secret", time.Hour)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    tokenIssuer,
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = auth.ValidateToken(signed)
	assert.Error(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			Issuer:    "someone-else",
		},
	})
	signed, err = foreign.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = auth.ValidateToken(signed)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1})
	signed, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ValidateToken(signed)
	assert.Error(t, err)
}
