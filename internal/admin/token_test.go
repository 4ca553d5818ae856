package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret"}

	token, err := GenerateToken(cfg)
	require.NoError(t, err)
	assert.NoError(t, ValidateToken("test-secret", token))
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(Config{JWTSecret: "test-secret"})
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateToken("other-secret", token), ErrInvalidToken)
}

func TestValidateTokenExpired(t *testing.T) {
	token, err := GenerateToken(Config{JWTSecret: "test-secret", SessionTTL: -time.Minute})
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateToken("test-secret", token), ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	assert.ErrorIs(t, ValidateToken("test-secret", "not.a.token"), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken("test-secret", ""), ErrInvalidToken)
}

func TestVerifyPasswordPlain(t *testing.T) {
	assert.True(t, VerifyPassword("hunter2", "hunter2"))
	assert.False(t, VerifyPassword("hunter2", "hunter3"))
	assert.False(t, VerifyPassword("", ""))
}

func TestVerifyPasswordBcrypt(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "hunter2"))
	assert.False(t, VerifyPassword(hash, "hunter3"))
}
