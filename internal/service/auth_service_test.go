package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/ierr"
)

func TestAuthorizePlainSecret(t *testing.T) {
	svc := NewAuthService(&config.AdminConfig{Secret: "letmein"}, zap.NewNop())

	require.NoError(t, svc.Authorize("letmein"))

	for _, bad := range []string{"", "letmei", "letmein ", "LETMEIN"} {
		err := svc.Authorize(bad)
		require.ErrorIs(t, err, ierr.ErrForbidden, bad)
		assert.ErrorIs(t, err, ierr.ErrInvalidAdminSecret)
	}
}

func TestAuthorizeBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := NewAuthService(&config.AdminConfig{SecretHash: string(hash)}, zap.NewNop())

	assert.NoError(t, svc.Authorize("letmein"))
	assert.ErrorIs(t, svc.Authorize("nope"), ierr.ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(string(hash)), ierr.ErrForbidden)
}

func TestAuthorizeNothingConfigured(t *testing.T) {
	svc := NewAuthService(&config.AdminConfig{}, zap.NewNop())
	assert.ErrorIs(t, svc.Authorize("anything"), ierr.ErrForbidden)
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewAuthService(&config.AdminConfig{Secret: "letmein", TokenTTL: 30 * time.Minute}, zap.NewNop())
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, _, err := svc.IssueToken("wrong")
	require.ErrorIs(t, err, ierr.ErrForbidden)

	token, expiresAt, err := svc.IssueToken("letmein")
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), expiresAt)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "keybind", claims.Issuer)

	svc.now = func() time.Time { return now.Add(31 * time.Minute) }
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ierr.ErrInvalidToken)
}

func TestValidateTokenRejectsForeignTokens(t *testing.T) {
	svc := NewAuthService(&config.AdminConfig{Secret: "letmein"}, zap.NewNop())
	other := NewAuthService(&config.AdminConfig{Secret: "different"}, zap.NewNop())

	token, _, err := other.IssueToken("different")
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ierr.ErrInvalidToken)

	// same key, wrong subject
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "keybind",
			Subject:   "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.signingKey)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.ErrorIs(t, err, ierr.ErrInvalidToken)

	_, err = svc.ValidateToken("garbage")
	assert.ErrorIs(t, err, ierr.ErrInvalidToken)
}

func TestSigningKeyFromJWTSecret(t *testing.T) {
	a := NewAuthService(&config.AdminConfig{Secret: "one", JWTSecret: "shared"}, zap.NewNop())
	b := NewAuthService(&config.AdminConfig{Secret: "two", JWTSecret: "shared"}, zap.NewNop())

	token, _, err := a.IssueToken("one")
	require.NoError(t, err)
	_, err = b.ValidateToken(token)
	assert.NoError(t, err)
}
