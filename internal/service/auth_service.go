package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/ierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer  = "keybind"
	tokenSubject = "admin"
)

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService checks the shared admin secret and issues short-lived admin tokens.
type AuthService struct {
	secret     []byte
	secretHash []byte
	signingKey []byte
	tokenTTL   time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewAuthService(cfg *config.AdminConfig, logger *zap.Logger) *AuthService {
	signingKey := []byte(cfg.JWTSecret)
	if len(signingKey) == 0 {
		sum := sha256.Sum256([]byte("keybind-admin-token:" + cfg.Secret + ":" + cfg.SecretHash))
		signingKey = sum[:]
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthService{
		secret:     []byte(cfg.Secret),
		secretHash: []byte(cfg.SecretHash),
		signingKey: signingKey,
		tokenTTL:   ttl,
		now:        time.Now,
		logger:     logger.Named("AuthService"),
	}
}

// Authorize compares the supplied secret in constant time, or with bcrypt when
// only a hash is configured.
func (s *AuthService) Authorize(provided string) error {
	if provided == "" {
		return fmt.Errorf("%w: %w", ierr.ErrForbidden, ierr.ErrInvalidAdminSecret)
	}
	if len(s.secret) > 0 && subtle.ConstantTimeCompare([]byte(provided), s.secret) == 1 {
		return nil
	}
	if len(s.secretHash) > 0 && bcrypt.CompareHashAndPassword(s.secretHash, []byte(provided)) == nil {
		return nil
	}
	s.logger.Warn("Admin secret mismatch")
	return fmt.Errorf("%w: %w", ierr.ErrForbidden, ierr.ErrInvalidAdminSecret)
}

func (s *AuthService) IssueToken(provided string) (string, time.Time, error) {
	if err := s.Authorize(provided); err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := AdminClaims{
		Role: tokenSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   tokenSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		s.logger.Error("Failed to sign admin token", zap.Error(err))
		return "", time.Time{}, fmt.Errorf("%w: failed to sign token", ierr.ErrInternalServer)
	}

	s.logger.Info("Admin token issued", zap.Time("expires_at", expiresAt))
	return signed, expiresAt, nil
}

func (s *AuthService) ValidateToken(raw string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &AdminClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(tokenSubject),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logger.Debug("Admin token rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ierr.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || claims.Role != tokenSubject {
		return nil, ierr.ErrTokenInvalidClaims
	}
	return claims, nil
}
