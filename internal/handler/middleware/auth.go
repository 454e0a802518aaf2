package middleware

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/makkenzo/keybind/internal/handler/dto"
	"github.com/makkenzo/keybind/internal/ierr"
	"github.com/makkenzo/keybind/internal/service"
	"go.uber.org/zap"
)

const (
	authorizationHeader   = "Authorization"
	bearerPrefix          = "Bearer "
	adminClaimsContextKey = "adminClaims"
)

// AdminAuthMiddleware accepts either a bearer token from /admin/login or the
// shared secret in the admin_key body field. It runs before any handler binds
// or validates the request.
func AdminAuthMiddleware(authService *service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("AdminAuthMiddleware")
	return func(c *gin.Context) {
		if authHeader := c.GetHeader(authorizationHeader); authHeader != "" {
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				log.Debug("Authorization header format is invalid")
				_ = c.Error(fmt.Errorf("%w: invalid authorization header format", ierr.ErrUnauthorized))
				c.Abort()
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
			if tokenString == "" {
				log.Debug("Token is missing after Bearer prefix")
				_ = c.Error(fmt.Errorf("%w: token missing", ierr.ErrUnauthorized))
				c.Abort()
				return
			}

			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				log.Warn("Admin token validation failed", zap.String("request_id", RequestIDFrom(c)))
				_ = c.Error(err)
				c.Abort()
				return
			}

			c.Set(adminClaimsContextKey, claims)
			c.Next()
			return
		}

		var creds dto.AdminCredentials
		if err := c.ShouldBindBodyWith(&creds, binding.JSON); err != nil && !errors.Is(err, io.EOF) {
			log.Debug("Admin request body is not valid JSON", zap.Error(err))
		}

		if err := authService.Authorize(creds.AdminKey); err != nil {
			log.Warn("Admin request rejected",
				zap.String("path", c.FullPath()),
				zap.String("client_ip", c.ClientIP()),
				zap.String("request_id", RequestIDFrom(c)),
			)
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Next()
	}
}

func GetAdminClaims(c *gin.Context) *service.AdminClaims {
	value, exists := c.Get(adminClaimsContextKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*service.AdminClaims)
	if !ok {
		return nil
	}
	return claims
}
