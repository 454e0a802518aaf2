package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/keybind/internal/handler/dto"
	"github.com/makkenzo/keybind/internal/service"
	"go.uber.org/zap"
)

type AuthHandler struct {
	service *service.AuthService
	logger  *zap.Logger
}

func NewAuthHandler(service *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.Named("AuthHandler"),
	}
}

// Login exchanges the admin secret for a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := bindBody(c, &req); err != nil {
		h.logger.Warn("Failed to bind login request", zap.Error(err))
		_ = c.Error(err)
		return
	}

	token, expiresAt, err := h.service.IssueToken(req.AdminKey)
	if err != nil {
		h.logger.Info("Admin login rejected", zap.String("client_ip", c.ClientIP()))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}
