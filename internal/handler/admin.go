package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/keybind/internal/handler/dto"
	"github.com/makkenzo/keybind/internal/handler/middleware"
	"github.com/makkenzo/keybind/internal/service"
	"github.com/makkenzo/keybind/internal/tasks"
	"go.uber.org/zap"
)

// AdminHandler serves the key management endpoints. Every route is mounted
// behind AdminAuthMiddleware.
type AdminHandler struct {
	service *service.LicenseService
	logger  *zap.Logger
}

func NewAdminHandler(service *service.LicenseService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger.Named("AdminHandler"),
	}
}

func actor(c *gin.Context) string {
	if claims := middleware.GetAdminClaims(c); claims != nil {
		return "token:" + claims.Subject
	}
	return "secret"
}

func (h *AdminHandler) Create(c *gin.Context) {
	var req dto.CreateLicensesRequest
	if err := bindBody(c, &req); err != nil {
		h.logger.Warn("Failed to bind create request", zap.Error(err))
		_ = c.Error(err)
		return
	}

	result, err := h.service.Create(c.Request.Context(), req.Type, req.Note, req.Count)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("Licenses created via handler",
		zap.String("actor", actor(c)),
		zap.Int("requested", result.Requested),
		zap.Int("created", len(result.Keys)),
	)
	c.JSON(http.StatusOK, dto.CreateLicensesResponse{
		Created: result.Keys,
		Count:   len(result.Keys),
	})
}

func (h *AdminHandler) List(c *gin.Context) {
	records, err := h.service.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Debug("Licenses listed via handler", zap.String("actor", actor(c)), zap.Int("count", len(records)))
	c.JSON(http.StatusOK, dto.NewListLicensesResponse(records))
}

func (h *AdminHandler) Revoke(c *gin.Context) {
	var req dto.RevokeLicenseRequest
	if err := bindBody(c, &req); err != nil {
		h.logger.Warn("Failed to bind revoke request", zap.Error(err))
		_ = c.Error(err)
		return
	}

	key, err := h.service.Revoke(c.Request.Context(), req.Key)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("License revoked via handler", zap.String("actor", actor(c)))
	c.JSON(http.StatusOK, dto.RevokeLicenseResponse{Revoked: key})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	sum, err := h.service.Summary(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	tasks.Publish(sum)
	c.JSON(http.StatusOK, dto.NewStatsResponse(sum, h.service.Now()))
}
