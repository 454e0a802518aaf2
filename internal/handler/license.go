package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/handler/dto"
	"github.com/makkenzo/keybind/internal/service"
	"github.com/makkenzo/keybind/internal/util"
	"go.uber.org/zap"
)

type LicenseHandler struct {
	service *service.LicenseService
	logger  *zap.Logger
}

func NewLicenseHandler(service *service.LicenseService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.Named("LicenseHandler"),
	}
}

func verifyStatus(reason license.DenialReason) int {
	switch reason {
	case license.ReasonMissingKey, license.ReasonMissingMachine:
		return http.StatusBadRequest
	case license.ReasonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}

// Verify handles POST /verify. Denials are normal responses with valid=false,
// not errors.
func (h *LicenseHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest
	if err := bindBody(c, &req); err != nil {
		h.logger.Warn("Failed to bind verify request", zap.Error(err))
		_ = c.Error(err)
		return
	}

	res, err := h.service.Verify(c.Request.Context(), req.Key, req.MachineID)
	if err != nil {
		h.logger.Error("Verification failed", zap.String("key", util.MaskLicenseKey(req.Key)), zap.Error(err))
		_ = c.Error(err)
		return
	}

	if !res.Valid {
		c.JSON(verifyStatus(res.Reason), dto.NewVerifyResponse(res))
		return
	}
	c.JSON(http.StatusOK, dto.NewVerifyResponse(res))
}
