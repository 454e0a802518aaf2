package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/keybind/internal/handler/dto"
	"github.com/makkenzo/keybind/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type HealthHandler struct {
	service *service.LicenseService
	redis   *redis.Client
	logger  *zap.Logger
}

// NewHealthHandler builds the health probe. redis may be nil when no backend
// or worker uses it.
func NewHealthHandler(service *service.LicenseService, redis *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		redis:   redis,
		logger:  logger.Named("HealthHandler"),
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	resp := dto.HealthResponse{
		Status:       "ok",
		ServerTime:   h.service.Now(),
		Dependencies: map[string]string{"store": "ok"},
	}

	records, err := h.service.List(ctx)
	if err != nil {
		resp.Dependencies["store"] = "error"
		h.logger.Error("Health check: license store failed", zap.Error(err))
	} else {
		resp.TotalKeys = len(records)
	}

	if h.redis != nil {
		resp.Dependencies["redis"] = "ok"
		if _, err := h.redis.Ping(ctx).Result(); err != nil {
			resp.Dependencies["redis"] = "error"
			h.logger.Error("Health check: Redis ping failed", zap.Error(err))
		}
	}

	for _, status := range resp.Dependencies {
		if status != "ok" {
			resp.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
