package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/metrics"
	"go.uber.org/zap"
)

type Summarizer interface {
	Summary(ctx context.Context) (*license.Summary, error)
}

// StatsRefreshHandler recomputes license counts and publishes them as gauges.
type StatsRefreshHandler struct {
	source Summarizer
	logger *zap.Logger
}

func NewStatsRefreshHandler(source Summarizer, logger *zap.Logger) *StatsRefreshHandler {
	return &StatsRefreshHandler{
		source: source,
		logger: logger.Named("StatsRefreshHandler"),
	}
}

func (h *StatsRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeStatsRefresh {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p StatsRefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for stats refresh task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	sum, err := h.source.Summary(ctx)
	if err != nil {
		h.logger.Error("Failed to summarize licenses", zap.Error(err))
		return fmt.Errorf("summarize licenses: %w", err)
	}

	Publish(sum)

	h.logger.Info("License stats refreshed",
		zap.Int("total", sum.Total),
		zap.Int("bound", sum.Bound),
		zap.Int("revoked", sum.Revoked),
		zap.Int("expired_trial", sum.ExpiredTrial),
	)
	return nil
}

// Publish copies a summary into the license gauges.
func Publish(sum *license.Summary) {
	metrics.Licenses.WithLabelValues("total").Set(float64(sum.Total))
	metrics.Licenses.WithLabelValues("bound").Set(float64(sum.Bound))
	metrics.Licenses.WithLabelValues("revoked").Set(float64(sum.Revoked))
	metrics.Licenses.WithLabelValues("expired_trial").Set(float64(sum.ExpiredTrial))
	for typ, n := range sum.ByType {
		metrics.Licenses.WithLabelValues("type_" + string(typ)).Set(float64(n))
	}
}
