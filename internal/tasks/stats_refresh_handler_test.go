package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/metrics"
)

type fakeSummarizer struct {
	summaryFn func(ctx context.Context) (*license.Summary, error)
}

func (f *fakeSummarizer) Summary(ctx context.Context) (*license.Summary, error) {
	return f.summaryFn(ctx)
}

func TestStatsRefreshPublishesGauges(t *testing.T) {
	src := &fakeSummarizer{summaryFn: func(ctx context.Context) (*license.Summary, error) {
		return &license.Summary{
			Total:        7,
			ByType:       map[license.Type]int{license.TypeLifetime: 4, license.TypeTrial: 3},
			Bound:        5,
			Revoked:      1,
			ExpiredTrial: 2,
		}, nil
	}}
	h := NewStatsRefreshHandler(src, zap.NewNop())

	task, err := NewStatsRefreshTask()
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))

	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.Licenses.WithLabelValues("total")))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.Licenses.WithLabelValues("bound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Licenses.WithLabelValues("revoked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Licenses.WithLabelValues("expired_trial")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Licenses.WithLabelValues("type_trial")))
}

func TestStatsRefreshErrors(t *testing.T) {
	storeErr := errors.New("store down")
	h := NewStatsRefreshHandler(&fakeSummarizer{summaryFn: func(ctx context.Context) (*license.Summary, error) {
		return nil, storeErr
	}}, zap.NewNop())

	task, err := NewStatsRefreshTask()
	require.NoError(t, err)
	assert.ErrorIs(t, h.ProcessTask(context.Background(), task), storeErr)

	err = h.ProcessTask(context.Background(), asynq.NewTask("other:task", nil))
	assert.ErrorContains(t, err, "unexpected task type")

	err = h.ProcessTask(context.Background(), asynq.NewTask(TypeStatsRefresh, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
