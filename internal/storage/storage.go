package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/ierr"
	"github.com/makkenzo/keybind/internal/metrics"
	"go.uber.org/zap"
)

// GuardedStore bounds every call with a timeout, records its latency and turns
// backend failures into ierr.ErrStoreUnavailable. license.ErrNotFound passes through.
type GuardedStore struct {
	inner   license.Store
	timeout time.Duration
	logger  *zap.Logger
}

func NewGuardedStore(inner license.Store, timeout time.Duration, logger *zap.Logger) *GuardedStore {
	return &GuardedStore{
		inner:   inner,
		timeout: timeout,
		logger:  logger.Named("LicenseStore"),
	}
}

var _ license.Store = (*GuardedStore)(nil)

func (s *GuardedStore) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)

	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, license.ErrNotFound):
		status = "not_found"
	default:
		status = "error"
	}
	metrics.StoreOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())

	if err == nil || errors.Is(err, license.ErrNotFound) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Error("License store call timed out", zap.String("operation", op), zap.Duration("timeout", s.timeout), zap.Error(err))
	} else {
		s.logger.Error("License store call failed", zap.String("operation", op), zap.Error(err))
	}
	return fmt.Errorf("%w: %s: %v", ierr.ErrStoreUnavailable, op, err)
}

func (s *GuardedStore) Get(ctx context.Context, key string) (*license.Record, error) {
	var rec *license.Record
	err := s.call(ctx, "get", func(ctx context.Context) error {
		var err error
		rec, err = s.inner.Get(ctx, key)
		return err
	})
	return rec, err
}

func (s *GuardedStore) Put(ctx context.Context, rec *license.Record) error {
	return s.call(ctx, "put", func(ctx context.Context) error {
		return s.inner.Put(ctx, rec)
	})
}

func (s *GuardedStore) Patch(ctx context.Context, key string, p license.Patch) error {
	return s.call(ctx, "patch", func(ctx context.Context) error {
		return s.inner.Patch(ctx, key, p)
	})
}

func (s *GuardedStore) List(ctx context.Context) ([]*license.Record, error) {
	var recs []*license.Record
	err := s.call(ctx, "list", func(ctx context.Context) error {
		var err error
		recs, err = s.inner.List(ctx)
		return err
	})
	return recs, err
}

func (s *GuardedStore) BindIfAbsent(ctx context.Context, key, machineID string, at time.Time) (*license.Record, bool, error) {
	var (
		rec   *license.Record
		bound bool
	)
	err := s.call(ctx, "bind", func(ctx context.Context) error {
		var err error
		rec, bound, err = s.inner.BindIfAbsent(ctx, key, machineID, at)
		return err
	})
	return rec, bound, err
}

func (s *GuardedStore) RecordUse(ctx context.Context, key string, at time.Time) (*license.Record, error) {
	var rec *license.Record
	err := s.call(ctx, "record_use", func(ctx context.Context) error {
		var err error
		rec, err = s.inner.RecordUse(ctx, key, at)
		return err
	})
	return rec, err
}
