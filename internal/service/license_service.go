package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/ierr"
	"github.com/makkenzo/keybind/internal/metrics"
	"github.com/makkenzo/keybind/internal/util"
	"go.uber.org/zap"
)

type LicenseService struct {
	store  license.Store
	cfg    config.LicenseConfig
	locks  *keyLocker
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*LicenseService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *LicenseService) {
		s.now = now
	}
}

func NewLicenseService(store license.Store, cfg *config.LicenseConfig, logger *zap.Logger, opts ...Option) *LicenseService {
	s := &LicenseService{
		store:  store,
		cfg:    *cfg,
		locks:  newKeyLocker(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Named("LicenseService"),
	}
	if s.cfg.MaxBatch <= 0 {
		s.cfg.MaxBatch = 100
	}
	if s.cfg.TrialPeriod <= 0 {
		s.cfg.TrialPeriod = 72 * time.Hour
	}
	if s.cfg.BindMode == "" {
		s.cfg.BindMode = config.BindModeBestEffort
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func storeError(err error) error {
	if errors.Is(err, ierr.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ierr.ErrStoreUnavailable, err)
}

type CreateResult struct {
	Keys      []string
	Requested int
}

// Create mints count keys of the given type. Keys whose write fails are
// skipped; Keys holds only what was stored.
func (s *LicenseService) Create(ctx context.Context, rawType, note string, count int) (*CreateResult, error) {
	if rawType == "" {
		rawType = string(license.TypeLifetime)
	}
	typ, err := license.ParseType(rawType)
	if err != nil {
		return nil, fmt.Errorf("%w: type must be one of [lifetime trial]", ierr.ErrValidation)
	}

	if count < 1 {
		count = 1
	}
	if count > s.cfg.MaxBatch {
		s.logger.Info("Clamping batch size", zap.Int("requested", count), zap.Int("max", s.cfg.MaxBatch))
		count = s.cfg.MaxBatch
	}

	s.logger.Info("Attempting to create licenses", zap.String("type", string(typ)), zap.Int("count", count))

	result := &CreateResult{
		Keys:      make([]string, 0, count),
		Requested: count,
	}
	for i := 0; i < count; i++ {
		key, err := s.newUniqueKey(ctx, typ.Prefix())
		if err != nil {
			metrics.KeyCreateFailures.Inc()
			s.logger.Error("Failed to generate license key", zap.Int("index", i), zap.Error(err))
			continue
		}

		now := s.now()
		rec := &license.Record{
			Key:       key,
			Type:      typ,
			CreatedAt: now,
			Note:      note,
		}
		if typ == license.TypeTrial {
			expires := now.Add(s.cfg.TrialPeriod)
			rec.ExpiresAt = &expires
		}

		if err := s.store.Put(ctx, rec); err != nil {
			metrics.KeyCreateFailures.Inc()
			s.logger.Error("Failed to store license, skipping", zap.String("key", util.MaskLicenseKey(key)), zap.Error(err))
			continue
		}
		metrics.KeysCreated.WithLabelValues(string(typ)).Inc()
		result.Keys = append(result.Keys, key)
	}

	s.logger.Info("Licenses created", zap.Int("requested", count), zap.Int("created", len(result.Keys)))
	return result, nil
}

// newUniqueKey regenerates once when the first key already exists.
func (s *LicenseService) newUniqueKey(ctx context.Context, prefix string) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		key, err := util.GenerateLicenseKey(prefix)
		if err != nil {
			return "", err
		}
		_, err = s.store.Get(ctx, key)
		if errors.Is(err, license.ErrNotFound) {
			return key, nil
		}
		if err != nil {
			return "", err
		}
		s.logger.Warn("Generated license key collided with an existing one", zap.String("key", util.MaskLicenseKey(key)))
	}
	return "", fmt.Errorf("%w: generated key collided twice", ierr.ErrConflict)
}

// Verify evaluates key for machineID. Denials, including a missing key or
// machine id, are returned as results; the error is reserved for store failures.
func (s *LicenseService) Verify(ctx context.Context, rawKey, machineID string) (*license.VerificationResult, error) {
	key := util.NormalizeLicenseKey(rawKey)
	if key == "" {
		return s.deny(key, license.ReasonMissingKey), nil
	}
	machineID = strings.TrimSpace(machineID)
	if machineID == "" {
		return s.deny(key, license.ReasonMissingMachine), nil
	}
	if !util.IsWellFormedLicenseKey(key) {
		s.logger.Info("Malformed license key submitted", zap.String("key", util.MaskLicenseKey(key)))
	}

	if s.cfg.BindMode == config.BindModeLocked {
		unlock := s.locks.Lock(key)
		defer unlock()
	}

	now := s.now()
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return s.deny(key, license.ReasonNotFound), nil
		}
		return nil, storeError(err)
	}

	// Expiry is checked before anything can bind.
	if rec.IsExpired(now) {
		return s.deny(key, license.ReasonExpired), nil
	}
	if rec.Revoked {
		return s.deny(key, license.ReasonRevoked), nil
	}

	if !rec.IsBound() {
		return s.bind(ctx, rec, machineID, now)
	}
	return s.useBound(ctx, rec, machineID, now)
}

func (s *LicenseService) bind(ctx context.Context, rec *license.Record, machineID string, now time.Time) (*license.VerificationResult, error) {
	if s.cfg.BindMode == config.BindModeAtomic {
		current, bound, err := s.store.BindIfAbsent(ctx, rec.Key, machineID, now)
		if err != nil {
			if errors.Is(err, license.ErrNotFound) {
				return s.deny(rec.Key, license.ReasonNotFound), nil
			}
			return nil, storeError(err)
		}
		if !bound {
			s.logger.Info("Lost bind race, re-evaluating", zap.String("key", util.MaskLicenseKey(rec.Key)))
			return s.useBound(ctx, current, machineID, now)
		}
		return s.grant(current, now, true), nil
	}

	// Plain read-then-write: two first verifications racing on one key can both
	// succeed and the later write wins.
	uses := 1
	err := s.store.Patch(ctx, rec.Key, license.Patch{
		MachineID:   &machineID,
		ActivatedAt: &now,
		Uses:        &uses,
	})
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return s.deny(rec.Key, license.ReasonNotFound), nil
		}
		return nil, storeError(err)
	}
	rec.Bind(machineID, now)
	return s.grant(rec, now, true), nil
}

func (s *LicenseService) useBound(ctx context.Context, rec *license.Record, machineID string, now time.Time) (*license.VerificationResult, error) {
	if !rec.IsBound() {
		s.logger.Error("Store refused the bind but the key is still unbound", zap.String("key", util.MaskLicenseKey(rec.Key)))
		return nil, storeError(errors.New("conditional bind matched no rows"))
	}
	if *rec.MachineID != machineID {
		s.logger.Warn("Verification from a different device",
			zap.String("key", util.MaskLicenseKey(rec.Key)),
		)
		return s.deny(rec.Key, license.ReasonDeviceMismatch), nil
	}

	updated, err := s.store.RecordUse(ctx, rec.Key, now)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return s.deny(rec.Key, license.ReasonNotFound), nil
		}
		return nil, storeError(err)
	}
	return s.grant(updated, now, false), nil
}

func (s *LicenseService) grant(rec *license.Record, now time.Time, newlyBound bool) *license.VerificationResult {
	metrics.Verifications.WithLabelValues("valid").Inc()
	s.logger.Debug("License verified",
		zap.String("key", util.MaskLicenseKey(rec.Key)),
		zap.Bool("newly_bound", newlyBound),
		zap.Int("uses", rec.Uses),
	)
	return &license.VerificationResult{
		Valid:      true,
		Type:       rec.Type,
		DaysLeft:   rec.DaysLeft(now),
		Note:       rec.Note,
		NewlyBound: newlyBound,
	}
}

func (s *LicenseService) deny(key string, reason license.DenialReason) *license.VerificationResult {
	metrics.Verifications.WithLabelValues(string(reason)).Inc()
	s.logger.Info("License verification denied", zap.String("key", util.MaskLicenseKey(key)), zap.String("reason", string(reason)))
	return license.Denied(reason)
}

// Revoke marks a key revoked and returns its normalized form. Revoking twice is not an error.
func (s *LicenseService) Revoke(ctx context.Context, rawKey string) (string, error) {
	key := util.NormalizeLicenseKey(rawKey)
	if key == "" {
		return "", fmt.Errorf("%w: key is required", ierr.ErrValidation)
	}
	if !util.IsWellFormedLicenseKey(key) {
		s.logger.Info("Malformed license key submitted for revocation", zap.String("key", util.MaskLicenseKey(key)))
	}

	revoked := true
	err := s.store.Patch(ctx, key, license.Patch{Revoked: &revoked})
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return "", fmt.Errorf("%w: license key not found", ierr.ErrNotFound)
		}
		return "", storeError(err)
	}

	metrics.Revocations.Inc()
	s.logger.Info("License revoked", zap.String("key", util.MaskLicenseKey(key)))
	return key, nil
}

func (s *LicenseService) List(ctx context.Context) ([]*license.Record, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	s.logger.Debug("Licenses listed", zap.Int("count", len(records)))
	return records, nil
}

func (s *LicenseService) Summary(ctx context.Context) (*license.Summary, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sum := &license.Summary{
		Total:  len(records),
		ByType: map[license.Type]int{license.TypeLifetime: 0, license.TypeTrial: 0},
	}
	for _, rec := range records {
		sum.ByType[rec.Type]++
		if rec.IsBound() {
			sum.Bound++
		}
		if rec.Revoked {
			sum.Revoked++
		}
		if rec.IsExpired(now) {
			sum.ExpiredTrial++
		}
	}
	return sum, nil
}

// Now exposes the service clock so responses can report server time consistently.
func (s *LicenseService) Now() time.Time {
	return s.now()
}
