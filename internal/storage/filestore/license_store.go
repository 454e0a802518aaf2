package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/makkenzo/keybind/internal/domain/license"
	"go.uber.org/zap"
)

// LicenseStore persists every record in one JSON object keyed by license key.
// Each operation reads and rewrites the whole file under an in-process mutex;
// several processes sharing the file are not coordinated.
type LicenseStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewLicenseStore(path string, logger *zap.Logger) (*LicenseStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &LicenseStore{
		path:   path,
		logger: logger.Named("FileLicenseStore"),
	}, nil
}

var _ license.Store = (*LicenseStore)(nil)

func (s *LicenseStore) load() (map[string]*license.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]*license.Record), nil
		}
		return nil, fmt.Errorf("failed to read license file: %w", err)
	}
	db := make(map[string]*license.Record)
	if len(data) == 0 {
		return db, nil
	}
	raw := make(map[string]*fileRecord)
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Error("License file is malformed", zap.String("path", s.path), zap.Error(err))
		return nil, fmt.Errorf("malformed license file %s: %w", s.path, err)
	}
	for k, rec := range raw {
		if rec == nil {
			return nil, fmt.Errorf("malformed license file %s: null record for %s", s.path, k)
		}
		db[k] = rec.toRecord(k)
	}
	return db, nil
}

func (s *LicenseStore) save(db map[string]*license.Record) error {
	raw := make(map[string]*fileRecord, len(db))
	for k, rec := range db {
		raw[k] = newFileRecord(rec)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode license file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".licenses-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp license file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write license file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close license file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace license file: %w", err)
	}
	return nil
}

func (s *LicenseStore) update(key string, fn func(rec *license.Record) error) (*license.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := db[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := s.save(db); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (s *LicenseStore) Get(ctx context.Context, key string) (*license.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := db[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	return rec, nil
}

func (s *LicenseStore) Put(ctx context.Context, rec *license.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.load()
	if err != nil {
		return err
	}
	db[rec.Key] = rec.Clone()
	return s.save(db)
}

func (s *LicenseStore) Patch(ctx context.Context, key string, p license.Patch) error {
	_, err := s.update(key, func(rec *license.Record) error {
		p.Apply(rec)
		return nil
	})
	return err
}

func (s *LicenseStore) List(ctx context.Context) ([]*license.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*license.Record, 0, len(db))
	for _, rec := range db {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *LicenseStore) BindIfAbsent(ctx context.Context, key, machineID string, at time.Time) (*license.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.load()
	if err != nil {
		return nil, false, err
	}
	rec, ok := db[key]
	if !ok {
		return nil, false, license.ErrNotFound
	}
	if rec.IsBound() {
		return rec, false, nil
	}
	rec.Bind(machineID, at)
	if err := s.save(db); err != nil {
		return nil, false, err
	}
	return rec.Clone(), true, nil
}

func (s *LicenseStore) RecordUse(ctx context.Context, key string, at time.Time) (*license.Record, error) {
	return s.update(key, func(rec *license.Record) error {
		rec.Touch(at)
		return nil
	})
}
