package memstorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/makkenzo/keybind/internal/domain/license"
)

// LicenseStore keeps records in process memory. Every call holds the mutex, so
// BindIfAbsent and RecordUse are atomic.
type LicenseStore struct {
	mu      sync.RWMutex
	records map[string]*license.Record
}

func NewLicenseStore() *LicenseStore {
	return &LicenseStore{
		records: make(map[string]*license.Record),
	}
}

var _ license.Store = (*LicenseStore)(nil)

func (s *LicenseStore) Get(ctx context.Context, key string) (*license.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *LicenseStore) Put(ctx context.Context, rec *license.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Key] = rec.Clone()
	return nil
}

func (s *LicenseStore) Patch(ctx context.Context, key string, p license.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return license.ErrNotFound
	}
	p.Apply(rec)
	return nil
}

func (s *LicenseStore) List(ctx context.Context) ([]*license.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*license.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *LicenseStore) BindIfAbsent(ctx context.Context, key, machineID string, at time.Time) (*license.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, false, license.ErrNotFound
	}
	if rec.IsBound() {
		return rec.Clone(), false, nil
	}
	rec.Bind(machineID, at)
	return rec.Clone(), true, nil
}

func (s *LicenseStore) RecordUse(ctx context.Context, key string, at time.Time) (*license.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	rec.Touch(at)
	return rec.Clone(), nil
}

func (s *LicenseStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
