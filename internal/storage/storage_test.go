package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/ierr"
)

type fakeStore struct {
	license.Store
	getFn func(ctx context.Context, key string) (*license.Record, error)
}

func (f *fakeStore) Get(ctx context.Context, key string) (*license.Record, error) {
	return f.getFn(ctx, key)
}

func TestGuardedStoreTimeout(t *testing.T) {
	inner := &fakeStore{getFn: func(ctx context.Context, key string) (*license.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := NewGuardedStore(inner, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	_, err := s.Get(context.Background(), "F2P-AAAA-BBBB-CCCC")
	require.ErrorIs(t, err, ierr.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, license.ErrNotFound)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGuardedStoreNotFoundPassesThrough(t *testing.T) {
	inner := &fakeStore{getFn: func(ctx context.Context, key string) (*license.Record, error) {
		return nil, license.ErrNotFound
	}}
	s := NewGuardedStore(inner, time.Second, zap.NewNop())

	_, err := s.Get(context.Background(), "F2P-AAAA-BBBB-CCCC")
	require.ErrorIs(t, err, license.ErrNotFound)
	assert.NotErrorIs(t, err, ierr.ErrStoreUnavailable)
}

func TestGuardedStoreWrapsBackendErrors(t *testing.T) {
	inner := &fakeStore{getFn: func(ctx context.Context, key string) (*license.Record, error) {
		return nil, errors.New("connection refused")
	}}
	s := NewGuardedStore(inner, 0, zap.NewNop())

	_, err := s.Get(context.Background(), "F2P-AAAA-BBBB-CCCC")
	require.ErrorIs(t, err, ierr.ErrStoreUnavailable)
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{name: "memory", cfg: config.Config{Store: config.StoreConfig{Backend: config.StoreMemory}}},
		{name: "file", cfg: config.Config{Store: config.StoreConfig{Backend: config.StoreFile, FilePath: filepath.Join(t.TempDir(), "l.json")}}},
		{name: "redis", cfg: config.Config{
			Store: config.StoreConfig{Backend: config.StoreRedis},
			Redis: config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "license"},
		}},
		{name: "rest", cfg: config.Config{
			Store: config.StoreConfig{Backend: config.StoreREST, Timeout: time.Second},
			REST:  config.RESTConfig{URL: "http://127.0.0.1:1", Table: "licenses"},
		}},
		{name: "unknown", cfg: config.Config{Store: config.StoreConfig{Backend: "mongo"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(context.Background(), &tt.cfg, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer b.Close()
			assert.Equal(t, tt.name, b.Name)
			assert.IsType(t, &GuardedStore{}, b.Store)
			if tt.name == "redis" {
				assert.NotNil(t, b.Redis)
			}
		})
	}
}

func TestOpenedStoreRoundTrip(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: config.StoreMemory, Timeout: time.Second}}
	b, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Store.Put(ctx, &license.Record{Key: "F2P-AAAA-BBBB-CCCC", Type: license.TypeLifetime}))
	rec, bound, err := b.Store.BindIfAbsent(ctx, "F2P-AAAA-BBBB-CCCC", "m1", time.Now())
	require.NoError(t, err)
	assert.True(t, bound)
	assert.Equal(t, 1, rec.Uses)
}
