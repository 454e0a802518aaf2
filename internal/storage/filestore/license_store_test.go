package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/storage/storetest"
)

func TestLicenseStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) license.Store {
		s, err := NewLicenseStore(filepath.Join(t.TempDir(), "licenses.json"), zap.NewNop())
		require.NoError(t, err)
		return s
	})
}

func TestLicenseStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "licenses.json")
	ctx := context.Background()

	s1, err := NewLicenseStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, &license.Record{Key: "F2P-AAAA-BBBB-CCCC", Type: license.TypeLifetime, CreatedAt: time.Now().UTC()}))

	s2, err := NewLicenseStore(path, zap.NewNop())
	require.NoError(t, err)
	got, err := s2.Get(ctx, "F2P-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	assert.Equal(t, license.TypeLifetime, got.Type)
}

func TestLicenseStoreReadsLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	legacy := `{
  "TRY-AB12-CD34-EF56": {
    "type": "trial",
    "created_at": "2025-01-01T10:00:00.123456",
    "expires_at": "2025-01-04T10:00:00.123456",
    "note": "promo",
    "machine_id": null,
    "revoked": false
  },
  "F2P-GH78-JK90-LM12": {
    "type": "lifetime",
    "created_at": "2025-01-02T08:30:00",
    "expires_at": null,
    "note": "",
    "machine_id": "",
    "revoked": false,
    "activated_at": "2025-01-02T09:00:00.5",
    "uses": 1
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	s, err := NewLicenseStore(path, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := s.Get(ctx, "TRY-AB12-CD34-EF56")
	require.NoError(t, err)
	assert.Equal(t, "TRY-AB12-CD34-EF56", got.Key)
	assert.Equal(t, license.TypeTrial, got.Type)
	assert.False(t, got.IsBound())
	assert.Equal(t, "promo", got.Note)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 123456000, time.UTC), got.CreatedAt)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, time.Date(2025, 1, 4, 10, 0, 0, 123456000, time.UTC), *got.ExpiresAt)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	lifetime, err := s.Get(ctx, "F2P-GH78-JK90-LM12")
	require.NoError(t, err)
	assert.Nil(t, lifetime.ExpiresAt)
	assert.False(t, lifetime.IsBound())

	bound, ok, err := s.BindIfAbsent(ctx, "F2P-GH78-JK90-LM12", "machine-a", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "machine-a", *bound.MachineID)

	// the rewritten file is readable again, with zoned timestamps
	reread, err := NewLicenseStore(path, zap.NewNop())
	require.NoError(t, err)
	got, err = reread.Get(ctx, "TRY-AB12-CD34-EF56")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 123456000, time.UTC), got.CreatedAt)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"2025-01-01T10:00:00.123456Z"`)
}

func TestParseISOTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2025-01-01T10:00:00.123456", want: time.Date(2025, 1, 1, 10, 0, 0, 123456000, time.UTC)},
		{in: "2025-01-01T10:00:00", want: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2025-01-01 10:00:00", want: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2025-01-01T10:00:00Z", want: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2025-01-01T12:00:00+02:00", want: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
		{in: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseISOTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestLicenseStoreMalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewLicenseStore(path, zap.NewNop())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "F2P-AAAA-BBBB-CCCC")
	require.Error(t, err)
	assert.NotErrorIs(t, err, license.ErrNotFound)

	_, err = s.List(context.Background())
	require.Error(t, err)
}
