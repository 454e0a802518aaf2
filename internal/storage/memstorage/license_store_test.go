package memstorage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/storage/storetest"
)

func TestLicenseStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) license.Store {
		return NewLicenseStore()
	})
}

func TestLicenseStoreReturnsCopies(t *testing.T) {
	s := NewLicenseStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &license.Record{Key: "F2P-AAAA-BBBB-CCCC", Type: license.TypeLifetime, CreatedAt: time.Now()}))

	got, err := s.Get(ctx, "F2P-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	got.Revoked = true

	again, err := s.Get(ctx, "F2P-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	assert.False(t, again.Revoked)
	assert.Equal(t, 1, s.Len())
}
