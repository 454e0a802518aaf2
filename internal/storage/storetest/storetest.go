// Package storetest holds the behaviour every license.Store backend must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makkenzo/keybind/internal/domain/license"
)

func ptr[T any](v T) *T {
	return &v
}

func newRecord(key string, typ license.Type, createdAt time.Time) *license.Record {
	rec := &license.Record{
		Key:       key,
		Type:      typ,
		CreatedAt: createdAt,
		Note:      "batch-1",
	}
	if typ == license.TypeTrial {
		rec.ExpiresAt = ptr(createdAt.Add(72 * time.Hour))
	}
	return rec
}

// Run exercises a store created fresh for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) license.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "F2P-AAAA-BBBB-CCCC")
		require.ErrorIs(t, err, license.ErrNotFound)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("TRY-AAAA-BBBB-CCCC", license.TypeTrial, now)
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Get(ctx, rec.Key)
		require.NoError(t, err)
		assert.Equal(t, rec.Key, got.Key)
		assert.Equal(t, license.TypeTrial, got.Type)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, rec.ExpiresAt.Equal(*got.ExpiresAt))
		assert.False(t, got.Revoked)
		assert.Nil(t, got.MachineID)
		assert.Equal(t, 0, got.Uses)
		assert.Equal(t, "batch-1", got.Note)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("F2P-AAAA-BBBB-CCCC", license.TypeLifetime, now)
		require.NoError(t, s.Put(ctx, rec))

		rec.Note = "replaced"
		rec.Revoked = true
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Get(ctx, rec.Key)
		require.NoError(t, err)
		assert.Equal(t, "replaced", got.Note)
		assert.True(t, got.Revoked)
	})

	t.Run("PatchMerges", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("F2P-AAAA-BBBB-CCCC", license.TypeLifetime, now)
		require.NoError(t, s.Put(ctx, rec))

		require.NoError(t, s.Patch(ctx, rec.Key, license.Patch{Revoked: ptr(true)}))

		got, err := s.Get(ctx, rec.Key)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
		assert.Equal(t, "batch-1", got.Note)
		assert.Nil(t, got.MachineID)

		at := now.Add(time.Minute)
		require.NoError(t, s.Patch(ctx, rec.Key, license.Patch{
			MachineID:   ptr("machine-a"),
			ActivatedAt: &at,
			Uses:        ptr(1),
		}))
		got, err = s.Get(ctx, rec.Key)
		require.NoError(t, err)
		require.NotNil(t, got.MachineID)
		assert.Equal(t, "machine-a", *got.MachineID)
		assert.Equal(t, 1, got.Uses)
		assert.True(t, got.Revoked)
	})

	t.Run("PatchMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.Patch(ctx, "F2P-AAAA-BBBB-CCCC", license.Patch{Revoked: ptr(true)})
		require.ErrorIs(t, err, license.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		empty, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		keys := []string{"F2P-AAAA-AAAA-AAAA", "F2P-BBBB-BBBB-BBBB", "TRY-CCCC-CCCC-CCCC"}
		for i, k := range keys {
			typ := license.TypeLifetime
			if i == 2 {
				typ = license.TypeTrial
			}
			require.NoError(t, s.Put(ctx, newRecord(k, typ, now.Add(time.Duration(i)*time.Second))))
		}

		all, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		got := make([]string, 0, len(all))
		for _, r := range all {
			got = append(got, r.Key)
		}
		assert.ElementsMatch(t, keys, got)
	})

	t.Run("BindIfAbsent", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("F2P-AAAA-BBBB-CCCC", license.TypeLifetime, now)
		require.NoError(t, s.Put(ctx, rec))

		at := now.Add(time.Hour)
		bound, ok, err := s.BindIfAbsent(ctx, rec.Key, "machine-a", at)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NotNil(t, bound.MachineID)
		assert.Equal(t, "machine-a", *bound.MachineID)
		assert.Equal(t, 1, bound.Uses)
		require.NotNil(t, bound.ActivatedAt)
		assert.True(t, at.Equal(*bound.ActivatedAt))

		again, ok, err := s.BindIfAbsent(ctx, rec.Key, "machine-b", at.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)
		require.NotNil(t, again.MachineID)
		assert.Equal(t, "machine-a", *again.MachineID)

		_, _, err = s.BindIfAbsent(ctx, "F2P-ZZZZ-ZZZZ-ZZZZ", "machine-a", at)
		require.ErrorIs(t, err, license.ErrNotFound)
	})

	t.Run("BindIfAbsentEmptyMachineID", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("F2P-AAAA-BBBB-CCCC", license.TypeLifetime, now)
		rec.MachineID = ptr("")
		require.NoError(t, s.Put(ctx, rec))

		bound, ok, err := s.BindIfAbsent(ctx, rec.Key, "machine-a", now)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NotNil(t, bound.MachineID)
		assert.Equal(t, "machine-a", *bound.MachineID)
		assert.Equal(t, 1, bound.Uses)

		got, err := s.Get(ctx, rec.Key)
		require.NoError(t, err)
		require.NotNil(t, got.MachineID)
		assert.Equal(t, "machine-a", *got.MachineID)
	})

	t.Run("BindIfAbsentConcurrent", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("F2P-AAAA-BBBB-CCCC", license.TypeLifetime, now)
		require.NoError(t, s.Put(ctx, rec))

		machines := []string{"m-1", "m-2", "m-3", "m-4", "m-5", "m-6", "m-7", "m-8"}
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []string
		)
		for _, m := range machines {
			wg.Add(1)
			go func(m string) {
				defer wg.Done()
				_, ok, err := s.BindIfAbsent(ctx, rec.Key, m, now)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					winners = append(winners, m)
					mu.Unlock()
				}
			}(m)
		}
		wg.Wait()

		require.Len(t, winners, 1)
		got, err := s.Get(ctx, rec.Key)
		require.NoError(t, err)
		require.NotNil(t, got.MachineID)
		assert.Equal(t, winners[0], *got.MachineID)
	})

	t.Run("RecordUse", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("F2P-AAAA-BBBB-CCCC", license.TypeLifetime, now)
		require.NoError(t, s.Put(ctx, rec))
		_, _, err := s.BindIfAbsent(ctx, rec.Key, "machine-a", now)
		require.NoError(t, err)

		seen := now.Add(2 * time.Hour)
		got, err := s.RecordUse(ctx, rec.Key, seen)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Uses)
		require.NotNil(t, got.LastSeen)
		assert.True(t, seen.Equal(*got.LastSeen))

		_, err = s.RecordUse(ctx, "F2P-ZZZZ-ZZZZ-ZZZZ", seen)
		require.ErrorIs(t, err, license.ErrNotFound)
	})

	t.Run("RecordUseConcurrent", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("F2P-AAAA-BBBB-CCCC", license.TypeLifetime, now)
		require.NoError(t, s.Put(ctx, rec))

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.RecordUse(ctx, rec.Key, now)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, rec.Key)
		require.NoError(t, err)
		assert.Equal(t, n, got.Uses)
	})
}
