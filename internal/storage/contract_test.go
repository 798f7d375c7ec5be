package storage

import (
	"context"
	"errors"
	"fmt"
	"otapush/internal/models"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStorageContract exercises the behavior every backend must share.
func testStorageContract(t *testing.T, newStorage func(t *testing.T) Storage) {
	ctx := context.Background()

	t.Run("fetch missing", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.FetchReleaseHistory(ctx, models.NewHistoryKey("9.9.9", "ios", "nowhere"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create then fetch", func(t *testing.T) {
		s := newStorage(t)
		key := models.NewHistoryKey("1.0.0", "ios", "")
		h := models.ReleaseHistory{"1.0.0": {Enabled: true}}

		rev, err := s.PublishReleaseHistory(ctx, key, h, 0)
		require.NoError(t, err)
		assert.NotZero(t, rev)

		rec, err := s.FetchReleaseHistory(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, rev, rec.Revision)
		assert.Equal(t, h, rec.History)
		assert.Equal(t, models.DefaultIdentifier, rec.Key.Identifier)
	})

	t.Run("create twice", func(t *testing.T) {
		s := newStorage(t)
		key := models.NewHistoryKey("1.0.0", "android", "prod")
		_, err := s.PublishReleaseHistory(ctx, key, models.ReleaseHistory{}, 0)
		require.NoError(t, err)

		_, err = s.PublishReleaseHistory(ctx, key, models.ReleaseHistory{}, 0)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("update with current revision", func(t *testing.T) {
		s := newStorage(t)
		key := models.NewHistoryKey("2.0.0", "ios", "prod")
		rev, err := s.PublishReleaseHistory(ctx, key, models.ReleaseHistory{"2.0.0": {Enabled: true}}, 0)
		require.NoError(t, err)

		rollout := 50.0
		next := models.ReleaseHistory{
			"2.0.0": {Enabled: true},
			"2.0.1": {Enabled: true, Mandatory: true, DownloadURL: "https://cdn/x", PackageHash: "abc", Rollout: &rollout},
		}
		rev2, err := s.PublishReleaseHistory(ctx, key, next, rev)
		require.NoError(t, err)
		assert.NotEqual(t, rev, rev2)

		rec, err := s.FetchReleaseHistory(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, rev2, rec.Revision)
		assert.Equal(t, next, rec.History)
	})

	t.Run("stale revision", func(t *testing.T) {
		s := newStorage(t)
		key := models.NewHistoryKey("3.0.0", "ios", "prod")
		rev, err := s.PublishReleaseHistory(ctx, key, models.ReleaseHistory{}, 0)
		require.NoError(t, err)
		_, err = s.PublishReleaseHistory(ctx, key, models.ReleaseHistory{"a": {}}, rev)
		require.NoError(t, err)

		_, err = s.PublishReleaseHistory(ctx, key, models.ReleaseHistory{"b": {}}, rev)
		assert.ErrorIs(t, err, ErrConflict)

		rec, err := s.FetchReleaseHistory(ctx, key)
		require.NoError(t, err)
		assert.Contains(t, rec.History, "a")
		assert.NotContains(t, rec.History, "b")
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.PublishReleaseHistory(ctx, models.NewHistoryKey("4.0.0", "ios", "prod"), models.ReleaseHistory{}, 7)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict), "got %v", err)
	})

	t.Run("returned history is a copy", func(t *testing.T) {
		s := newStorage(t)
		key := models.NewHistoryKey("5.0.0", "ios", "prod")
		h := models.ReleaseHistory{"5.0.0": {Enabled: true}}
		_, err := s.PublishReleaseHistory(ctx, key, h, 0)
		require.NoError(t, err)
		h["5.0.1"] = models.ReleaseInfo{}

		rec, err := s.FetchReleaseHistory(ctx, key)
		require.NoError(t, err)
		rec.History["5.0.2"] = models.ReleaseInfo{}

		again, err := s.FetchReleaseHistory(ctx, key)
		require.NoError(t, err)
		assert.Len(t, again.History, 1)
	})

	t.Run("invalid key", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.FetchReleaseHistory(ctx, models.HistoryKey{BinaryVersion: "1", Platform: "web"})
		assert.Error(t, err)
		_, err = s.PublishReleaseHistory(ctx, models.HistoryKey{BinaryVersion: "../x", Platform: "ios"}, nil, 0)
		assert.Error(t, err)
	})

	t.Run("list histories", func(t *testing.T) {
		s := newStorage(t)
		for _, bv := range []string{"1.1.0", "1.0.0", "2.0.0"} {
			_, err := s.PublishReleaseHistory(ctx, models.NewHistoryKey(bv, "android", "prod"), models.ReleaseHistory{}, 0)
			require.NoError(t, err)
		}
		_, err := s.PublishReleaseHistory(ctx, models.NewHistoryKey("9.0.0", "ios", "prod"), models.ReleaseHistory{}, 0)
		require.NoError(t, err)
		_, err = s.PublishReleaseHistory(ctx, models.NewHistoryKey("8.0.0", "android", "staging"), models.ReleaseHistory{}, 0)
		require.NoError(t, err)

		versions, err := s.ListHistories(ctx, "android", "prod")
		require.NoError(t, err)
		assert.Equal(t, []string{"1.0.0", "1.1.0", "2.0.0"}, versions)

		versions, err = s.ListHistories(ctx, "android", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"8.0.0"}, versions)

		versions, err = s.ListHistories(ctx, "ios", "missing")
		require.NoError(t, err)
		assert.Empty(t, versions)
	})

	t.Run("concurrent writers do not lose releases", func(t *testing.T) {
		s := newStorage(t)
		key := models.NewHistoryKey("6.0.0", "ios", "race")
		_, err := s.PublishReleaseHistory(ctx, key, models.ReleaseHistory{"6.0.0": {Enabled: true}}, 0)
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				version := fmt.Sprintf("6.0.%d", i+1)
				for {
					rec, err := s.FetchReleaseHistory(ctx, key)
					if err != nil {
						errs <- err
						return
					}
					rec.History[version] = models.ReleaseInfo{Enabled: true}
					_, err = s.PublishReleaseHistory(ctx, key, rec.History, rec.Revision)
					if errors.Is(err, ErrConflict) {
						continue
					}
					if err != nil {
						errs <- err
					}
					return
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		rec, err := s.FetchReleaseHistory(ctx, key)
		require.NoError(t, err)
		assert.Len(t, rec.History, writers+1)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStorage(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
