package storage_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cohortsql/internal/adapters/storage"
	"github.com/satishbabariya/cohortsql/internal/core/catalog"
)

func backends(t *testing.T) map[string]storage.Storage {
	return map[string]storage.Storage{
		"memory":     storage.NewMemoryStorage(),
		"filesystem": storage.NewFilesystemStorage(t.TempDir()),
		"s3":         newFakeS3(t),
	}
}

func TestStorage_Lifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Read(ctx, "missing.yaml")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			ok, err := s.Exists(ctx, "catalogs/mimic.yaml")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Write(ctx, "catalogs/mimic.yaml", []byte("version: \"1.0\"")))
			require.NoError(t, s.Write(ctx, "catalogs/eicu.yaml", []byte("version: \"1.1\"")))

			data, err := s.Read(ctx, "catalogs/mimic.yaml")
			require.NoError(t, err)
			assert.Equal(t, "version: \"1.0\"", string(data))

			ok, err = s.Exists(ctx, "catalogs/mimic.yaml")
			require.NoError(t, err)
			assert.True(t, ok)

			names, err := s.List(ctx, "catalogs")
			require.NoError(t, err)
			assert.Equal(t, []string{"eicu.yaml", "mimic.yaml"}, names)

			require.NoError(t, s.Delete(ctx, "catalogs/mimic.yaml"))
			require.NoError(t, s.Delete(ctx, "catalogs/mimic.yaml"))
			names, err = s.List(ctx, "catalogs")
			require.NoError(t, err)
			assert.Equal(t, []string{"eicu.yaml"}, names)

			empty, err := s.List(ctx, "nothing-here")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStorage_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := storage.NewMemoryStorage()
	_, err := s.Read(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Write(ctx, "x", nil), context.Canceled)
}

func TestFileStorage_Fs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/base/a.yaml", []byte("a"), 0o644))
	s := storage.NewFileStorage(fsys, "/base")
	data, err := s.Read(context.Background(), "a.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
	assert.Same(t, fsys, s.Fs())
}

func TestCatalogLoad(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Write(ctx, "mimiciv.yaml", catalog.DefaultDocument()))
			cat, err := catalog.Load(ctx, s, "mimiciv.yaml")
			require.NoError(t, err)
			assert.True(t, cat.HasTable("icustays"))

			_, err = catalog.Load(ctx, s, "absent.yaml")
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewStorage(ctx, &storage.Config{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &storage.FileStorage{}, s)

	s, err = storage.NewStorage(ctx, nil)
	require.NoError(t, err)
	assert.IsType(t, &storage.FileStorage{}, s)

	_, err = storage.NewStorage(ctx, &storage.Config{Type: "s3"})
	assert.Error(t, err)

	_, err = storage.NewStorage(ctx, &storage.Config{Type: "ftp"})
	assert.ErrorIs(t, err, storage.ErrUnknownBackend)
}

func TestBackendWatchable(t *testing.T) {
	assert.True(t, storage.BackendFilesystem.Watchable())
	assert.True(t, storage.Backend("").Watchable())
	assert.False(t, storage.BackendMemory.Watchable())
	assert.False(t, storage.BackendS3.Watchable())
}
