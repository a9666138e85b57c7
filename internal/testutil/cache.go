package testutil

import (
	"context"
	"github.com/cirruslabs/tensorcraft/internal/cache"
	"github.com/cirruslabs/tensorcraft/internal/loader"
	"github.com/cirruslabs/tensorcraft/internal/loader/expression"
	"github.com/cirruslabs/tensorcraft/internal/loader/inprocess"
	"github.com/cirruslabs/tensorcraft/internal/metadata/sqlite"
	"github.com/cirruslabs/tensorcraft/internal/storage/disk"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
)

// Cache returns a model cache backed by a temporary data root
// that serves the expression models synchronously.
func Cache(t *testing.T, opts ...cache.Option) *cache.Cache {
	t.Helper()

	dir := t.TempDir()

	diskStorage, err := disk.New(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)

	metadataStore, err := sqlite.Open(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, metadataStore.Close())
	})

	modelCache, err := cache.New(context.Background(), diskStorage, metadataStore,
		inprocess.New(loader.Func(expression.Load)), opts...)
	require.NoError(t, err)
	t.Cleanup(modelCache.Close)

	return modelCache
}
