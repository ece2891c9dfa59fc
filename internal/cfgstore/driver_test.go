package cfgstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSourceTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestDriverStore_InsertThenResolveAndExport(t *testing.T) {
	ctx := context.Background()
	store := NewDriverStore(t.TempDir())
	src := writeSourceTree(t, map[string]string{"metadata.fcl": "Config_name: \"standard\""})

	require.NoError(t, store.Insert(ctx, 100, "standard", src))

	name, err := store.ResolveConfigName(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "standard", name)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{100}, runs)

	dest := t.TempDir()
	require.NoError(t, store.Export(ctx, 100, "standard", dest))
	data, err := os.ReadFile(filepath.Join(dest, "metadata.fcl"))
	require.NoError(t, err)
	assert.Equal(t, "Config_name: \"standard\"", string(data))
}

func TestDriverStore_InsertTwice_AlreadyExists(t *testing.T) {
	ctx := context.Background()
	store := NewDriverStore(t.TempDir())
	src := writeSourceTree(t, map[string]string{"metadata.fcl": "x"})

	require.NoError(t, store.Insert(ctx, 1, "cfg", src))
	err := store.Insert(ctx, 1, "cfg", src)
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))
}

func TestDriverStore_UpdateMissing_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewDriverStore(t.TempDir())
	src := writeSourceTree(t, map[string]string{"metadata.fcl": "x"})

	err := store.Update(ctx, 1, "cfg", src)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDriverStore_ResolveMissingRun_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewDriverStore(t.TempDir())

	_, err := store.ResolveConfigName(ctx, 999)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDriverStore_ListRuns_EmptyRootReturnsNil(t *testing.T) {
	ctx := context.Background()
	store := NewDriverStore(filepath.Join(t.TempDir(), "does-not-exist-yet"))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDriverStore_MaxConcurrencyIsOne(t *testing.T) {
	store := NewDriverStore(t.TempDir())
	assert.Equal(t, 1, store.MaxConcurrency())
}
