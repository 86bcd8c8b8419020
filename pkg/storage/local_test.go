package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalWriteReturnsVersionedURL(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	url, err := local.Write(context.Background(), []string{"uploads", "backgrounds"}, "background-17.png", []byte("png"), 17)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/backgrounds/background-17.png?v=17", url)

	data, err := os.ReadFile(filepath.Join(local.BasePath(), "uploads", "backgrounds", "background-17.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestLocalWriteFailureIsLocalIO(t *testing.T) {
	base := t.TempDir()
	local, err := NewLocalStorage(base)
	require.NoError(t, err)

	// 目录位置被普通文件占用
	require.NoError(t, os.WriteFile(filepath.Join(base, "uploads"), []byte("x"), 0644))

	_, err = local.Write(context.Background(), []string{"uploads", "profiles"}, "a.jpg", []byte("x"), 1)
	assert.ErrorIs(t, err, ErrLocalIO)
}

func TestCleanupByPrefix(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	dir := local.Dir("uploads", "profiles")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range []string{"7-1.jpg", "7-2.png", "70-1.jpg", "8-1.jpg", "7-b-3.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "7-dir"), 0755))

	removed, err := local.CleanupByPrefix(context.Background(), []string{"uploads", "profiles"}, "7-")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"7-1.jpg", "7-2.png"}, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"70-1.jpg", "8-1.jpg", "7-b-3.jpg", "7-dir"}, names)
}

func TestCleanupByPrefixMissingDirectory(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	removed, err := local.CleanupByPrefix(context.Background(), []string{"uploads", "nothing"}, "background-")
	assert.NoError(t, err)
	assert.Empty(t, removed)
}
