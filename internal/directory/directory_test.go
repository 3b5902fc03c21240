package directory

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestEmptyDirectoryListsNothing(t *testing.T) {
	dir := t.TempDir()
	idx, err := New(dir)
	require.NoError(t, err)
	assert.Empty(t, idx.List())
}

func TestGetBlockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := []byte("Hello\n")
	writeFile(t, dir, "hello.txt", data)

	idx, err := New(dir)
	require.NoError(t, err)

	got, ok, err := idx.GetBlock(hashOf(data))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)
}

func TestGetBlockUnknownHash(t *testing.T) {
	dir := t.TempDir()
	idx, err := New(dir)
	require.NoError(t, err)
	_, ok, err := idx.GetBlock("00")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListIdempotentWhileUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("a"))
	writeFile(t, dir, "b.txt", []byte("bb"))

	idx, err := New(dir)
	require.NoError(t, err)

	first := idx.List()
	second := idx.List()
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestReloadPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	idx, err := New(dir)
	require.NoError(t, err)
	assert.Empty(t, idx.List())

	writeFile(t, dir, "new.txt", []byte("new"))
	require.NoError(t, idx.Reload())
	assert.Len(t, idx.List(), 1)
}

func TestDirectoryIgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, dir, "top.txt", []byte("top"))

	idx, err := New(dir)
	require.NoError(t, err)
	assert.Len(t, idx.List(), 1)
}
