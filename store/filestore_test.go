package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/willbank/go-session-client/store"
)

func TestFileStoreRoundtrip(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Set(store.KeyAuthToken, "t1"))
	require.NoError(t, fs.Set(store.KeyRefreshToken, "r1"))

	value, err := fs.Get(store.KeyAuthToken)
	require.NoError(t, err)
	require.Equal(t, "t1", value)

	require.NoError(t, fs.Remove(store.KeyAuthToken))
	_, err = fs.Get(store.KeyAuthToken)
	require.ErrorIs(t, err, store.ErrNotFound)

	value, err = fs.Get(store.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "r1", value)
}

func TestFileStoreGetMissingKey(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get("absent")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFileStoreRemoveMissingKeyIsNoop(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Remove("absent"))
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first, err := store.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(store.KeyClientID, "42"))

	second, err := store.NewFileStore(dir)
	require.NoError(t, err)
	value, err := second.Get(store.KeyClientID)
	require.NoError(t, err)
	require.Equal(t, "42", value)
}

func TestFileStoreCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Set(store.KeyAuthToken, "t1"))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(fs.Path(), []byte("{not json"), 0o600))

	_, err = fs.Get(store.KeyAuthToken)
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrNotFound)
}
