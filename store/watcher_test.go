package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/willbank/go-session-client/store"
)

func TestWatchRequiresArguments(t *testing.T) {
	_, err := store.Watch("", func() {})
	require.Error(t, err)
	_, err = store.Watch("/tmp/session.json", nil)
	require.Error(t, err)
}

func TestWatchReportsExternalRewrite(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Set(store.KeyAuthToken, "t1"))

	changed := make(chan struct{}, 1)
	watcher, err := store.Watch(fs.Path(), func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer watcher.Close()

	// Another process rewriting the same file.
	other, err := store.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, other.Set(store.KeyAuthToken, "t2"))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestWatchIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)

	changed := make(chan struct{}, 1)
	watcher, err := store.Watch(fs.Path(), func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer watcher.Close()

	unrelated, err := store.NewSecureStore(dir, []byte("device-secret"))
	require.NoError(t, err)
	require.NoError(t, unrelated.Set(store.KeyAuthToken, "t1"))

	select {
	case <-changed:
		t.Fatal("unexpected notification for an unrelated file")
	case <-time.After(500 * time.Millisecond):
	}
}
