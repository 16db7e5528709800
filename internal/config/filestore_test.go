package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSetPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store, err := OpenFileStore(path, quietLogger())
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, map[string]any{KeyAutoPause: false, KeyDebugMode: true}))

	values, err := store.Get(ctx, []string{KeyAutoPause, KeyDebugMode, KeyLockPause})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{KeyAutoPause: false, KeyDebugMode: true}, values)

	select {
	case changes := <-store.Changes():
		assert.Equal(t, Change{OldValue: nil, NewValue: false}, changes[KeyAutoPause])
		assert.Equal(t, Change{OldValue: nil, NewValue: true}, changes[KeyDebugMode])
	default:
		t.Fatal("expected change notification after Set")
	}

	reopened, err := OpenFileStore(path, quietLogger())
	require.NoError(t, err)
	values, err = reopened.Get(ctx, []string{KeyDebugMode})
	require.NoError(t, err)
	assert.Equal(t, true, values[KeyDebugMode])
}

func TestFileStoreSetWithoutChangeIsSilent(t *testing.T) {
	ctx := context.Background()
	store, err := OpenFileStore(filepath.Join(t.TempDir(), "settings.yaml"), quietLogger())
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, map[string]any{KeyAutoPause: true}))
	<-store.Changes()

	require.NoError(t, store.Set(ctx, map[string]any{KeyAutoPause: true}))
	select {
	case changes := <-store.Changes():
		t.Fatalf("unexpected change notification: %v", changes)
	default:
	}
}

func TestFileStoreReloadDetectsExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("autopause: true\nscrollpause: false\n"), 0o600))
	store, err := OpenFileStore(path, quietLogger())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("autopause: false\n"), 0o600))
	require.NoError(t, store.Reload())

	select {
	case changes := <-store.Changes():
		assert.Equal(t, Changes{
			KeyAutoPause:   {OldValue: true, NewValue: false},
			KeyScrollPause: {OldValue: false},
		}, changes)
	default:
		t.Fatal("expected change notification after Reload")
	}
}

func TestFileStoreWatchPublishesEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	store, err := OpenFileStore(path, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("focuspause: true\n"), 0o600))

	select {
	case changes := <-store.Changes():
		assert.Equal(t, true, changes[KeyFocusPause].NewValue)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not publish the edit")
	}
	cancel()
	<-done
}

func TestFileStoreRejectsEmptyPath(t *testing.T) {
	_, err := OpenFileStore("", quietLogger())
	require.Error(t, err)
}
