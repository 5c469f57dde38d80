package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "watcher channel closed")
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher event")
		return ""
	}
}

func TestStartWatcher_InitialScanAndNewFiles(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "existing.pdf")
	writeFile(t, existing, "%PDF-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		SkipHidden:  true,
		Debounce:    50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, existing, receive(t, events))

	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")
	fresh := filepath.Join(root, "fresh.pdf")
	writeFile(t, fresh, "%PDF-2")
	assert.Equal(t, fresh, receive(t, events))

	cancel()
	for range events {
	}
}

func TestStartWatcher_Debounces(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, Debounce: 200 * time.Millisecond})
	require.NoError(t, err)

	path := filepath.Join(root, "burst.pdf")
	for i := 0; i < 5; i++ {
		writeFile(t, path, "%PDF-burst")
	}
	assert.Equal(t, path, receive(t, events))

	select {
	case p := <-events:
		t.Fatalf("unexpected second event for %s", p)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
