package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/linkdrive/pkg/types"
)

func waitForEvent(t *testing.T, events <-chan types.VolumeEvent) types.VolumeEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed unexpectedly")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for volume event")
		return types.VolumeEvent{}
	}
}

func TestPollerDetectsMountAndUnmount(t *testing.T) {
	root := t.TempDir()

	p := NewPoller(root, 20*time.Millisecond)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	// Give the seeding scan a moment so the new volume reads as a change.
	time.Sleep(50 * time.Millisecond)

	volume := filepath.Join(root, "Stick")
	require.NoError(t, os.Mkdir(volume, 0755))

	ev := waitForEvent(t, p.Events())
	assert.Equal(t, types.VolumeMounted, ev.Kind)
	assert.Equal(t, volume, ev.Path)

	require.NoError(t, os.Remove(volume))

	ev = waitForEvent(t, p.Events())
	assert.Equal(t, types.VolumeUnmounted, ev.Kind)
	assert.Equal(t, volume, ev.Path)
}

func TestPollerSeedsWithoutSpuriousEvents(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "AlreadyThere"), 0755))

	p := NewPoller(root, 20*time.Millisecond)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	select {
	case ev := <-p.Events():
		t.Fatalf("unexpected event for pre-existing volume: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestPollerStopClosesEvents(t *testing.T) {
	p := NewPoller(t.TempDir(), 20*time.Millisecond)
	require.NoError(t, p.Start(context.Background()))
	p.Stop()

	_, ok := <-p.Events()
	assert.False(t, ok, "events channel should be closed after Stop")
}
