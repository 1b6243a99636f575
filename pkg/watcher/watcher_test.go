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

func timeoutAfterSettle() <-chan time.Time {
	return time.After(settleDelay + 200*time.Millisecond)
}

func TestFSWatcherDetectsMountAndUnmount(t *testing.T) {
	root := t.TempDir()

	w := NewFSWatcher(root)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	volume := filepath.Join(root, "Stick")
	require.NoError(t, os.Mkdir(volume, 0755))

	ev := waitForEvent(t, w.Events())
	assert.Equal(t, types.VolumeMounted, ev.Kind)
	assert.Equal(t, volume, ev.Path)

	require.NoError(t, os.Remove(volume))

	ev = waitForEvent(t, w.Events())
	assert.Equal(t, types.VolumeUnmounted, ev.Kind)
	assert.Equal(t, volume, ev.Path)
}

func TestFSWatcherIgnoresFilesInRoot(t *testing.T) {
	root := t.TempDir()

	w := NewFSWatcher(root)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// A plain file appearing in the volumes root is not a volume.
	require.NoError(t, os.WriteFile(filepath.Join(root, ".DS_Store"), []byte{}, 0644))

	select {
	case ev := <-w.Events():
		// Removal of the file would be indistinguishable from an unmount
		// without a stat, so only mount events are asserted quiet here.
		assert.NotEqual(t, types.VolumeMounted, ev.Kind)
	case <-timeoutAfterSettle():
	}
}

func TestFSWatcherStartFailsOnMissingRoot(t *testing.T) {
	w := NewFSWatcher(filepath.Join(t.TempDir(), "absent"))
	err := w.Start(context.Background())
	assert.Error(t, err)
}
