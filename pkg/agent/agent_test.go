package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/linkdrive/pkg/copytree"
	"github.com/arthur-debert/linkdrive/pkg/drives"
	"github.com/arthur-debert/linkdrive/pkg/filesystem"
	"github.com/arthur-debert/linkdrive/pkg/reconcile"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

// stubSource feeds the agent hand-crafted volume events.
type stubSource struct {
	ch chan types.VolumeEvent
}

func newStubSource() *stubSource {
	return &stubSource{ch: make(chan types.VolumeEvent, 4)}
}

func (s *stubSource) Events() <-chan types.VolumeEvent { return s.ch }
func (s *stubSource) Start(ctx context.Context) error  { return nil }
func (s *stubSource) Stop()                            {}

func TestAgentReconcilesOnStartupAndEvents(t *testing.T) {
	root := t.TempDir()
	volumesRoot := filepath.Join(root, "Volumes")
	mountPath := filepath.Join(volumesRoot, "Stick")
	require.NoError(t, os.MkdirAll(mountPath, 0755))

	home := filepath.Join(root, "home")
	require.NoError(t, os.MkdirAll(home, 0755))

	link := types.ManagedLink{
		Name:         "models",
		LocalPath:    filepath.Join(home, "models"),
		DriveSubpath: "linkdrive/models",
	}

	fs := filesystem.NewOS()
	source := newStubSource()
	a := New(source, drives.New(fs, volumesRoot), reconcile.New(fs, copytree.New()),
		"Stick", []types.ManagedLink{link})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Startup pass links without any event arriving.
	require.Eventually(t, func() bool {
		target, err := os.Readlink(link.LocalPath)
		return err == nil && target == link.TargetOn(mountPath)
	}, 5*time.Second, 20*time.Millisecond, "startup pass should link")

	// Drive disappears; the unmount event heals the dangling link.
	require.NoError(t, os.RemoveAll(mountPath))
	source.ch <- types.VolumeEvent{Kind: types.VolumeUnmounted, Path: mountPath}

	require.Eventually(t, func() bool {
		info, err := os.Lstat(link.LocalPath)
		return err == nil && info.IsDir()
	}, 5*time.Second, 20*time.Millisecond, "unmount event should heal placeholder")

	// Drive returns; the mount event migrates the placeholder back.
	require.NoError(t, os.MkdirAll(mountPath, 0755))
	source.ch <- types.VolumeEvent{Kind: types.VolumeMounted, Path: mountPath}

	require.Eventually(t, func() bool {
		target, err := os.Readlink(link.LocalPath)
		return err == nil && target == link.TargetOn(mountPath)
	}, 5*time.Second, 20*time.Millisecond, "mount event should relink")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop after cancellation")
	}
}

func TestAgentRunsWithZeroBackstopInterval(t *testing.T) {
	// backstop_minutes = 0 in the settings file must not crash the agent;
	// the default interval takes over, as with the polling watcher.
	root := t.TempDir()
	volumesRoot := filepath.Join(root, "Volumes")
	require.NoError(t, os.MkdirAll(volumesRoot, 0755))

	fs := filesystem.NewOS()
	source := newStubSource()
	a := New(source, drives.New(fs, volumesRoot), reconcile.New(fs, copytree.New()),
		"Stick", nil, WithBackstopInterval(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop after cancellation")
	}
}

func TestAgentStopsWhenSourceCloses(t *testing.T) {
	root := t.TempDir()
	volumesRoot := filepath.Join(root, "Volumes")
	require.NoError(t, os.MkdirAll(volumesRoot, 0755))

	fs := filesystem.NewOS()
	source := newStubSource()
	a := New(source, drives.New(fs, volumesRoot), reconcile.New(fs, copytree.New()),
		"Stick", nil)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	close(source.ch)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop after source closed")
	}
}
