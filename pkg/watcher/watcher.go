// Package watcher emits volume mount and unmount notifications as messages
// on a single ordered event channel. Two implementations share the
// contract: an fsnotify watcher on the volumes root, and a periodic poller
// used where inotify-style events are unavailable. Consumers read from
// Events() in one coordination loop, which makes ordering and back-pressure
// explicit.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/linkdrive/pkg/errors"
	"github.com/arthur-debert/linkdrive/pkg/logging"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

// Source is the mount event source contract: a lifecycle plus one ordered
// event channel. Events for the same volume are delivered in wall-clock
// order; the channel is closed after Stop or context cancellation.
type Source interface {
	Events() <-chan types.VolumeEvent
	Start(ctx context.Context) error
	Stop()
}

// settleDelay gives a freshly mounted volume a moment to become readable
// before the event is delivered. Correctness does not depend on it; the
// unattended script re-runs as a backstop.
const settleDelay = 500 * time.Millisecond

// FSWatcher watches the volumes root with fsnotify and reports directory
// creations as mounts and removals as unmounts.
type FSWatcher struct {
	root    string
	logger  zerolog.Logger
	events  chan types.VolumeEvent
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewFSWatcher creates a watcher for the given volumes root.
func NewFSWatcher(root string) *FSWatcher {
	return &FSWatcher{
		root:   root,
		logger: logging.GetLogger("watcher.fsnotify"),
		events: make(chan types.VolumeEvent, 16),
		done:   make(chan struct{}),
	}
}

// Events returns the ordered event channel.
func (w *FSWatcher) Events() <-chan types.VolumeEvent {
	return w.events
}

// Start begins watching. It fails when the volumes root cannot be watched,
// in which case callers should fall back to a Poller.
func (w *FSWatcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrWatchFailed, "failed to create filesystem watcher")
	}
	if err := fsw.Add(w.root); err != nil {
		_ = fsw.Close()
		return errors.Wrapf(err, errors.ErrWatchFailed, "failed to watch %s", w.root)
	}
	w.watcher = fsw

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.loop(ctx)

	w.logger.Info().Str("root", w.root).Msg("watching volumes root")
	return nil
}

// Stop terminates the watcher; Events() is closed once the loop drains.
func (w *FSWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *FSWatcher) loop(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)
	defer func() { _ = w.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("filesystem watcher error")
		}
	}
}

func (w *FSWatcher) handle(ctx context.Context, ev fsnotify.Event) {
	// Only direct children of the volumes root are volumes.
	if filepath.Dir(ev.Name) != filepath.Clean(w.root) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		// A volume may not be readable the instant its mount point
		// appears; wait briefly before announcing it.
		select {
		case <-time.After(settleDelay):
		case <-ctx.Done():
			return
		}
		info, err := os.Stat(ev.Name)
		if err != nil || !info.IsDir() {
			return
		}
		w.deliver(ctx, types.VolumeEvent{Kind: types.VolumeMounted, Path: ev.Name})

	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.deliver(ctx, types.VolumeEvent{Kind: types.VolumeUnmounted, Path: ev.Name})
	}
}

func (w *FSWatcher) deliver(ctx context.Context, ev types.VolumeEvent) {
	w.logger.Debug().
		Str("kind", string(ev.Kind)).
		Str("path", ev.Path).
		Msg("volume event")
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
