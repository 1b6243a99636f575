package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/linkdrive/pkg/logging"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

// DefaultPollInterval is how often the Poller rescans the volumes root.
const DefaultPollInterval = 2 * time.Second

// Poller is the periodic-scan implementation of Source. It diffs the set
// of directories under the volumes root between ticks and emits the
// appearances and disappearances as events. Used where the volumes root
// cannot be watched natively.
type Poller struct {
	root     string
	interval time.Duration
	logger   zerolog.Logger
	events   chan types.VolumeEvent
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller creates a Poller. A zero interval selects the default.
func NewPoller(root string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		root:     root,
		interval: interval,
		logger:   logging.GetLogger("watcher.poll"),
		events:   make(chan types.VolumeEvent, 16),
		done:     make(chan struct{}),
	}
}

// Events returns the ordered event channel.
func (p *Poller) Events() <-chan types.VolumeEvent {
	return p.events
}

// Start begins polling. The first scan seeds the known set without
// emitting events, so already-mounted volumes do not produce spurious
// mount notifications.
func (p *Poller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.loop(ctx)

	p.logger.Info().
		Str("root", p.root).
		Dur("interval", p.interval).
		Msg("polling volumes root")
	return nil
}

// Stop terminates the poller; Events() is closed once the loop drains.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	defer close(p.events)

	known := p.scan()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := p.scan()

			// Mounts before unmounts keeps per-volume ordering: a volume
			// cannot disappear and reappear within one tick without both
			// sides being observed.
			for name := range current {
				if !known[name] {
					p.deliver(ctx, types.VolumeEvent{
						Kind: types.VolumeMounted,
						Path: filepath.Join(p.root, name),
					})
				}
			}
			for name := range known {
				if !current[name] {
					p.deliver(ctx, types.VolumeEvent{
						Kind: types.VolumeUnmounted,
						Path: filepath.Join(p.root, name),
					})
				}
			}

			known = current
		}
	}
}

func (p *Poller) scan() map[string]bool {
	result := make(map[string]bool)
	entries, err := os.ReadDir(p.root)
	if err != nil {
		p.logger.Debug().Err(err).Str("root", p.root).Msg("volumes root unreadable")
		return result
	}
	for _, entry := range entries {
		if entry.IsDir() {
			result[entry.Name()] = true
		}
	}
	return result
}

func (p *Poller) deliver(ctx context.Context, ev types.VolumeEvent) {
	p.logger.Debug().
		Str("kind", string(ev.Kind)).
		Str("path", ev.Path).
		Msg("volume event")
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}
