// Package agent runs the long-lived supervisory loop: it consumes the
// mount event channel, resolves the managed drive's current mount path,
// and reconciles every managed link on each trigger. The unattended
// script covers the same ground from cold start when the agent is not
// running; both rely on the reconciler's idempotence rather than any
// cross-process lock.
package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arthur-debert/linkdrive/pkg/drives"
	"github.com/arthur-debert/linkdrive/pkg/logging"
	"github.com/arthur-debert/linkdrive/pkg/reconcile"
	"github.com/arthur-debert/linkdrive/pkg/types"
	"github.com/arthur-debert/linkdrive/pkg/watcher"
)

// DefaultBackstopInterval is how often the agent re-reconciles even when
// no event has arrived. Events can be missed across sleep/wake; the
// backstop converges regardless.
const DefaultBackstopInterval = 5 * time.Minute

// Agent owns one drive's managed links.
type Agent struct {
	source   watcher.Source
	dir      *drives.Directory
	rec      *reconcile.Reconciler
	driveID  string
	links    []types.ManagedLink
	backstop time.Duration
	logger   zerolog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithBackstopInterval overrides the periodic re-reconcile interval.
func WithBackstopInterval(d time.Duration) Option {
	return func(a *Agent) { a.backstop = d }
}

// New creates an Agent supervising the given links against driveID.
func New(source watcher.Source, dir *drives.Directory, rec *reconcile.Reconciler,
	driveID string, links []types.ManagedLink, opts ...Option) *Agent {
	a := &Agent{
		source:   source,
		dir:      dir,
		rec:      rec,
		driveID:  driveID,
		links:    links,
		backstop: DefaultBackstopInterval,
		logger:   logging.GetLogger("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	// A non-positive interval would panic time.NewTicker; fall back to the
	// default the same way the polling watcher does.
	if a.backstop <= 0 {
		a.backstop = DefaultBackstopInterval
	}
	return a
}

// Run starts the event source and blocks consuming events until ctx is
// cancelled. An initial reconciliation pass runs before the first event
// so a freshly started agent converges immediately.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.source.Start(ctx); err != nil {
		return err
	}
	defer a.source.Stop()

	a.reconcileAll(ctx, "startup")

	ticker := time.NewTicker(a.backstop)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-a.source.Events():
			if !ok {
				return nil
			}
			a.logger.Info().
				Str("kind", string(ev.Kind)).
				Str("path", ev.Path).
				Msg("volume event received")
			a.reconcileAll(ctx, string(ev.Kind))

		case <-ticker.C:
			a.reconcileAll(ctx, "backstop")
		}
	}
}

// reconcileAll resolves the drive's current mount path and reconciles
// every managed link. Different links run concurrently; the reconciler
// serializes per link. Errors are logged and left for the next trigger,
// which is the event-driven retry policy.
func (a *Agent) reconcileAll(ctx context.Context, trigger string) {
	mountPath, err := a.dir.ResolveMountPath(a.driveID)
	if err != nil {
		a.logger.Error().Err(err).Str("trigger", trigger).Msg("failed to resolve drive mount path")
		return
	}

	a.logger.Debug().
		Str("trigger", trigger).
		Str("drive", a.driveID).
		Str("mountPath", mountPath).
		Bool("mounted", mountPath != "").
		Msg("reconciling managed links")

	g, ctx := errgroup.WithContext(ctx)
	for _, link := range a.links {
		link := link
		g.Go(func() error {
			action, err := a.rec.Reconcile(ctx, link, mountPath)
			if err != nil {
				a.logger.Error().
					Err(err).
					Str("link", link.Name).
					Str("trigger", trigger).
					Msg("reconciliation failed, will retry on next trigger")
				return nil
			}
			if action != types.ActionNoOp {
				a.logger.Info().
					Str("link", link.Name).
					Str("action", string(action)).
					Msg("link reconciled")
			}
			return nil
		})
	}
	_ = g.Wait()
}
