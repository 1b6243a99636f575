// Package reconcile implements the volume-aware link reconciliation engine.
// Given a managed link, the drive's mount status and the current on-disk
// state of the local path, it decides and applies the correct transition:
// link directly, migrate data then link, quarantine unexpected content, or
// fall back to a local placeholder directory.
//
// The engine is idempotent and convergent: running a pass twice with no
// external change produces a no-op the second time. That property is what
// allows the same decision table to run from the live agent and from the
// cold-started unattended script with zero shared state.
package reconcile

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/linkdrive/pkg/copytree"
	"github.com/arthur-debert/linkdrive/pkg/errors"
	"github.com/arthur-debert/linkdrive/pkg/inspect"
	"github.com/arthur-debert/linkdrive/pkg/logging"
	"github.com/arthur-debert/linkdrive/pkg/paths"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

// Event is one human-readable progress notification emitted while a link
// is reconciled.
type Event struct {
	Link    types.ManagedLink
	Action  types.Action
	Message string
}

// EventFunc receives progress events. Implementations must be fast; they
// run inline on the reconciliation path.
type EventFunc func(Event)

// Reconciler applies the decision table to managed links. Reconciliation
// of a single link is serialized through a per-link lock; different links
// may be reconciled concurrently.
type Reconciler struct {
	fs     types.FS
	copier *copytree.Copier
	logger zerolog.Logger
	events EventFunc
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithEvents sets the progress event sink.
func WithEvents(fn EventFunc) Option {
	return func(r *Reconciler) { r.events = fn }
}

// WithClock overrides the timestamp source for backup naming. Tests use
// this to get deterministic backup paths.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a Reconciler.
func New(fs types.FS, copier *copytree.Copier, opts ...Option) *Reconciler {
	r := &Reconciler{
		fs:     fs,
		copier: copier,
		logger: logging.GetLogger("reconcile"),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// lockFor returns the mutex serializing one link's transitions. Locks are
// keyed by local path and live for the process lifetime; the set of
// managed links is small and fixed.
func (r *Reconciler) lockFor(localPath string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[localPath]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[localPath] = l
	return l
}

func (r *Reconciler) emit(link types.ManagedLink, action types.Action, message string) {
	r.logger.Info().
		Str("link", link.Name).
		Str("action", string(action)).
		Msg(message)
	if r.events != nil {
		r.events(Event{Link: link, Action: action, Message: message})
	}
}

// Plan classifies the link's local path and returns the decision that a
// reconciliation pass would apply, without mutating anything. mountPath
// is empty when the drive is not mounted.
func (r *Reconciler) Plan(link types.ManagedLink, mountPath string) (Decision, types.PathState, error) {
	if err := paths.ValidateManagedPath(link.LocalPath); err != nil {
		return Decision{}, types.PathState{}, err
	}

	state, err := inspect.Classify(r.fs, link.LocalPath)
	if err != nil {
		return Decision{}, types.PathState{}, errors.Wrapf(err, errors.ErrFileAccess,
			"failed to classify %s", link.LocalPath)
	}

	in := Input{
		State:        state,
		DriveMounted: mountPath != "",
	}
	if in.DriveMounted {
		in.ExpectedTarget = link.TargetOn(mountPath)
	}
	if state.Kind == types.KindSymlink {
		in.TargetReachable = inspect.Reachable(r.fs, resolveLinkTarget(link.LocalPath, state.LinkTarget))
	}

	return Decide(in), state, nil
}

// Reconcile runs one pass for the link. mountPath is the drive's current
// mount path, or "" when the drive is not mounted. It returns the action
// that was applied. On error the filesystem is left in the last safely
// reached intermediate state; the local content is never deleted without
// having been copied or backed up first.
func (r *Reconciler) Reconcile(ctx context.Context, link types.ManagedLink, mountPath string) (types.Action, error) {
	if err := paths.ValidateManagedPath(link.LocalPath); err != nil {
		return types.ActionNoOp, err
	}
	if mountPath != "" {
		if err := paths.ValidateManagedPath(link.TargetOn(mountPath)); err != nil {
			return types.ActionNoOp, err
		}
	}

	lock := r.lockFor(link.LocalPath)
	lock.Lock()
	defer lock.Unlock()

	decision, state, err := r.Plan(link, mountPath)
	if err != nil {
		return types.ActionNoOp, err
	}

	switch decision.Action {
	case types.ActionNoOp:
		r.logger.Debug().
			Str("link", link.Name).
			Str("state", state.String()).
			Str("reason", decision.Reason).
			Msg("nothing to do")
		return types.ActionNoOp, nil
	case types.ActionMigrateThenLink:
		return decision.Action, r.migrateThenLink(ctx, link, link.TargetOn(mountPath))
	case types.ActionLinkDirectly:
		return decision.Action, r.linkDirectly(link, state, link.TargetOn(mountPath))
	case types.ActionQuarantineThenLink:
		return decision.Action, r.quarantineThenLink(link, link.TargetOn(mountPath))
	case types.ActionHealPlaceholder:
		return decision.Action, r.healPlaceholder(link)
	default:
		return types.ActionNoOp, errors.Newf(errors.ErrInternal, "unhandled action %s", decision.Action)
	}
}

// migrateThenLink copies the local directory tree onto the drive target,
// removes the local directory, then links. A copy failure aborts before
// any deletion, leaving the data in place.
func (r *Reconciler) migrateThenLink(ctx context.Context, link types.ManagedLink, target string) error {
	if empty, err := inspect.IsEmptyDir(r.fs, target); err == nil && !empty {
		// Local content wins on path overlap; there is no merge. Shout so
		// the operator knows drive-side files may be overwritten.
		r.emit(link, types.ActionMigrateThenLink,
			"drive target already has content; local files overwrite on overlap")
	}

	r.emit(link, types.ActionMigrateThenLink, "copying local data to drive")
	if err := r.copier.CopyTree(ctx, link.LocalPath, target); err != nil {
		return err
	}

	r.emit(link, types.ActionMigrateThenLink, "copy complete, replacing local directory with link")
	if err := r.fs.RemoveAll(link.LocalPath); err != nil {
		return errors.Wrapf(err, errors.ErrRemoveFailed,
			"migrated data is safe on the drive but %s could not be removed", link.LocalPath)
	}

	if err := r.fs.Symlink(target, link.LocalPath); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkFailed,
			"failed to link %s -> %s", link.LocalPath, target)
	}

	r.emit(link, types.ActionMigrateThenLink, "migrated and linked")
	return nil
}

// linkDirectly creates the drive target if absent and links the local
// path to it, removing a stale symlink first when present.
func (r *Reconciler) linkDirectly(link types.ManagedLink, state types.PathState, target string) error {
	if state.Kind == types.KindSymlink {
		r.emit(link, types.ActionLinkDirectly, "removing stale link to "+state.LinkTarget)
		if err := r.fs.Remove(link.LocalPath); err != nil {
			return errors.Wrapf(err, errors.ErrRemoveFailed,
				"failed to remove stale link %s", link.LocalPath)
		}
	}

	// The local path's parent may not exist yet on a fresh machine; the
	// unattended script creates it too.
	if err := r.fs.MkdirAll(filepath.Dir(link.LocalPath), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate,
			"failed to create parent of %s", link.LocalPath)
	}

	if err := r.ensureTarget(target); err != nil {
		return err
	}

	if err := r.fs.Symlink(target, link.LocalPath); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkFailed,
			"failed to link %s -> %s", link.LocalPath, target)
	}

	r.emit(link, types.ActionLinkDirectly, "linked to "+target)
	return nil
}

// quarantineThenLink renames an unexpected regular file to a timestamped
// backup sibling, then links.
func (r *Reconciler) quarantineThenLink(link types.ManagedLink, target string) error {
	backup := BackupPath(link.LocalPath, r.now())

	r.emit(link, types.ActionQuarantineThenLink, "backing up unexpected file to "+backup)
	if err := r.fs.Rename(link.LocalPath, backup); err != nil {
		return errors.Wrapf(err, errors.ErrBackupFailed,
			"failed to back up %s", link.LocalPath)
	}

	if err := r.ensureTarget(target); err != nil {
		return err
	}

	if err := r.fs.Symlink(target, link.LocalPath); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkFailed,
			"failed to link %s -> %s", link.LocalPath, target)
	}

	r.emit(link, types.ActionQuarantineThenLink, "quarantined and linked")
	return nil
}

// healPlaceholder removes a dangling symlink and creates an empty local
// directory in its place so the consuming application keeps a writable
// path while the drive is away.
func (r *Reconciler) healPlaceholder(link types.ManagedLink) error {
	r.emit(link, types.ActionHealPlaceholder, "removing dangling link")
	if err := r.fs.Remove(link.LocalPath); err != nil {
		return errors.Wrapf(err, errors.ErrRemoveFailed,
			"failed to remove dangling link %s", link.LocalPath)
	}

	if err := r.fs.MkdirAll(link.LocalPath, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate,
			"failed to create placeholder directory %s", link.LocalPath)
	}

	r.emit(link, types.ActionHealPlaceholder, "placeholder directory created")
	return nil
}

func (r *Reconciler) ensureTarget(target string) error {
	if err := r.fs.MkdirAll(target, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate,
			"failed to create drive target %s", target)
	}
	return nil
}

// resolveLinkTarget makes a literal link target absolute relative to the
// link's parent directory, the same way the kernel resolves it.
func resolveLinkTarget(linkPath, target string) string {
	if filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(filepath.Dir(linkPath), target)
}
