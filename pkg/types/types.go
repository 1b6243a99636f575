package types

import (
	"fmt"
	"path/filepath"
)

// ManagedLink is one local-path-to-drive-subpath relocation linkdrive is
// responsible for keeping correct. Immutable once configured.
type ManagedLink struct {
	// Name identifies the link in logs and status output ("models", "hub").
	Name string `json:"name" koanf:"name"`

	// LocalPath is the absolute path the consuming application reads from.
	LocalPath string `json:"local_path" koanf:"local_path"`

	// DriveSubpath is the path of the backing directory relative to the
	// drive's mount point.
	DriveSubpath string `json:"drive_subpath" koanf:"drive_subpath"`
}

// TargetOn returns the absolute path this link should point at when the
// drive is mounted at mountPath.
func (l ManagedLink) TargetOn(mountPath string) string {
	return filepath.Join(mountPath, l.DriveSubpath)
}

func (l ManagedLink) String() string {
	return fmt.Sprintf("%s (%s -> <drive>/%s)", l.Name, l.LocalPath, l.DriveSubpath)
}

// Drive describes a removable volume. ID is stable across mount cycles;
// MountPath is not, and is empty exactly when the drive is not attached.
type Drive struct {
	ID          string
	MountPath   string
	DisplayName string
	IsExternal  bool
	IsRemovable bool
}

// Mounted reports whether the drive is currently attached.
func (d Drive) Mounted() bool {
	return d.MountPath != ""
}

// PathKind enumerates the classification of an on-disk path.
type PathKind string

const (
	KindSymlink       PathKind = "symlink"
	KindRealDirectory PathKind = "directory"
	KindRegularFile   PathKind = "file"
	KindMissing       PathKind = "missing"
)

// PathState is the result of classifying a path. LinkTarget is only
// meaningful for KindSymlink and holds the literal link target, not the
// resolved real path; a dangling target is returned as-is.
type PathState struct {
	Kind       PathKind
	LinkTarget string
}

// IsSymlinkTo reports whether the state is a symlink pointing exactly at
// target.
func (s PathState) IsSymlinkTo(target string) bool {
	return s.Kind == KindSymlink && s.LinkTarget == target
}

func (s PathState) String() string {
	if s.Kind == KindSymlink {
		return fmt.Sprintf("symlink -> %s", s.LinkTarget)
	}
	return string(s.Kind)
}

// Action is the decision output of the reconciliation state machine for one
// (ManagedLink, mount-status) pair. Derived, applied, discarded; never
// persisted.
type Action string

const (
	// ActionNoOp means the link is already in its correct terminal state.
	ActionNoOp Action = "no-op"

	// ActionLinkDirectly creates the drive target if absent and symlinks
	// the local path to it. Covers the Missing and stale-symlink rows.
	ActionLinkDirectly Action = "link"

	// ActionMigrateThenLink copies the local directory tree to the drive
	// target, removes the local directory, then links.
	ActionMigrateThenLink Action = "migrate-then-link"

	// ActionQuarantineThenLink renames unexpected local content to a
	// timestamped backup, then links.
	ActionQuarantineThenLink Action = "quarantine-then-link"

	// ActionHealPlaceholder removes a dangling symlink and substitutes an
	// empty local directory so the application keeps a writable path.
	ActionHealPlaceholder Action = "heal-placeholder"
)

// VolumeEventKind distinguishes mount from unmount notifications.
type VolumeEventKind string

const (
	VolumeMounted   VolumeEventKind = "mounted"
	VolumeUnmounted VolumeEventKind = "unmounted"
)

// VolumeEvent is one mount or unmount notification. Events for the same
// volume are delivered in wall-clock order.
type VolumeEvent struct {
	Kind VolumeEventKind
	Path string
}
