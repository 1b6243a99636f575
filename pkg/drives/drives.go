// Package drives resolves removable volumes to mount paths. It enumerates
// the platform's volumes root (/Volumes on macOS, /run/media/<user> or
// /media/<user> elsewhere), filtering out the boot volume. A drive's ID is
// its volume label, which is stable across mount cycles; its mount path is
// not.
package drives

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/arthur-debert/linkdrive/pkg/errors"
	"github.com/arthur-debert/linkdrive/pkg/inspect"
	"github.com/arthur-debert/linkdrive/pkg/logging"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

// Directory enumerates and resolves removable drives under a volumes root.
type Directory struct {
	root   string
	fs     types.FS
	logger zerolog.Logger
}

// New creates a Directory scanning the given volumes root. An empty root
// selects the platform default.
func New(fs types.FS, root string) *Directory {
	if root == "" {
		root = DefaultVolumesRoot()
	}
	return &Directory{
		root:   root,
		fs:     fs,
		logger: logging.GetLogger("drives"),
	}
}

// DefaultVolumesRoot picks the conventional mount root for the platform:
// /Volumes when it exists (macOS), otherwise /run/media/<user> or
// /media/<user>.
func DefaultVolumesRoot() string {
	if info, err := os.Stat("/Volumes"); err == nil && info.IsDir() {
		return "/Volumes"
	}

	user := os.Getenv("USER")
	for _, candidate := range []string{
		filepath.Join("/run/media", user),
		filepath.Join("/media", user),
	} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return "/media"
}

// Root returns the volumes root this directory scans.
func (d *Directory) Root() string {
	return d.root
}

// List enumerates currently mounted removable drives. The boot volume
// (on macOS a symlink in /Volumes pointing at /) is filtered out.
func (d *Directory) List() ([]types.Drive, error) {
	entries, err := d.fs.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read volumes root %s", d.root)
	}

	var result []types.Drive
	for _, entry := range entries {
		mountPath := filepath.Join(d.root, entry.Name())

		state, err := inspect.Classify(d.fs, mountPath)
		if err != nil {
			d.logger.Debug().Err(err).Str("path", mountPath).Msg("skipping unreadable volume entry")
			continue
		}
		// The boot volume appears as a symlink to /; anything that is not
		// a real directory is not a mounted volume.
		if state.Kind != types.KindRealDirectory {
			continue
		}

		result = append(result, types.Drive{
			ID:          entry.Name(),
			MountPath:   mountPath,
			DisplayName: entry.Name(),
			IsExternal:  true,
			IsRemovable: true,
		})
	}

	return result, nil
}

// Info returns the drive mounted at path, or nil when path is not a
// mounted volume under the root.
func (d *Directory) Info(path string) (*types.Drive, error) {
	all, err := d.List()
	if err != nil {
		return nil, err
	}
	clean := filepath.Clean(path)
	for i := range all {
		if all[i].MountPath == clean {
			return &all[i], nil
		}
	}
	return nil, nil
}

// ResolveMountPath resolves a drive ID to its current mount path, or ""
// when the drive is not attached.
func (d *Directory) ResolveMountPath(driveID string) (string, error) {
	if driveID == "" {
		return "", errors.New(errors.ErrInvalidInput, "drive id cannot be empty")
	}

	all, err := d.List()
	if err != nil {
		return "", err
	}
	for _, drive := range all {
		if drive.ID == driveID {
			return drive.MountPath, nil
		}
	}
	return "", nil
}

// Usage returns a human-readable "used / total" string for the filesystem
// mounted at path, or an error when it cannot be measured.
func (d *Directory) Usage(path string) (string, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "statfs failed for %s", path)
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	used := total - free

	return fmt.Sprintf("%s used of %s", humanize.IBytes(used), humanize.IBytes(total)), nil
}
