// Package inspect classifies filesystem paths for the reconciler. The
// classification is recomputed fresh on every pass and never cached, which
// is what lets the same decision table run from both the live agent and a
// cold-started unattended script.
package inspect

import (
	"os"

	"github.com/arthur-debert/linkdrive/pkg/types"
)

// Classify returns the PathState for path. The symlink check runs before
// the directory check: a symlink to a directory must be reported as a
// symlink, not a directory. For symlinks the literal link target is
// returned; dangling targets are returned as-is, reachability is the
// caller's concern (see Reachable). Nonexistence is a normal result, not
// an error.
func Classify(fs types.FS, path string) (types.PathState, error) {
	info, err := fs.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.PathState{Kind: types.KindMissing}, nil
		}
		return types.PathState{}, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := fs.Readlink(path)
		if err != nil {
			return types.PathState{}, err
		}
		return types.PathState{Kind: types.KindSymlink, LinkTarget: target}, nil
	}

	if info.IsDir() {
		return types.PathState{Kind: types.KindRealDirectory}, nil
	}

	return types.PathState{Kind: types.KindRegularFile}, nil
}

// Reachable reports whether the resolved target of a path exists. Used on
// unmount to distinguish a dangling symlink from one that another mounted
// volume still satisfies.
func Reachable(fs types.FS, target string) bool {
	_, err := fs.Stat(target)
	return err == nil
}

// IsEmptyDir reports whether path is a directory with no entries. A
// missing path is not an empty directory.
func IsEmptyDir(fs types.FS, path string) (bool, error) {
	entries, err := fs.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
