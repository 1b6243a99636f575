// Package paths provides path validation and expansion helpers. The
// guards here run before every mutating filesystem operation; nothing in
// the reconciler touches a path that has not passed ValidateManagedPath.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/linkdrive/pkg/errors"
)

// ValidateManagedPath rejects paths that must never be the subject of a
// mutating operation: empty strings, the filesystem root, and anything
// that cleans to the root. This is a safety invariant independent of
// platform.
func ValidateManagedPath(path string) error {
	if path == "" {
		return errors.New(errors.ErrPathRootOrEmpty, "managed path cannot be empty")
	}
	if strings.Contains(path, "\x00") {
		return errors.New(errors.ErrInvalidInput, "path contains null bytes")
	}
	if filepath.Clean(path) == string(filepath.Separator) {
		return errors.New(errors.ErrPathRootOrEmpty, "managed path cannot be the filesystem root")
	}
	if len(path) > 4096 {
		return errors.New(errors.ErrInvalidInput, "path exceeds maximum length")
	}
	return nil
}

// ValidateLinkName ensures a managed link name is safe for use in logs,
// config keys and backup paths.
func ValidateLinkName(name string) error {
	if name == "" {
		return errors.New(errors.ErrInvalidInput, "link name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return errors.New(errors.ErrInvalidInput, "link name cannot contain path separators")
	}
	if name == "." || name == ".." {
		return errors.New(errors.ErrInvalidInput, "link name cannot be '.' or '..'")
	}
	for _, r := range name {
		if r < 32 {
			return errors.New(errors.ErrInvalidInput, "link name contains control characters")
		}
	}
	return nil
}

// GetHomeDirectory returns the user's home directory.
// It first tries os.UserHomeDir(), then falls back to the HOME environment
// variable. If both fail, it returns an error rather than using dangerous
// defaults.
func GetHomeDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err == nil && homeDir != "" {
		return homeDir, nil
	}

	homeDir = os.Getenv("HOME")
	if homeDir != "" {
		return homeDir, nil
	}

	return "", errors.New(errors.ErrFileAccess, "unable to determine home directory: neither os.UserHomeDir() nor HOME environment variable are available")
}

// ExpandHome expands the ~ character to the user's home directory.
// Returns an error if home directory cannot be determined.
func ExpandHome(path string) (string, error) {
	if path == "~" {
		return GetHomeDirectory()
	}

	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		homeDir, err := GetHomeDirectory()
		if err != nil {
			return "", err
		}
		return homeDir + path[1:], nil
	}

	return path, nil
}
