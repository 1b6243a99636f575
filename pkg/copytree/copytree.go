// Package copytree moves directory contents with a tiered fallback: a fast
// mirroring tool (rsync) when present, a generic recursive copy tool (cp),
// and finally an in-process recursive copy. Each tier is tried at most
// once, in fixed order; the first success wins.
package copytree

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/linkdrive/pkg/errors"
	"github.com/arthur-debert/linkdrive/pkg/logging"
)

// Tier names one copy strategy, in the order they are attempted.
type Tier string

const (
	TierRsync  Tier = "rsync"
	TierCp     Tier = "cp"
	TierNative Tier = "native"
)

// DefaultTiers is the fixed attempt order.
var DefaultTiers = []Tier{TierRsync, TierCp, TierNative}

// DefaultTimeout bounds a single external copy invocation. Model
// directories can be large; an hour is generous without being unbounded.
const DefaultTimeout = 60 * time.Minute

// Copier copies directory trees. Safe for concurrent use; each CopyTree
// call is independent, so reconciliation of other managed links is never
// blocked by a copy in flight.
type Copier struct {
	logger  zerolog.Logger
	tiers   []Tier
	timeout time.Duration

	// lookPath is swapped in tests to simulate absent tools.
	lookPath func(file string) (string, error)
}

// New creates a Copier with the default tier order.
func New() *Copier {
	return &Copier{
		logger:   logging.GetLogger("copytree"),
		tiers:    DefaultTiers,
		timeout:  DefaultTimeout,
		lookPath: exec.LookPath,
	}
}

// NewWithTiers creates a Copier with a custom tier order, used when the
// settings file restricts which tools may run.
func NewWithTiers(tiers []Tier) *Copier {
	c := New()
	if len(tiers) > 0 {
		c.tiers = tiers
	}
	return c
}

// CopyTree copies the contents of src into dst, creating dst if needed.
// Existing files in dst are overwritten on path overlap; nothing already
// in dst is removed. On failure every tier's last error text is carried in
// the returned COPY_FAILED error.
func (c *Copier) CopyTree(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCopyFailed, "copy source unreadable: %s", src)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrCopyFailed, "copy source is not a directory: %s", src)
	}

	var lastErr error
	for _, tier := range c.tiers {
		start := time.Now()
		err := c.runTier(ctx, tier, src, dst)
		if err == nil {
			c.logger.Info().
				Str("tier", string(tier)).
				Str("source", src).
				Str("destination", dst).
				Dur("duration", time.Since(start)).
				Msg("copy completed")
			return nil
		}

		c.logger.Warn().
			Err(err).
			Str("tier", string(tier)).
			Msg("copy tier failed, trying next")
		lastErr = err
	}

	return errors.Wrapf(lastErr, errors.ErrCopyFailed,
		"all copy strategies failed for %s -> %s", src, dst)
}

func (c *Copier) runTier(ctx context.Context, tier Tier, src, dst string) error {
	switch tier {
	case TierRsync:
		// Trailing slash on the source copies contents, not the directory.
		return c.runTool(ctx, "rsync", "-a", src+string(filepath.Separator), dst)
	case TierCp:
		// filepath.Join would clean away the trailing "."; build the path
		// manually so cp copies the directory's contents, not the directory.
		return c.runTool(ctx, "cp", "-R", src+string(filepath.Separator)+".", dst)
	case TierNative:
		return copyTreeNative(ctx, src, dst)
	default:
		return errors.Newf(errors.ErrInvalidInput, "unknown copy tier: %s", tier)
	}
}

// runTool executes an external copy tool as a subprocess, capturing output
// for the log.
func (c *Copier) runTool(ctx context.Context, name string, args ...string) error {
	if _, err := c.lookPath(name); err != nil {
		return errors.Newf(errors.ErrNotFound, "%s not found on PATH", name)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug().
		Str("command", name).
		Strs("args", args).
		Msg("executing copy tool")

	if err := cmd.Run(); err != nil {
		c.logger.Error().
			Err(err).
			Str("command", name).
			Str("stderr", stderr.String()).
			Msg("copy tool failed")
		return errors.Wrapf(err, errors.ErrCopyFailed,
			"%s failed: %s", name, bytes.TrimSpace(stderr.Bytes()))
	}

	return nil
}

// copyTreeNative is the in-process fallback tier. It preserves file modes
// and recreates symlinks literally.
func copyTreeNative(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", dst)
	}

	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.Type()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			// Replace any existing entry so overlapping paths converge.
			_ = os.Remove(target)
			return os.Symlink(linkTarget, target)
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
