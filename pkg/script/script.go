// Package script renders the reconciliation decision table as a
// standalone, dependency-free POSIX sh script for execution by an OS
// service supervisor with no access to the live process. The script
// reproduces the same mount check, the same classification order
// (symlink, then directory, then anything-else-is-quarantined, then
// missing), the same backup naming and the same placeholder-on-disconnect
// behavior as pkg/reconcile; naming constants are imported from there so
// the two renditions cannot drift.
package script

import (
	"strings"
	"text/template"
	"time"

	"github.com/arthur-debert/linkdrive/pkg/errors"
	"github.com/arthur-debert/linkdrive/pkg/paths"
	"github.com/arthur-debert/linkdrive/pkg/reconcile"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

// Params parameterizes one emitted script.
type Params struct {
	// DriveID is the managed drive's identifier (its volume label).
	DriveID string

	// MountPath is the absolute path the drive is expected to mount at.
	MountPath string

	// Links are the managed links the script reconciles, in order.
	Links []types.ManagedLink

	// LogPath is where the script appends its log lines. Exit status is
	// non-zero when any transition fails, but the log is the primary
	// record.
	LogPath string
}

// Validate rejects parameter sets that would render an unsafe script.
func (p Params) Validate() error {
	if p.DriveID == "" {
		return errors.New(errors.ErrInvalidInput, "drive id cannot be empty")
	}
	if err := paths.ValidateManagedPath(p.MountPath); err != nil {
		return err
	}
	if p.LogPath == "" {
		return errors.New(errors.ErrInvalidInput, "log path cannot be empty")
	}
	if len(p.Links) == 0 {
		return errors.New(errors.ErrInvalidInput, "at least one managed link is required")
	}
	for _, link := range p.Links {
		if err := paths.ValidateManagedPath(link.LocalPath); err != nil {
			return err
		}
		if link.DriveSubpath == "" {
			return errors.New(errors.ErrInvalidInput, "drive subpath cannot be empty")
		}
	}
	return nil
}

// ShellQuote wraps s in single quotes for POSIX sh, escaping embedded
// single quotes. Every interpolated path and identifier goes through
// this; nothing user-controlled reaches the script unquoted.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var scriptTemplate = template.Must(template.New("unattended").Funcs(template.FuncMap{
	"sq": ShellQuote,
}).Parse(`#!/bin/sh
# Generated by linkdrive {{.GeneratedAt}} for drive {{sq .DriveID}}.
# Reconciles managed links against the drive at {{sq .MountPath}}.
# Safe to run repeatedly: every transition re-checks on-disk state and
# converges to the same terminal state as the live agent.

LOG={{sq .LogPath}}
MOUNT={{sq .MountPath}}
STATUS=0

log() {
    printf '%s %s\n' "$(date '+%Y-%m-%dT%H:%M:%S')" "$1" >> "$LOG"
}

copy_tree() {
    # Tiered copy: rsync, then cp, matching the in-process strategy.
    if command -v rsync >/dev/null 2>&1; then
        rsync -a "$1/" "$2" && return 0
    fi
    cp -R "$1/." "$2"
}

reconcile_link() {
    local_path=$1
    target=$2

    if [ -d "$MOUNT" ]; then
        mkdir -p "$(dirname "$local_path")" || { log "ERROR cannot create parent of $local_path"; STATUS=1; return; }
        if [ -L "$local_path" ]; then
            current=$(readlink "$local_path")
            if [ "$current" = "$target" ]; then
                log "OK $local_path already linked"
                return
            fi
            log "repointing $local_path (was $current)"
            rm "$local_path" || { log "ERROR cannot remove stale link $local_path"; STATUS=1; return; }
            mkdir -p "$target" && ln -s "$target" "$local_path" \
                || { log "ERROR cannot link $local_path"; STATUS=1; return; }
        elif [ -d "$local_path" ]; then
            log "migrating $local_path to $target"
            mkdir -p "$target" || { log "ERROR cannot create $target"; STATUS=1; return; }
            if copy_tree "$local_path" "$target"; then
                rm -rf "$local_path" && ln -s "$target" "$local_path" \
                    || { log "ERROR cannot replace $local_path with link"; STATUS=1; return; }
                log "migrated $local_path"
            else
                # Copy failed: abort before deletion, data stays in place.
                log "ERROR copy failed for $local_path, leaving data untouched"
                STATUS=1
            fi
        elif [ -e "$local_path" ]; then
            backup="${local_path}{{.BackupSuffix}}$(date +%s)"
            log "backing up unexpected file $local_path to $backup"
            mv "$local_path" "$backup" || { log "ERROR cannot back up $local_path"; STATUS=1; return; }
            mkdir -p "$target" && ln -s "$target" "$local_path" \
                || { log "ERROR cannot link $local_path"; STATUS=1; return; }
        else
            log "linking $local_path to $target"
            mkdir -p "$target" && ln -s "$target" "$local_path" \
                || { log "ERROR cannot link $local_path"; STATUS=1; return; }
        fi
    else
        # Drive absent: heal dangling links with a placeholder directory,
        # leave everything else untouched.
        if [ -L "$local_path" ] && [ ! -e "$local_path" ]; then
            log "drive absent, replacing dangling link $local_path with placeholder"
            rm "$local_path" && mkdir -p "$local_path" \
                || { log "ERROR cannot create placeholder $local_path"; STATUS=1; return; }
        fi
    fi
}
{{range .Links}}
reconcile_link {{sq .LocalPath}} {{sq .Target}}{{end}}

exit $STATUS
`))

type templateLink struct {
	LocalPath string
	Target    string
}

type templateData struct {
	GeneratedAt  string
	DriveID      string
	MountPath    string
	LogPath      string
	BackupSuffix string
	Links        []templateLink
}

// Render emits the unattended script for the given parameters. Output is
// deterministic for fixed inputs apart from the generation timestamp.
func Render(p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	data := templateData{
		GeneratedAt:  time.Now().Format("2006-01-02"),
		DriveID:      p.DriveID,
		MountPath:    p.MountPath,
		LogPath:      p.LogPath,
		BackupSuffix: reconcile.BackupSuffix,
	}
	for _, link := range p.Links {
		data.Links = append(data.Links, templateLink{
			LocalPath: link.LocalPath,
			Target:    link.TargetOn(p.MountPath),
		})
	}

	var sb strings.Builder
	if err := scriptTemplate.Execute(&sb, data); err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "failed to render unattended script")
	}
	return sb.String(), nil
}
