package reconcile

import (
	"fmt"
	"time"

	"github.com/arthur-debert/linkdrive/pkg/types"
)

// BackupSuffix is the marker inserted between a quarantined path and its
// unix timestamp. The emitted unattended script uses the same convention;
// both sides read it from here so the two renditions of the decision table
// cannot drift on naming.
const BackupSuffix = ".backup."

// BackupPath returns the quarantine path for original at time ts.
// Backups are created lazily, only on destructive transitions, and are
// never deleted by the engine.
func BackupPath(original string, ts time.Time) string {
	return fmt.Sprintf("%s%s%d", original, BackupSuffix, ts.Unix())
}

// Input is everything the decision table consumes for one managed link.
// TargetReachable is only consulted for symlink states: it reports whether
// the resolved link target currently exists (a different mounted volume
// may satisfy the same literal path).
type Input struct {
	State           types.PathState
	DriveMounted    bool
	ExpectedTarget  string
	TargetReachable bool
}

// Decision is the computed transition for one reconciliation pass.
type Decision struct {
	Action types.Action
	Reason string
}

// Decide is the reconciliation decision table. It is a pure function: the
// same inputs always produce the same decision, and applying the decided
// action then re-deciding from the resulting state yields ActionNoOp.
// Both the in-process reconciler and the unattended script emitter derive
// their behavior from this table.
func Decide(in Input) Decision {
	if in.DriveMounted {
		return decideMounted(in)
	}
	return decideUnmounted(in)
}

func decideMounted(in Input) Decision {
	switch in.State.Kind {
	case types.KindRealDirectory:
		return Decision{
			Action: types.ActionMigrateThenLink,
			Reason: "local directory will be migrated to the drive and replaced with a link",
		}
	case types.KindSymlink:
		if in.State.LinkTarget == in.ExpectedTarget {
			return Decision{
				Action: types.ActionNoOp,
				Reason: "already linked",
			}
		}
		return Decision{
			Action: types.ActionLinkDirectly,
			Reason: fmt.Sprintf("stale link to %s will be repointed", in.State.LinkTarget),
		}
	case types.KindRegularFile:
		return Decision{
			Action: types.ActionQuarantineThenLink,
			Reason: "unexpected regular file will be backed up before linking",
		}
	case types.KindMissing:
		return Decision{
			Action: types.ActionLinkDirectly,
			Reason: "local path is missing and will be linked",
		}
	default:
		return Decision{Action: types.ActionNoOp, Reason: "unrecognized path state"}
	}
}

func decideUnmounted(in Input) Decision {
	// Only dangling symlinks are touched on unmount; pre-existing real
	// directories and files are left alone.
	if in.State.Kind == types.KindSymlink && !in.TargetReachable {
		return Decision{
			Action: types.ActionHealPlaceholder,
			Reason: "dangling link will be replaced with a local placeholder directory",
		}
	}
	return Decision{Action: types.ActionNoOp, Reason: "nothing to heal while the drive is away"}
}
