package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arthur-debert/linkdrive/pkg/types"
)

func TestDecide(t *testing.T) {
	const target = "/Volumes/Stick/linkdrive/models"

	tests := []struct {
		name     string
		input    Input
		expected types.Action
	}{
		{
			name: "mounted real directory migrates",
			input: Input{
				State:          types.PathState{Kind: types.KindRealDirectory},
				DriveMounted:   true,
				ExpectedTarget: target,
			},
			expected: types.ActionMigrateThenLink,
		},
		{
			name: "mounted correct symlink is a no-op",
			input: Input{
				State:          types.PathState{Kind: types.KindSymlink, LinkTarget: target},
				DriveMounted:   true,
				ExpectedTarget: target,
			},
			expected: types.ActionNoOp,
		},
		{
			name: "mounted stale symlink is repointed",
			input: Input{
				State:          types.PathState{Kind: types.KindSymlink, LinkTarget: "/Volumes/Old/models"},
				DriveMounted:   true,
				ExpectedTarget: target,
			},
			expected: types.ActionLinkDirectly,
		},
		{
			name: "mounted regular file is quarantined",
			input: Input{
				State:          types.PathState{Kind: types.KindRegularFile},
				DriveMounted:   true,
				ExpectedTarget: target,
			},
			expected: types.ActionQuarantineThenLink,
		},
		{
			name: "mounted missing path is linked",
			input: Input{
				State:          types.PathState{Kind: types.KindMissing},
				DriveMounted:   true,
				ExpectedTarget: target,
			},
			expected: types.ActionLinkDirectly,
		},
		{
			name: "unmounted dangling symlink heals to placeholder",
			input: Input{
				State:           types.PathState{Kind: types.KindSymlink, LinkTarget: target},
				DriveMounted:    false,
				TargetReachable: false,
			},
			expected: types.ActionHealPlaceholder,
		},
		{
			name: "unmounted reachable symlink is left alone",
			input: Input{
				State:           types.PathState{Kind: types.KindSymlink, LinkTarget: "/elsewhere/models"},
				DriveMounted:    false,
				TargetReachable: true,
			},
			expected: types.ActionNoOp,
		},
		{
			name: "unmounted real directory is left alone",
			input: Input{
				State:        types.PathState{Kind: types.KindRealDirectory},
				DriveMounted: false,
			},
			expected: types.ActionNoOp,
		},
		{
			name: "unmounted regular file is left alone",
			input: Input{
				State:        types.PathState{Kind: types.KindRegularFile},
				DriveMounted: false,
			},
			expected: types.ActionNoOp,
		},
		{
			name: "unmounted missing path is left alone",
			input: Input{
				State:        types.PathState{Kind: types.KindMissing},
				DriveMounted: false,
			},
			expected: types.ActionNoOp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Decide(tt.input)
			assert.Equal(t, tt.expected, decision.Action)
			assert.NotEmpty(t, decision.Reason)
		})
	}
}

func TestBackupPath(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	assert.Equal(t, "/home/u/.lmstudio/models.backup.1700000000",
		BackupPath("/home/u/.lmstudio/models", ts))
}
