package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/linkdrive/pkg/copytree"
	"github.com/arthur-debert/linkdrive/pkg/errors"
	"github.com/arthur-debert/linkdrive/pkg/filesystem"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

// testEnv builds a reconciler against a temp "home" and a temp "drive"
// mount point.
type testEnv struct {
	rec       *Reconciler
	home      string
	mountPath string
	link      types.ManagedLink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	home := filepath.Join(root, "home")
	mountPath := filepath.Join(root, "Volumes", "Stick")
	require.NoError(t, os.MkdirAll(home, 0755))
	require.NoError(t, os.MkdirAll(mountPath, 0755))

	fixed := time.Unix(1700000000, 0)
	rec := New(filesystem.NewOS(), copytree.New(), WithClock(func() time.Time { return fixed }))

	return &testEnv{
		rec:       rec,
		home:      home,
		mountPath: mountPath,
		link: types.ManagedLink{
			Name:         "models",
			LocalPath:    filepath.Join(home, "models"),
			DriveSubpath: "linkdrive/models",
		},
	}
}

func (e *testEnv) target() string {
	return e.link.TargetOn(e.mountPath)
}

func TestReconcile_FreshDrive(t *testing.T) {
	// Local path missing, drive mounted, subpath absent on drive.
	env := newTestEnv(t)

	action, err := env.rec.Reconcile(context.Background(), env.link, env.mountPath)
	require.NoError(t, err)
	assert.Equal(t, types.ActionLinkDirectly, action)

	info, err := os.Stat(env.target())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	linkTarget, err := os.Readlink(env.link.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, env.target(), linkTarget)
}

func TestReconcile_MigratesLocalDirectory(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(env.link.LocalPath, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.link.LocalPath, "sub", "weights.bin"), []byte("data"), 0644))

	action, err := env.rec.Reconcile(context.Background(), env.link, env.mountPath)
	require.NoError(t, err)
	assert.Equal(t, types.ActionMigrateThenLink, action)

	// Data lives on the drive now, reachable through the link.
	content, err := os.ReadFile(filepath.Join(env.target(), "sub", "weights.bin"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))

	linkTarget, err := os.Readlink(env.link.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, env.target(), linkTarget)
}

func TestReconcile_QuarantinesRegularFile(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.link.LocalPath, []byte("surprise"), 0644))

	action, err := env.rec.Reconcile(context.Background(), env.link, env.mountPath)
	require.NoError(t, err)
	assert.Equal(t, types.ActionQuarantineThenLink, action)

	backup := env.link.LocalPath + ".backup.1700000000"
	content, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "surprise", string(content))

	linkTarget, err := os.Readlink(env.link.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, env.target(), linkTarget)
}

func TestReconcile_RepointsStaleSymlink(t *testing.T) {
	env := newTestEnv(t)
	oldTarget := filepath.Join(t.TempDir(), "old-models")
	require.NoError(t, os.MkdirAll(oldTarget, 0755))
	require.NoError(t, os.Symlink(oldTarget, env.link.LocalPath))

	action, err := env.rec.Reconcile(context.Background(), env.link, env.mountPath)
	require.NoError(t, err)
	assert.Equal(t, types.ActionLinkDirectly, action)

	linkTarget, err := os.Readlink(env.link.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, env.target(), linkTarget)

	// The old target itself is untouched, merely unreferenced.
	_, err = os.Stat(oldTarget)
	assert.NoError(t, err)
}

func TestReconcile_HealsDanglingLinkOnUnmount(t *testing.T) {
	env := newTestEnv(t)

	// Mounted and linked first.
	_, err := env.rec.Reconcile(context.Background(), env.link, env.mountPath)
	require.NoError(t, err)

	// Simulate the drive disappearing.
	require.NoError(t, os.RemoveAll(env.mountPath))

	action, err := env.rec.Reconcile(context.Background(), env.link, "")
	require.NoError(t, err)
	assert.Equal(t, types.ActionHealPlaceholder, action)

	info, err := os.Lstat(env.link.LocalPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "placeholder must be a real directory, not a link")
}

func TestReconcile_LeavesReachableLinkOnUnmount(t *testing.T) {
	env := newTestEnv(t)
	elsewhere := t.TempDir()
	require.NoError(t, os.Symlink(elsewhere, env.link.LocalPath))

	action, err := env.rec.Reconcile(context.Background(), env.link, "")
	require.NoError(t, err)
	assert.Equal(t, types.ActionNoOp, action)

	linkTarget, err := os.Readlink(env.link.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, elsewhere, linkTarget)
}

func TestReconcile_Idempotence(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, env *testEnv)
		mounted bool
	}{
		{
			name:    "after fresh link",
			prepare: func(t *testing.T, env *testEnv) {},
			mounted: true,
		},
		{
			name: "after migration",
			prepare: func(t *testing.T, env *testEnv) {
				require.NoError(t, os.MkdirAll(env.link.LocalPath, 0755))
				require.NoError(t, os.WriteFile(filepath.Join(env.link.LocalPath, "f"), []byte("x"), 0644))
			},
			mounted: true,
		},
		{
			name: "after quarantine",
			prepare: func(t *testing.T, env *testEnv) {
				require.NoError(t, os.WriteFile(env.link.LocalPath, []byte("x"), 0644))
			},
			mounted: true,
		},
		{
			name: "after placeholder heal",
			prepare: func(t *testing.T, env *testEnv) {
				require.NoError(t, os.Symlink(filepath.Join(env.mountPath, "gone"), env.link.LocalPath))
			},
			mounted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.prepare(t, env)

			mountPath := ""
			if tt.mounted {
				mountPath = env.mountPath
			} else {
				require.NoError(t, os.RemoveAll(env.mountPath))
			}

			_, err := env.rec.Reconcile(context.Background(), env.link, mountPath)
			require.NoError(t, err)

			// Second pass with no external change must be a no-op.
			action, err := env.rec.Reconcile(context.Background(), env.link, mountPath)
			require.NoError(t, err)
			assert.Equal(t, types.ActionNoOp, action)
		})
	}
}

func TestReconcile_RootAndEmptyPathsRejected(t *testing.T) {
	env := newTestEnv(t)

	for _, bad := range []string{"", "/"} {
		link := types.ManagedLink{Name: "bad", LocalPath: bad, DriveSubpath: "x"}
		_, err := env.rec.Reconcile(context.Background(), link, env.mountPath)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrPathRootOrEmpty),
			"expected PATH_ROOT_OR_EMPTY for %q, got %v", bad, err)
	}
}

func TestReconcile_CopyFailurePreservesLocalData(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.link.LocalPath, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.link.LocalPath, "f"), []byte("precious"), 0644))

	// Block the drive target by planting a file where its parent
	// directory should go; every copy tier fails to create it.
	require.NoError(t, os.WriteFile(filepath.Join(env.mountPath, "linkdrive"), []byte{}, 0644))

	_, err := env.rec.Reconcile(context.Background(), env.link, env.mountPath)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCopyFailed), "got %v", err)

	// The local directory is untouched.
	content, err := os.ReadFile(filepath.Join(env.link.LocalPath, "f"))
	require.NoError(t, err)
	assert.Equal(t, "precious", string(content))
}

func TestReconcile_EmitsEvents(t *testing.T) {
	root := t.TempDir()
	mountPath := filepath.Join(root, "Stick")
	require.NoError(t, os.MkdirAll(mountPath, 0755))

	var events []Event
	rec := New(filesystem.NewOS(), copytree.New(), WithEvents(func(ev Event) {
		events = append(events, ev)
	}))

	link := types.ManagedLink{
		Name:         "hub",
		LocalPath:    filepath.Join(root, "hub"),
		DriveSubpath: "linkdrive/hub",
	}
	_, err := rec.Reconcile(context.Background(), link, mountPath)
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, "hub", events[0].Link.Name)
	assert.Equal(t, types.ActionLinkDirectly, events[0].Action)
}

func TestReconcile_ConcurrentTriggersSerializePerLink(t *testing.T) {
	// A mount event, a backstop tick and a manual sync can all fire at
	// once. The per-link lock must serialize them: exactly one goroutine
	// performs the migration, the rest observe the terminal state.
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.link.LocalPath, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.link.LocalPath, "weights.bin"), []byte("data"), 0644))

	const workers = 8
	actions := make([]types.Action, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			actions[i], errs[i] = env.rec.Reconcile(context.Background(), env.link, env.mountPath)
		}()
	}
	wg.Wait()

	migrations := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i], "worker %d", i)
		switch actions[i] {
		case types.ActionMigrateThenLink:
			migrations++
		case types.ActionNoOp:
		default:
			t.Fatalf("worker %d applied unexpected action %s", i, actions[i])
		}
	}
	assert.Equal(t, 1, migrations, "exactly one racing pass may migrate")

	// No interleaving corrupted the data or the link.
	content, err := os.ReadFile(filepath.Join(env.target(), "weights.bin"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))

	linkTarget, err := os.Readlink(env.link.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, env.target(), linkTarget)
}

func TestReconcile_WarnsBeforeMigratingOntoNonEmptyTarget(t *testing.T) {
	root := t.TempDir()
	mountPath := filepath.Join(root, "Stick")
	link := types.ManagedLink{
		Name:         "models",
		LocalPath:    filepath.Join(root, "home", "models"),
		DriveSubpath: "linkdrive/models",
	}
	target := link.TargetOn(mountPath)

	// Both sides populated, with one overlapping file.
	require.NoError(t, os.MkdirAll(link.LocalPath, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(link.LocalPath, "f"), []byte("fresh"), 0644))
	require.NoError(t, os.MkdirAll(target, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "f"), []byte("stale"), 0644))

	var messages []string
	rec := New(filesystem.NewOS(), copytree.New(), WithEvents(func(ev Event) {
		messages = append(messages, ev.Message)
	}))

	action, err := rec.Reconcile(context.Background(), link, mountPath)
	require.NoError(t, err)
	assert.Equal(t, types.ActionMigrateThenLink, action)

	// The overlap warning arrives before any copying starts.
	warnAt, copyAt := -1, -1
	for i, msg := range messages {
		if warnAt < 0 && strings.Contains(msg, "already has content") {
			warnAt = i
		}
		if copyAt < 0 && strings.Contains(msg, "copying") {
			copyAt = i
		}
	}
	require.GreaterOrEqual(t, warnAt, 0, "overlap warning not emitted, events: %v", messages)
	require.GreaterOrEqual(t, copyAt, 0, "copy progress not emitted, events: %v", messages)
	assert.Less(t, warnAt, copyAt, "warning must precede the copy")

	// Local content wins on overlap.
	content, err := os.ReadFile(filepath.Join(target, "f"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(content))
}

func TestReconcile_CreatesMissingLocalParent(t *testing.T) {
	// Fresh machine: neither the local path nor its parent exists yet.
	// The unattended script mkdir -p's the parent; the engine must too.
	env := newTestEnv(t)
	env.link.LocalPath = filepath.Join(env.home, ".lmstudio", "models")

	action, err := env.rec.Reconcile(context.Background(), env.link, env.mountPath)
	require.NoError(t, err)
	assert.Equal(t, types.ActionLinkDirectly, action)

	linkTarget, err := os.Readlink(env.link.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, env.target(), linkTarget)
}

func TestPlan_DoesNotMutate(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.link.LocalPath, 0755))

	decision, state, err := env.rec.Plan(env.link, env.mountPath)
	require.NoError(t, err)
	assert.Equal(t, types.ActionMigrateThenLink, decision.Action)
	assert.Equal(t, types.KindRealDirectory, state.Kind)

	// Still a plain directory; planning must not touch the filesystem.
	info, err := os.Lstat(env.link.LocalPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	_, err = os.Stat(env.target())
	assert.True(t, os.IsNotExist(err))
}
