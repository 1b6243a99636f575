package inspect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/linkdrive/pkg/filesystem"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

func TestClassify(t *testing.T) {
	root := t.TempDir()
	fs := filesystem.NewOS()

	dir := filepath.Join(root, "dir")
	require.NoError(t, os.Mkdir(dir, 0755))

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	linkToDir := filepath.Join(root, "link-to-dir")
	require.NoError(t, os.Symlink(dir, linkToDir))

	dangling := filepath.Join(root, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(root, "nope"), dangling))

	tests := []struct {
		name       string
		path       string
		expected   types.PathKind
		linkTarget string
	}{
		{"real directory", dir, types.KindRealDirectory, ""},
		{"regular file", file, types.KindRegularFile, ""},
		{"symlink to directory reports symlink", linkToDir, types.KindSymlink, dir},
		{"dangling symlink keeps literal target", dangling, types.KindSymlink, filepath.Join(root, "nope")},
		{"missing is a normal result", filepath.Join(root, "absent"), types.KindMissing, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := Classify(fs, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, state.Kind)
			assert.Equal(t, tt.linkTarget, state.LinkTarget)
		})
	}
}

func TestReachable(t *testing.T) {
	root := t.TempDir()
	fs := filesystem.NewOS()

	assert.True(t, Reachable(fs, root))
	assert.False(t, Reachable(fs, filepath.Join(root, "absent")))
}

func TestIsEmptyDir(t *testing.T) {
	root := t.TempDir()
	fs := filesystem.NewOS()

	empty := filepath.Join(root, "empty")
	require.NoError(t, os.Mkdir(empty, 0755))

	full := filepath.Join(root, "full")
	require.NoError(t, os.Mkdir(full, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(full, "f"), []byte("x"), 0644))

	got, err := IsEmptyDir(fs, empty)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = IsEmptyDir(fs, full)
	require.NoError(t, err)
	assert.False(t, got)

	_, err = IsEmptyDir(fs, filepath.Join(root, "absent"))
	assert.Error(t, err)
}
