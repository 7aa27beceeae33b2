package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

func newFSVC(t *testing.T) (*FSVersionControl, string) {
	t.Helper()
	root := t.TempDir()
	return &FSVersionControl{
		Root:        root,
		BackupDir:   t.TempDir(),
		BaselineDir: t.TempDir(),
	}, root
}

func TestSnapshotRevert_ByteIdentical(t *testing.T) {
	vc, root := newFSVC(t)
	ctx := context.Background()

	original := []byte("velocity = 4.2\ngravity = 9.8\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.ini"), original, 0o644))

	ref, err := vc.Snapshot(ctx, []string{"config.ini"})
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	require.NoError(t, vc.Apply(ctx, record.ActionSpec{
		Target:    "config.ini",
		Operation: OpWrite,
		Content:   "velocity = 9000\n",
	}))

	require.NoError(t, vc.Revert(ctx, ref))

	restored, err := os.ReadFile(filepath.Join(root, "config.ini"))
	require.NoError(t, err)
	if diff := cmp.Diff(original, restored); diff != "" {
		t.Fatalf("post-rollback state differs from pre-snapshot state (-want +got):\n%s", diff)
	}
}

func TestSnapshotRevert_RemovesCreatedFile(t *testing.T) {
	vc, root := newFSVC(t)
	ctx := context.Background()

	// Snapshot a resource that does not exist yet.
	ref, err := vc.Snapshot(ctx, []string{"new/asset.dat"})
	require.NoError(t, err)

	require.NoError(t, vc.Apply(ctx, record.ActionSpec{
		Target:    "new/asset.dat",
		Operation: OpWrite,
		Content:   "created",
	}))
	_, err = os.Stat(filepath.Join(root, "new/asset.dat"))
	require.NoError(t, err)

	require.NoError(t, vc.Revert(ctx, ref))
	_, err = os.Stat(filepath.Join(root, "new/asset.dat"))
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshot_ZeroResourcesFailsClosed(t *testing.T) {
	vc, _ := newFSVC(t)
	_, err := vc.Snapshot(context.Background(), nil)
	require.Error(t, err)
}

func TestApply_RestoreBaseline(t *testing.T) {
	vc, root := newFSVC(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(vc.BaselineDir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vc.BaselineDir, "assets/icon.png"), []byte("pristine"), 0o644))

	require.NoError(t, vc.Apply(ctx, record.ActionSpec{
		Target:    "assets/icon.png",
		Operation: OpRestoreBaseline,
	}))

	data, err := os.ReadFile(filepath.Join(root, "assets/icon.png"))
	require.NoError(t, err)
	assert.Equal(t, "pristine", string(data))
}

func TestApply_UnsupportedOperation(t *testing.T) {
	vc, _ := newFSVC(t)
	err := vc.Apply(context.Background(), record.ActionSpec{Target: "x", Operation: "transmogrify"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operation")
}

func TestApply_Delete(t *testing.T) {
	vc, root := newFSVC(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "stale.tmp"), []byte("x"), 0o644))
	require.NoError(t, vc.Apply(ctx, record.ActionSpec{Target: "stale.tmp", Operation: OpDelete}))

	_, err := os.Stat(filepath.Join(root, "stale.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestCommit_AppendsRevision(t *testing.T) {
	vc, _ := newFSVC(t)
	ctx := context.Background()

	rev1, err := vc.Commit(ctx, "restore assets/icon.png")
	require.NoError(t, err)
	rev2, err := vc.Commit(ctx, "revert config value")
	require.NoError(t, err)
	assert.NotEqual(t, rev1, rev2)

	data, err := os.ReadFile(filepath.Join(vc.BackupDir, "revisions.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), rev1)
	assert.Contains(t, string(data), rev2)
}
