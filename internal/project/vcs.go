package project

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Action operations understood by FSVersionControl.Apply.
const (
	OpWrite           = "write"            // write ActionSpec.Content to the target
	OpDelete          = "delete"           // remove the target
	OpRestoreBaseline = "restore_baseline" // copy the target from the baseline tree
)

// FSVersionControl is a filesystem-backed VersionControl. Snapshots copy the
// touched resources into a per-snapshot backup directory; Revert restores
// them byte-identically, including re-deleting files that did not exist at
// snapshot time.
type FSVersionControl struct {
	Root        string
	BackupDir   string
	BaselineDir string
}

// snapshotState records, per resource, whether it existed when the snapshot
// was taken. Files that existed have their bytes copied under files/.
type snapshotState struct {
	TakenAt   time.Time       `json:"taken_at"`
	Resources map[string]bool `json:"resources"` // rel path -> existed
}

// Snapshot implements VersionControl. It fails closed: any copy error aborts
// with no backup ref, and a partial backup directory is removed.
func (v *FSVersionControl) Snapshot(ctx context.Context, resources []string) (string, error) {
	if len(resources) == 0 {
		return "", fmt.Errorf("project: snapshot of zero resources")
	}
	ref := uuid.NewString()
	dir := filepath.Join(v.BackupDir, ref)
	if err := os.MkdirAll(filepath.Join(dir, "files"), 0o700); err != nil {
		return "", fmt.Errorf("project: create snapshot dir: %w", err)
	}

	state := snapshotState{TakenAt: time.Now().UTC(), Resources: make(map[string]bool, len(resources))}
	for _, res := range resources {
		if err := ctx.Err(); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
		src := filepath.Join(v.Root, res)
		data, err := os.ReadFile(src)
		switch {
		case os.IsNotExist(err):
			state.Resources[res] = false
			continue
		case err != nil:
			os.RemoveAll(dir)
			return "", fmt.Errorf("project: snapshot %s: %w", res, err)
		}
		dst := filepath.Join(dir, "files", res)
		if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("project: snapshot %s: %w", res, err)
		}
		if err := os.WriteFile(dst, data, 0o600); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("project: snapshot %s: %w", res, err)
		}
		state.Resources[res] = true
	}

	stateData, err := json.Marshal(state)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("project: marshal snapshot state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "state.json"), stateData, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("project: write snapshot state: %w", err)
	}
	return ref, nil
}

// Apply implements VersionControl. It performs exactly the specified
// operation against the action's target, nothing else.
func (v *FSVersionControl) Apply(ctx context.Context, action record.ActionSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(v.Root, action.Target)
	switch action.Operation {
	case OpWrite:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("project: apply write %s: %w", action.Target, err)
		}
		if err := os.WriteFile(target, []byte(action.Content), 0o644); err != nil {
			return fmt.Errorf("project: apply write %s: %w", action.Target, err)
		}
	case OpDelete:
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("project: apply delete %s: %w", action.Target, err)
		}
	case OpRestoreBaseline:
		if v.BaselineDir == "" {
			return fmt.Errorf("project: no baseline configured for restore of %s", action.Target)
		}
		data, err := os.ReadFile(filepath.Join(v.BaselineDir, action.Target))
		if err != nil {
			return fmt.Errorf("project: read baseline %s: %w", action.Target, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("project: restore %s: %w", action.Target, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("project: restore %s: %w", action.Target, err)
		}
	default:
		return fmt.Errorf("project: unsupported operation %q", action.Operation)
	}
	return nil
}

// Commit implements VersionControl. Revisions are appended to a log file in
// the backup directory; the returned id identifies the commit for audit.
func (v *FSVersionControl) Commit(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rev := uuid.NewString()
	entry := fmt.Sprintf("%s %s %s\n", time.Now().UTC().Format(time.RFC3339), rev, message)
	if err := os.MkdirAll(v.BackupDir, 0o700); err != nil {
		return "", fmt.Errorf("project: commit: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(v.BackupDir, "revisions.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("project: commit: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		return "", fmt.Errorf("project: commit: %w", err)
	}
	return rev, nil
}

// Revert implements VersionControl. Every resource in the snapshot is
// restored to its exact pre-snapshot bytes; resources that did not exist at
// snapshot time are removed again.
func (v *FSVersionControl) Revert(ctx context.Context, backupRef string) error {
	dir := filepath.Join(v.BackupDir, backupRef)
	stateData, err := os.ReadFile(filepath.Join(dir, "state.json"))
	if err != nil {
		return fmt.Errorf("project: revert %s: %w", backupRef, err)
	}
	var state snapshotState
	if err := json.Unmarshal(stateData, &state); err != nil {
		return fmt.Errorf("project: revert %s: %w", backupRef, err)
	}

	for res, existed := range state.Resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(v.Root, res)
		if !existed {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("project: revert %s: %w", res, err)
			}
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, "files", res))
		if err != nil {
			return fmt.Errorf("project: revert %s: %w", res, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("project: revert %s: %w", res, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("project: revert %s: %w", res, err)
		}
	}
	return nil
}
