package warehouse

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ListSnapshots returns every run id with a snapshot directory, sorted
// ascending. Run ids are UUIDv7, so this is creation order.
func ListSnapshots(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, runsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// CurrentRunID returns the run id the current symlink points at, or ""
// when nothing is published.
func CurrentRunID(root string) (string, error) {
	target, err := os.Readlink(CurrentPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading current symlink: %w", err)
	}
	return filepath.Base(target), nil
}

// RemoveSnapshot deletes one snapshot directory. The published snapshot is
// never removable.
func RemoveSnapshot(root, runID string) error {
	current, err := CurrentRunID(root)
	if err != nil {
		return err
	}
	if runID == current {
		return fmt.Errorf("snapshot %s is currently published", runID)
	}
	if err := os.RemoveAll(SnapshotDir(root, runID)); err != nil {
		return fmt.Errorf("removing snapshot %s: %w", runID, err)
	}
	return nil
}
