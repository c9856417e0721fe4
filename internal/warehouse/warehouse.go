// Package warehouse persists and serves the pipeline's artifact set. Each
// run stages its artifacts in an immutable snapshot directory under runs/
// and publishes by atomically swapping the `current` symlink, so a reader
// always sees a complete set: the previous one or the new one, never a mix.
//
// Layout:
//
//	<root>/
//	  runs/<run_id>/
//	    jobs_integrated.parquet
//	    ml_features.parquet
//	    data_quality_report.json
//	    etl_summary.json
//	    feature_summary.json
//	  current -> runs/<run_id>
//
// Parquet is written and read through DuckDB; an interrupted run leaves a
// dangling runs/<run_id>/ directory and an untouched `current`.
package warehouse

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Artifact file names inside a snapshot directory.
const (
	FileIntegrated     = "jobs_integrated.parquet"
	FileFeatures       = "ml_features.parquet"
	FileQualityReport  = "data_quality_report.json"
	FileETLSummary     = "etl_summary.json"
	FileFeatureSummary = "feature_summary.json"
)

const (
	runsDir     = "runs"
	currentLink = "current"
)

// ErrNoSnapshot means nothing has been published yet.
var ErrNoSnapshot = errors.New("warehouse: no published snapshot")

// SnapshotDir returns the directory a run's artifacts live in.
func SnapshotDir(root, runID string) string {
	return filepath.Join(root, runsDir, runID)
}

// CurrentPath returns the symlink readers resolve to find the published
// snapshot.
func CurrentPath(root string) string {
	return filepath.Join(root, currentLink)
}

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %q not found in feature table", e.JobID)
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
