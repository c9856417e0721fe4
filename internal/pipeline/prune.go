package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/ledger"
	"github.com/quarrylabs/quarry/internal/warehouse"
)

// PruneResult reports what retention kept and removed.
type PruneResult struct {
	Kept    []string `json:"kept"`
	Removed []string `json:"removed"`
}

// Prune removes the oldest published snapshots beyond keep, never the
// snapshot `current` points at. The ledger supplies the publish order
// and records each removal; the warehouse guards the live target.
func Prune(ctx context.Context, led *ledger.Ledger, warehouseDir string, keep int, log *zap.Logger) (*PruneResult, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	if log == nil {
		log = zap.NewNop()
	}

	published, err := led.PublishedRuns(ctx) // oldest first
	if err != nil {
		return nil, err
	}
	res := &PruneResult{Kept: []string{}, Removed: []string{}}
	if len(published) == 0 {
		// Nothing published means no current symlink to resolve either.
		return res, nil
	}
	current, err := warehouse.CurrentRunID(warehouseDir)
	if err != nil {
		return nil, err
	}
	excess := len(published) - keep
	for _, run := range published {
		if len(res.Removed) < excess && run.RunID != current {
			if err := warehouse.RemoveSnapshot(warehouseDir, run.RunID); err != nil {
				return nil, err
			}
			if err := led.MarkPruned(ctx, run.RunID); err != nil {
				return nil, err
			}
			log.Info("snapshot pruned", zap.String("run_id", run.RunID))
			res.Removed = append(res.Removed, run.RunID)
			continue
		}
		res.Kept = append(res.Kept, run.RunID)
	}
	return res, nil
}
