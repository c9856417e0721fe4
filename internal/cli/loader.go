package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quarrylabs/quarry/internal/config"
)

// Commands resolve their settings in three layers: built-in defaults,
// the --config file, then whichever of their own flags were set. The
// helpers here cover the parts every command shares.

// applyWarehouseDir points cfg at an overridden warehouse directory. The
// run ledger rides along: it lives inside the warehouse unless a config
// file places it elsewhere, so a directory override moves it too.
func applyWarehouseDir(cfg *config.Config, dir string) {
	cfg.WarehouseDir = dir
	cfg.LedgerPath = filepath.Join(dir, "runs.db")
}

// newLogger builds the zap logger commands hand to the pipeline:
// production JSON to stderr at the configured level, raised to debug by
// --verbose. Stdout stays reserved for command output.
func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	level := cfg.ZapLevel()
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// contextOf returns the command's context, guarding against commands
// invoked outside Execute (direct calls in tests).
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
