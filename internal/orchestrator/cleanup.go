package orchestrator

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// removeTempImage deletes the decoded upload once the drivers are done.
func (o *Orchestrator) removeTempImage(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.logger.Warn("failed to remove temp image", "path", path, "error", err)
	}
}

func (o *Orchestrator) pruneDebug() {
	if o.cfg.DebugDir == "" || o.cfg.DebugRetention <= 0 {
		return
	}
	removed, err := PruneStale(o.cfg.DebugDir, time.Now().Add(-o.cfg.DebugRetention))
	if err != nil {
		o.logger.Warn("failed to prune debug files", "dir", o.cfg.DebugDir, "error", err)
	}
	if removed > 0 {
		o.logger.Info("pruned stale debug files", "dir", o.cfg.DebugDir, "removed", removed)
	}
}

// PruneStale removes regular files in dir last modified before cutoff and
// returns how many went. A missing dir is not an error; subdirectories are
// left alone.
func PruneStale(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
