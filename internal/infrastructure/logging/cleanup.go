package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
)

// DefaultCleanupPattern matches session files directly under the log directory.
const DefaultCleanupPattern = "*.log"

// Cleanup removes files under dir matching pattern whose modification time
// is more than retentionDays before now. It returns the removed paths in
// sorted order. A non-positive retention disables cleanup.
func Cleanup(dir, pattern string, retentionDays int, now time.Time) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	if pattern == "" {
		pattern = DefaultCleanupPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid cleanup pattern %q", pattern)
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	var (
		mu      sync.Mutex
		removed []string
		errs    []error
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		err = os.Remove(p)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		removed = append(removed, p)
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("walk log directory: %w", err)
	}

	sort.Strings(removed)
	if len(errs) > 0 {
		return removed, fmt.Errorf("remove expired logs: %w", errors.Join(errs...))
	}
	return removed, nil
}

// CleanupExpired runs Cleanup for the logger's directory and logs the outcome.
func CleanupExpired(logger *zap.Logger, cfg Config) {
	if !cfg.WriteToFile || cfg.Dir == "" {
		return
	}
	removed, err := Cleanup(cfg.Dir, DefaultCleanupPattern, cfg.RetentionDays, time.Now())
	if err != nil {
		logger.Warn("Failed to clean expired logs", zap.String("dir", cfg.Dir), zap.Error(err))
	}
	if len(removed) > 0 {
		logger.Info("Removed expired logs", zap.Int("count", len(removed)), zap.Int("retention_days", cfg.RetentionDays))
	}
}
