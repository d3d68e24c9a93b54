package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// RegisterCacheSweep registers a periodic job that removes stale files from
// the upload cache. Archives are re-staged to durable storage on ingest, so
// anything older than maxAge is safe to drop.
func RegisterCacheSweep(svc *Service, cacheDir string, maxAge time.Duration, cronExpr string) error {
	if cacheDir == "" {
		return fmt.Errorf("cache sweep requires a cache directory")
	}

	jobName := "cache_sweep"
	jobLogger := log.With().
		Str("component", "cache_sweep_job").
		Str("job_name", jobName).
		Str("cron", cronExpr).
		Logger()

	_, err := svc.AddJob(jobName, cronExpr, func() {
		cutoff := time.Now().Add(-maxAge)
		removed, err := sweepDir(cacheDir, cutoff)
		if err != nil {
			jobLogger.Error().Err(err).Msg("Cache sweep failed")
			return
		}
		if removed > 0 {
			jobLogger.Info().Int("removed", removed).Msg("Cache sweep removed stale files")
		}
	})
	return err
}

// sweepDir deletes regular files under dir whose modification time is before
// cutoff. Subdirectories are extraction scratch space owned by in-flight
// ingests and are left alone.
func sweepDir(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove stale cache file")
			continue
		}
		removed++
	}
	return removed, nil
}
