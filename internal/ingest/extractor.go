// internal/ingest/extractor.go
package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Extractor unpacks uploaded archives into per-upload scratch directories
// under the cache folder. Archives are attacker-controlled, so extraction is
// bounded in both time and total extracted bytes.
type Extractor struct {
	cacheDir string
	maxBytes int64
	timeout  time.Duration
}

func NewExtractor(cacheDir string, maxBytes int64, timeout time.Duration) *Extractor {
	return &Extractor{
		cacheDir: cacheDir,
		maxBytes: maxBytes,
		timeout:  timeout,
	}
}

// Extract unpacks the archive at archivePath into a fresh scratch directory
// and returns the directory path with a cleanup func that removes it. The
// cleanup func is always safe to call, including after an error. The scratch
// directory name carries a random suffix so concurrent uploads of archives
// sharing a base name cannot collide.
func (e *Extractor) Extract(ctx context.Context, archivePath string) (string, func(), error) {
	base := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	dest := filepath.Join(e.cacheDir, base+"-"+uuid.NewString())

	cleanup := func() {
		if err := os.RemoveAll(dest); err != nil {
			log.Error().Err(err).Str("dir", dest).Msg("Failed to remove scratch directory")
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := e.extract(ctx, archivePath, dest); err != nil {
		return dest, cleanup, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return dest, cleanup, nil
}

func (e *Extractor) extract(ctx context.Context, archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}

	remaining := e.maxBytes
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction aborted: %w", err)
		}

		target, err := scratchPath(dest, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", entry.Name, err)
			}
			continue
		}

		if e.maxBytes > 0 && remaining <= 0 {
			return fmt.Errorf("archive exceeds extraction budget of %d bytes", e.maxBytes)
		}
		written, err := extractFile(entry, target, remaining)
		if err != nil {
			return err
		}
		if e.maxBytes > 0 {
			remaining -= written
			if remaining < 0 {
				return fmt.Errorf("archive exceeds extraction budget of %d bytes", e.maxBytes)
			}
		}
	}
	return nil
}

// scratchPath resolves an archive entry name inside dest, rejecting absolute
// paths and traversal outside the scratch directory.
func scratchPath(dest, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive entry %q has absolute path", name)
	}
	target := filepath.Join(dest, filepath.Clean(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes scratch directory", name)
	}
	return target, nil
}

func extractFile(entry *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create parent directory for %s: %w", entry.Name, err)
	}

	src, err := entry.Open()
	if err != nil {
		return 0, fmt.Errorf("open archive entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", entry.Name, err)
	}
	defer dst.Close()

	// Copy one byte past the budget so overruns are detected rather than
	// silently truncated.
	limit := int64(1<<62 - 1)
	if budget > 0 {
		limit = budget + 1
	}
	written, err := io.Copy(dst, io.LimitReader(src, limit))
	if err != nil {
		return written, fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return written, nil
}
