// internal/ingest/pipeline.go
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/winstonapp/themestore/internal/models"
)

// State tracks an ingestion attempt through the pipeline.
type State int

const (
	StateReceived State = iota
	StateExtracting
	StateParsingManifest
	StateReconciling
	StatePersisted
	StateExtractionFailed
	StateManifestInvalid
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateExtracting:
		return "extracting"
	case StateParsingManifest:
		return "parsing_manifest"
	case StateReconciling:
		return "reconciling"
	case StatePersisted:
		return "persisted"
	case StateExtractionFailed:
		return "extraction_failed"
	case StateManifestInvalid:
		return "manifest_invalid"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result reports how an ingestion attempt ended. Registered distinguishes
// "archive accepted and recorded" from "archive accepted but never became a
// queryable theme" (palette derivation failed).
type Result struct {
	State      State
	Registered bool
	Decision   Decision
	Metadata   *models.ThemeMetadata
}

// BlobStager stages locally produced artifacts to durable storage.
type BlobStager interface {
	StageTheme(ctx context.Context, path string) error
	StagePreviews(ctx context.Context, lightPaths, darkPaths []string) error
}

// PreviewRenderer produces raster previews for both variants. Returned paths
// are owned by the caller, which stages and then deletes them.
type PreviewRenderer interface {
	Render(ctx context.Context, meta models.ThemeMetadata) (lightPaths, darkPaths []string, err error)
}

const previewRenderTimeout = 2 * time.Minute

// Pipeline sequences extraction, manifest parsing, reconciliation and
// persistence for one upload, then kicks off eager preview rendering.
// Reconciliation and rendering for one identity are serialized through a
// per-key lock; unrelated uploads proceed independently.
type Pipeline struct {
	extractor  *Extractor
	reconciler *Reconciler
	store      ThemeStore
	blobs      BlobStager
	previews   PreviewRenderer
	cacheDir   string
	locks      keyedMutex
	renders    sync.WaitGroup
}

func NewPipeline(extractor *Extractor, store ThemeStore, blobs BlobStager, previews PreviewRenderer, cacheDir string) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		reconciler: NewReconciler(store, cacheDir),
		store:      store,
		blobs:      blobs,
		previews:   previews,
		cacheDir:   cacheDir,
	}
}

// Close waits for in-flight background preview renders to finish.
func (p *Pipeline) Close() {
	p.renders.Wait()
}

// Process ingests the uploaded archive stored at cacheDir/fileName. The
// scratch directory is removed on every exit path. Structural failures return
// an error and never persist anything; an incomplete palette returns a nil
// error with Registered=false.
func (p *Pipeline) Process(ctx context.Context, fileName string) (Result, error) {
	logger := log.Ctx(ctx).With().Str("file_name", fileName).Logger()
	result := Result{State: StateReceived}

	result.State = StateExtracting
	archivePath := filepath.Join(p.cacheDir, fileName)
	scratchDir, cleanup, err := p.extractor.Extract(ctx, archivePath)
	defer cleanup()
	if err != nil {
		result.State = StateExtractionFailed
		logger.Error().Err(err).Msg("Archive extraction failed")
		return result, err
	}

	result.State = StateParsingManifest
	meta, err := ParseManifest(scratchDir, fileName)
	if err != nil {
		if errors.Is(err, ErrPaletteIncomplete) {
			// The archive stays accepted; it just never becomes a record.
			result.State = StateManifestInvalid
			logger.Warn().Err(err).Msg("Theme metadata incomplete, archive accepted without registration")
			return result, nil
		}
		result.State = StateManifestInvalid
		logger.Error().Err(err).Msg("Manifest rejected")
		return result, err
	}
	result.Metadata = meta

	unlock := p.locks.lock(meta.FileID)
	defer unlock()

	result.State = StateReconciling
	decision, err := p.reconciler.Reconcile(ctx, meta)
	if err != nil {
		logger.Error().Err(err).Str("file_id", meta.FileID).Msg("Reconciliation failed")
		return result, err
	}
	result.Decision = decision

	if err := p.store.UpsertTheme(ctx, meta.Savable()); err != nil {
		logger.Error().Err(err).Str("file_id", meta.FileID).Msg("Failed to persist theme")
		return result, fmt.Errorf("%w: upsert %s: %v", ErrPersistence, meta.FileID, err)
	}
	result.State = StatePersisted
	result.Registered = true
	logger.Info().
		Str("file_id", meta.FileID).
		Str("theme_name", meta.ThemeName).
		Stringer("decision", decision).
		Msg("Theme persisted")

	// Staging is not transactional with persistence; a failure here leaves a
	// record whose archive is re-staged on the next upload.
	if p.blobs != nil {
		if err := p.blobs.StageTheme(ctx, filepath.Join(p.cacheDir, meta.FileName)); err != nil {
			logger.Error().Err(err).Str("file_id", meta.FileID).Msg("Failed to stage archive")
		}
	}

	p.startPreviewRender(*meta)
	return result, nil
}

// startPreviewRender renders previews eagerly in the background so the cache
// is warm before the first fetch. Upload acknowledgment does not wait on it,
// and the per-identity lock prevents duplicate concurrent renders.
func (p *Pipeline) startPreviewRender(meta models.ThemeMetadata) {
	if p.previews == nil || p.blobs == nil {
		return
	}
	p.renders.Add(1)
	go func() {
		defer p.renders.Done()

		unlock := p.locks.lock(meta.FileID)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), previewRenderTimeout)
		defer cancel()

		lightPaths, darkPaths, err := p.previews.Render(ctx, meta)
		if err != nil {
			// Previews are supplementary; the record exists regardless.
			log.Error().Err(err).Str("file_id", meta.FileID).Msg("Preview rendering incomplete")
		}
		if len(lightPaths) == 0 && len(darkPaths) == 0 {
			return
		}
		if err := p.blobs.StagePreviews(ctx, lightPaths, darkPaths); err != nil {
			log.Error().Err(err).Str("file_id", meta.FileID).Msg("Failed to stage previews")
		}
		removeAll(append(lightPaths, darkPaths...))
	}()
}

func removeAll(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to remove staged preview")
		}
	}
}

// keyedMutex serializes work per identity. The zero value is ready to use.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	entry := k.locks[key]
	if entry == nil {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
