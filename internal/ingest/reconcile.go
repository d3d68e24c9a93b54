// internal/ingest/reconcile.go
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/winstonapp/themestore/internal/models"
)

// Decision is the outcome of identity reconciliation.
type Decision int

const (
	DecisionNew Decision = iota
	DecisionRevision
)

func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "new"
	case DecisionRevision:
		return "revision"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// ThemeStore is the metadata-store collaborator the pipeline persists
// through. GetThemeByID returns (nil, nil) when no record exists.
type ThemeStore interface {
	GetThemeByID(ctx context.Context, fileID string) (*models.SavableMetadata, error)
	UpsertTheme(ctx context.Context, meta models.SavableMetadata) error
}

// Reconciler decides new-vs-revision by stable identity. For revisions it
// restores the stored file_name and message_id on the incoming metadata and
// renames the freshly uploaded archive on disk, so external references and
// the archive's storage key stay stable across revisions.
type Reconciler struct {
	store    ThemeStore
	cacheDir string
}

func NewReconciler(store ThemeStore, cacheDir string) *Reconciler {
	return &Reconciler{store: store, cacheDir: cacheDir}
}

func (r *Reconciler) Reconcile(ctx context.Context, meta *models.ThemeMetadata) (Decision, error) {
	existing, err := r.store.GetThemeByID(ctx, meta.FileID)
	if err != nil {
		return DecisionNew, fmt.Errorf("%w: lookup %s: %v", ErrPersistence, meta.FileID, err)
	}
	if existing == nil {
		meta.ApprovalState = models.ApprovalPending
		return DecisionNew, nil
	}

	if existing.FileName != meta.FileName {
		oldPath := filepath.Join(r.cacheDir, meta.FileName)
		newPath := filepath.Join(r.cacheDir, existing.FileName)
		if err := os.Rename(oldPath, newPath); err != nil {
			return DecisionRevision, fmt.Errorf("rename archive to stored name: %w", err)
		}
		log.Info().
			Str("file_id", meta.FileID).
			Str("from", meta.FileName).
			Str("to", existing.FileName).
			Msg("Renamed uploaded archive to stored filename")
	}

	meta.FileName = existing.FileName
	meta.MessageID = existing.MessageID
	return DecisionRevision, nil
}
