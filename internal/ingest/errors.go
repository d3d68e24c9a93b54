// internal/ingest/errors.go
package ingest

import "errors"

// Failure taxonomy for the ingestion pipeline. Structural failures
// (extraction, manifest) abort the attempt before anything is persisted.
// Palette failures are swallowed into "no metadata" by the caller: the
// archive is accepted but never becomes a queryable record.
var (
	ErrExtraction        = errors.New("archive extraction failed")
	ErrMissingManifest   = errors.New("theme manifest not found")
	ErrMalformedManifest = errors.New("theme manifest is malformed")
	ErrMissingIdentity   = errors.New("theme manifest declares no id")
	ErrPaletteIncomplete = errors.New("derived theme metadata is incomplete")
	ErrPersistence       = errors.New("theme store operation failed")
)
