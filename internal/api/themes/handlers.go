// internal/api/themes/handlers.go
package themes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/winstonapp/themestore/internal/api/apiutil"
	"github.com/winstonapp/themestore/internal/blob"
	"github.com/winstonapp/themestore/internal/ingest"
	"github.com/winstonapp/themestore/internal/models"
	"github.com/winstonapp/themestore/internal/store"
)

const (
	themeQueryTimeout = 5 * time.Second
	maxUploadBytes    = 64 << 20
	defaultFetchLimit = 100
	signedURLTTL      = time.Hour
	themeIDParam      = "themeID"
)

// Store is the slice of the metadata store the handlers need.
type Store interface {
	GetThemeByID(ctx context.Context, fileID string) (*models.SavableMetadata, error)
	SearchThemesByName(ctx context.Context, name string) ([]models.SavableMetadata, error)
	ListAcceptedThemes(ctx context.Context, limit, offset int) ([]models.SavableMetadata, error)
	DeleteThemeByID(ctx context.Context, fileID string) (bool, error)
	UpdateThemeFields(ctx context.Context, fileID string, update store.ThemeUpdate) (bool, error)
}

// Blobs is the slice of the object store the handlers need.
type Blobs interface {
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Ingestor runs the ingestion pipeline for an archive already saved in the
// cache folder.
type Ingestor interface {
	Process(ctx context.Context, fileName string) (ingest.Result, error)
}

type Handler struct {
	store    Store
	blobs    Blobs
	ingestor Ingestor
	cacheDir string
}

func NewHandler(st Store, blobs Blobs, ingestor Ingestor, cacheDir string) *Handler {
	return &Handler{
		store:    st,
		blobs:    blobs,
		ingestor: ingestor,
		cacheDir: cacheDir,
	}
}

type uploadResponse struct {
	Message    string `json:"message"`
	Registered bool   `json:"registered"`
	FileID     string `json:"file_id,omitempty"`
}

// POST /themes/upload
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".zip") {
		apiutil.WriteError(w, http.StatusBadRequest, "Only .zip files are allowed")
		return
	}

	storedName, err := h.saveToCache(file)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to save upload to cache")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	result, err := h.ingestor.Process(r.Context(), storedName)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrExtraction):
			apiutil.WriteError(w, http.StatusBadRequest, "Archive could not be extracted")
		case errors.Is(err, ingest.ErrMissingManifest),
			errors.Is(err, ingest.ErrMalformedManifest),
			errors.Is(err, ingest.ErrMissingIdentity):
			apiutil.WriteError(w, http.StatusBadRequest, "Archive manifest is invalid")
		default:
			logger.Error().Err(err).Msg("Ingestion failed")
			apiutil.WriteError(w, http.StatusInternalServerError, "Failed to register theme")
		}
		return
	}

	resp := uploadResponse{Registered: result.Registered}
	if result.Registered {
		resp.Message = "File uploaded successfully"
		resp.FileID = result.Metadata.FileID
	} else {
		// Archive kept, but parsing never yielded a complete palette.
		resp.Message = "File accepted but theme was not registered"
	}
	apiutil.WriteJSON(w, http.StatusOK, resp)
}

// saveToCache writes the upload into the cache folder under a time-based
// unique name, mirroring how archives are keyed elsewhere in the cache.
func (h *Handler) saveToCache(src io.Reader) (string, error) {
	if err := os.MkdirAll(h.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	name := fmt.Sprintf("%d-%s.zip", time.Now().UnixMilli(), uuid.New())
	dst, err := os.Create(filepath.Join(h.cacheDir, name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return name, nil
}

// GET /themes?fetchLimit=&offset=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	limit := int64(defaultFetchLimit)
	offset := int64(0)
	var err error
	if raw := r.URL.Query().Get("fetchLimit"); raw != "" {
		if limit, err = apiutil.ParsePositiveInt64Field(raw, "fetchLimit"); err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err = apiutil.ParseNonNegativeInt64Field(raw, "offset"); err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), themeQueryTimeout)
	defer cancel()

	themes, err := h.store.ListAcceptedThemes(ctx, int(limit), int(offset))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list themes")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to list themes")
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, themes)
}

// GET /themes/{themeID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	theme, ok := h.lookupTheme(w, r)
	if !ok {
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, theme)
}

// GET /themes/name/{name}
func (h *Handler) HandleSearchByName(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	name := r.PathValue("name")
	if name == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), themeQueryTimeout)
	defer cancel()

	themes, err := h.store.SearchThemesByName(ctx, name)
	if err != nil {
		logger.Error().Err(err).Str("name", name).Msg("Failed to search themes")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to search themes")
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, themes)
}

// GET /themes/status/{themeID}
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	theme, ok := h.lookupTheme(w, r)
	if !ok {
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]models.ApprovalState{
		"status": theme.ApprovalState,
	})
}

// DELETE /themes/{themeID}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	id := r.PathValue(themeIDParam)

	ctx, cancel := context.WithTimeout(r.Context(), themeQueryTimeout)
	defer cancel()

	deleted, err := h.store.DeleteThemeByID(ctx, id)
	if err != nil {
		logger.Error().Err(err).Str("file_id", id).Msg("Failed to delete theme")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to delete theme")
		return
	}
	if !deleted {
		apiutil.WriteError(w, http.StatusNotFound, "Theme not found")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type updateRequest struct {
	FileName         *string  `json:"file_name"`
	ThemeName        *string  `json:"theme_name"`
	ThemeAuthor      *string  `json:"theme_author"`
	ThemeDescription *string  `json:"theme_description"`
	MessageID        *string  `json:"message_id"`
	ApprovalState    *string  `json:"approval_state"`
	Color            *string  `json:"color"`
	Alpha            *float64 `json:"alpha"`
	Icon             *string  `json:"icon"`
}

// PUT /themes/{themeID}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	id := r.PathValue(themeIDParam)

	var req updateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	update := store.ThemeUpdate{
		FileName:         req.FileName,
		ThemeName:        req.ThemeName,
		ThemeAuthor:      req.ThemeAuthor,
		ThemeDescription: req.ThemeDescription,
		MessageID:        req.MessageID,
		Color:            req.Color,
		Alpha:            req.Alpha,
		Icon:             req.Icon,
	}
	if req.ApprovalState != nil {
		state, err := models.ParseApprovalState(*req.ApprovalState)
		if err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		update.ApprovalState = &state
	}

	ctx, cancel := context.WithTimeout(r.Context(), themeQueryTimeout)
	defer cancel()

	updated, err := h.store.UpdateThemeFields(ctx, id, update)
	if err != nil {
		logger.Error().Err(err).Str("file_id", id).Msg("Failed to update theme")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to update theme")
		return
	}
	if !updated {
		apiutil.WriteError(w, http.StatusNotFound, "Theme not found")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GET /themes/redirect/{themeID}
//
// Unauthenticated; the presigned URL is the only thing disclosed.
func (h *Handler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	theme, ok := h.lookupTheme(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), themeQueryTimeout)
	defer cancel()

	url, err := h.blobs.SignedURL(ctx, blob.ThemeKey(theme.FileName), signedURLTTL)
	if err != nil {
		logger.Error().Err(err).Str("file_id", theme.FileID).Msg("Failed to presign archive URL")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to build download URL")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// GET /themes/attachment/{themeID}
func (h *Handler) HandleAttachment(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	theme, ok := h.lookupTheme(w, r)
	if !ok {
		return
	}

	stream, err := h.blobs.GetStream(r.Context(), blob.ThemeKey(theme.FileName))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			apiutil.WriteError(w, http.StatusNotFound, "Archive not found")
			return
		}
		logger.Error().Err(err).Str("file_id", theme.FileID).Msg("Failed to stream archive")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to stream archive")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", theme.FileName))
	if _, err := io.Copy(w, stream); err != nil {
		logger.Error().Err(err).Str("file_id", theme.FileID).Msg("Archive stream interrupted")
	}
}

// GET /themes/previews/{themeID}
func (h *Handler) HandlePreviews(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	theme, ok := h.lookupTheme(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), themeQueryTimeout)
	defer cancel()

	previews := []string{}
	for _, variant := range []string{"dark", "light"} {
		url, err := h.blobs.SignedURL(ctx, blob.PreviewKey(variant, 0, theme.FileID), signedURLTTL)
		if err != nil {
			logger.Error().Err(err).
				Str("file_id", theme.FileID).
				Str("variant", variant).
				Msg("Failed to presign preview URL")
			apiutil.WriteError(w, http.StatusInternalServerError, "Failed to build preview URLs")
			return
		}
		previews = append(previews, url)
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string][]string{"previews": previews})
}

// lookupTheme resolves {themeID} to a stored record, writing the error
// response itself when the lookup fails.
func (h *Handler) lookupTheme(w http.ResponseWriter, r *http.Request) (*models.SavableMetadata, bool) {
	logger := log.Ctx(r.Context())
	id := r.PathValue(themeIDParam)
	if id == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "theme id is required")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), themeQueryTimeout)
	defer cancel()

	theme, err := h.store.GetThemeByID(ctx, id)
	if err != nil {
		logger.Error().Err(err).Str("file_id", id).Msg("Failed to load theme")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load theme")
		return nil, false
	}
	if theme == nil {
		apiutil.WriteError(w, http.StatusNotFound, "Theme not found")
		return nil, false
	}
	return theme, true
}
