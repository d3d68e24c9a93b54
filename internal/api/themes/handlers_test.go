// internal/api/themes/handlers_test.go
package themes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/winstonapp/themestore/internal/blob"
	"github.com/winstonapp/themestore/internal/ingest"
	"github.com/winstonapp/themestore/internal/models"
	"github.com/winstonapp/themestore/internal/store"
)

type fakeStore struct {
	themes  map[string]models.SavableMetadata
	listErr error
}

func newFakeStore(themes ...models.SavableMetadata) *fakeStore {
	s := &fakeStore{themes: map[string]models.SavableMetadata{}}
	for _, theme := range themes {
		s.themes[theme.FileID] = theme
	}
	return s
}

func (s *fakeStore) GetThemeByID(_ context.Context, fileID string) (*models.SavableMetadata, error) {
	if theme, ok := s.themes[fileID]; ok {
		return &theme, nil
	}
	return nil, nil
}

func (s *fakeStore) SearchThemesByName(_ context.Context, name string) ([]models.SavableMetadata, error) {
	var out []models.SavableMetadata
	for _, theme := range s.themes {
		if strings.Contains(theme.ThemeName, name) {
			out = append(out, theme)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAcceptedThemes(_ context.Context, limit, offset int) ([]models.SavableMetadata, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.SavableMetadata
	for _, theme := range s.themes {
		if theme.ApprovalState == models.ApprovalAccepted {
			out = append(out, theme)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteThemeByID(_ context.Context, fileID string) (bool, error) {
	if _, ok := s.themes[fileID]; !ok {
		return false, nil
	}
	delete(s.themes, fileID)
	return true, nil
}

func (s *fakeStore) UpdateThemeFields(_ context.Context, fileID string, update store.ThemeUpdate) (bool, error) {
	theme, ok := s.themes[fileID]
	if !ok {
		return false, nil
	}
	if update.ThemeName != nil {
		theme.ThemeName = *update.ThemeName
	}
	if update.ApprovalState != nil {
		theme.ApprovalState = *update.ApprovalState
	}
	s.themes[fileID] = theme
	return true, nil
}

type fakeBlobs struct {
	objects   map[string]string
	streamErr error
}

func (b *fakeBlobs) GetStream(_ context.Context, key string) (io.ReadCloser, error) {
	if b.streamErr != nil {
		return nil, b.streamErr
	}
	body, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (b *fakeBlobs) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

type fakeIngestor struct {
	result  ingest.Result
	err     error
	gotFile string
}

func (i *fakeIngestor) Process(_ context.Context, fileName string) (ingest.Result, error) {
	i.gotFile = fileName
	return i.result, i.err
}

func sampleSavable(id, name string, state models.ApprovalState) models.SavableMetadata {
	return models.SavableMetadata{
		FileID:        id,
		FileName:      id + ".zip",
		ThemeName:     name,
		ApprovalState: state,
	}
}

func newTestHandler(t *testing.T, st Store, blobs Blobs, ing Ingestor) *Handler {
	t.Helper()
	return NewHandler(st, blobs, ing, t.TempDir())
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, writer.FormDataContentType()
}

func TestHandleUploadRegistered(t *testing.T) {
	ing := &fakeIngestor{
		result: ingest.Result{
			State:      ingest.StatePersisted,
			Registered: true,
			Metadata:   &models.ThemeMetadata{FileID: "T1"},
		},
	}
	h := newTestHandler(t, newFakeStore(), &fakeBlobs{}, ing)

	body, contentType := multipartUpload(t, "file", "alpha.zip", []byte("zipdata"))
	r := httptest.NewRequest(http.MethodPost, "/themes/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.HandleUpload(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body)
	}
	var resp uploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Registered || resp.FileID != "T1" {
		t.Errorf("response = %+v, want registered T1", resp)
	}

	// The upload must land in the cache under the generated name.
	if ing.gotFile == "" {
		t.Fatal("pipeline was not invoked")
	}
	saved, err := os.ReadFile(filepath.Join(h.cacheDir, ing.gotFile))
	if err != nil {
		t.Fatalf("stored archive missing: %v", err)
	}
	if string(saved) != "zipdata" {
		t.Errorf("stored archive content = %q", saved)
	}
	if !strings.HasSuffix(ing.gotFile, ".zip") {
		t.Errorf("stored name %q should keep the .zip extension", ing.gotFile)
	}
}

func TestHandleUploadUnregistered(t *testing.T) {
	ing := &fakeIngestor{
		result: ingest.Result{State: ingest.StateManifestInvalid, Registered: false},
	}
	h := newTestHandler(t, newFakeStore(), &fakeBlobs{}, ing)

	body, contentType := multipartUpload(t, "file", "alpha.zip", []byte("zipdata"))
	r := httptest.NewRequest(http.MethodPost, "/themes/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.HandleUpload(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp uploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Registered {
		t.Error("response should report the theme as unregistered")
	}
}

func TestHandleUploadRejectsNonZip(t *testing.T) {
	h := newTestHandler(t, newFakeStore(), &fakeBlobs{}, &fakeIngestor{})

	body, contentType := multipartUpload(t, "file", "alpha.tar.gz", []byte("data"))
	r := httptest.NewRequest(http.MethodPost, "/themes/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.HandleUpload(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleUploadMissingFile(t *testing.T) {
	h := newTestHandler(t, newFakeStore(), &fakeBlobs{}, &fakeIngestor{})

	body, contentType := multipartUpload(t, "wrong_field", "alpha.zip", []byte("data"))
	r := httptest.NewRequest(http.MethodPost, "/themes/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.HandleUpload(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleUploadStructuralFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"extraction", fmt.Errorf("boom: %w", ingest.ErrExtraction), http.StatusBadRequest},
		{"missing manifest", ingest.ErrMissingManifest, http.StatusBadRequest},
		{"malformed manifest", ingest.ErrMalformedManifest, http.StatusBadRequest},
		{"missing identity", ingest.ErrMissingIdentity, http.StatusBadRequest},
		{"persistence", fmt.Errorf("save: %w", ingest.ErrPersistence), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, newFakeStore(), &fakeBlobs{}, &fakeIngestor{err: tt.err})

			body, contentType := multipartUpload(t, "file", "alpha.zip", []byte("data"))
			r := httptest.NewRequest(http.MethodPost, "/themes/upload", body)
			r.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			h.HandleUpload(w, r)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleListAcceptedOnly(t *testing.T) {
	st := newFakeStore(
		sampleSavable("T1", "Alpha", models.ApprovalAccepted),
		sampleSavable("T2", "Beta", models.ApprovalPending),
	)
	h := newTestHandler(t, st, &fakeBlobs{}, &fakeIngestor{})

	r := httptest.NewRequest(http.MethodGet, "/themes", nil)
	w := httptest.NewRecorder()
	h.HandleList(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var themes []models.SavableMetadata
	if err := json.Unmarshal(w.Body.Bytes(), &themes); err != nil {
		t.Fatal(err)
	}
	if len(themes) != 1 || themes[0].FileID != "T1" {
		t.Errorf("themes = %+v, want only accepted T1", themes)
	}
}

func TestHandleListBadQueryParams(t *testing.T) {
	h := newTestHandler(t, newFakeStore(), &fakeBlobs{}, &fakeIngestor{})

	for _, target := range []string{"/themes?fetchLimit=zero", "/themes?offset=-1"} {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		h.HandleList(w, r)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
	}
}

func pathValueRequest(method, target, param, value string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.SetPathValue(param, value)
	return r
}

func TestHandleGet(t *testing.T) {
	st := newFakeStore(sampleSavable("T1", "Alpha", models.ApprovalAccepted))
	h := newTestHandler(t, st, &fakeBlobs{}, &fakeIngestor{})

	w := httptest.NewRecorder()
	h.HandleGet(w, pathValueRequest(http.MethodGet, "/themes/T1", themeIDParam, "T1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	h.HandleGet(w, pathValueRequest(http.MethodGet, "/themes/T9", themeIDParam, "T9"))
	if w.Code != http.StatusNotFound {
		t.Errorf("absent theme: status = %d, want 404", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	st := newFakeStore(sampleSavable("T1", "Alpha", models.ApprovalPending))
	h := newTestHandler(t, st, &fakeBlobs{}, &fakeIngestor{})

	w := httptest.NewRecorder()
	h.HandleStatus(w, pathValueRequest(http.MethodGet, "/themes/status/T1", themeIDParam, "T1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != string(models.ApprovalPending) {
		t.Errorf("status = %q, want %q", resp["status"], models.ApprovalPending)
	}
}

func TestHandleDelete(t *testing.T) {
	st := newFakeStore(sampleSavable("T1", "Alpha", models.ApprovalAccepted))
	h := newTestHandler(t, st, &fakeBlobs{}, &fakeIngestor{})

	w := httptest.NewRecorder()
	h.HandleDelete(w, pathValueRequest(http.MethodDelete, "/themes/T1", themeIDParam, "T1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	h.HandleDelete(w, pathValueRequest(http.MethodDelete, "/themes/T1", themeIDParam, "T1"))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

func TestHandleUpdate(t *testing.T) {
	st := newFakeStore(sampleSavable("T1", "Alpha", models.ApprovalPending))
	h := newTestHandler(t, st, &fakeBlobs{}, &fakeIngestor{})

	body := strings.NewReader(`{"theme_name": "Beta", "approval_state": "accepted"}`)
	r := httptest.NewRequest(http.MethodPut, "/themes/T1", body)
	r.SetPathValue(themeIDParam, "T1")
	w := httptest.NewRecorder()

	h.HandleUpdate(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body)
	}
	if got := st.themes["T1"]; got.ThemeName != "Beta" || got.ApprovalState != models.ApprovalAccepted {
		t.Errorf("stored theme = %+v", got)
	}
}

func TestHandleUpdateInvalidState(t *testing.T) {
	st := newFakeStore(sampleSavable("T1", "Alpha", models.ApprovalPending))
	h := newTestHandler(t, st, &fakeBlobs{}, &fakeIngestor{})

	body := strings.NewReader(`{"approval_state": "maybe"}`)
	r := httptest.NewRequest(http.MethodPut, "/themes/T1", body)
	r.SetPathValue(themeIDParam, "T1")
	w := httptest.NewRecorder()

	h.HandleUpdate(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRedirect(t *testing.T) {
	st := newFakeStore(sampleSavable("T1", "Alpha", models.ApprovalAccepted))
	h := newTestHandler(t, st, &fakeBlobs{}, &fakeIngestor{})

	w := httptest.NewRecorder()
	h.HandleRedirect(w, pathValueRequest(http.MethodGet, "/themes/redirect/T1", themeIDParam, "T1"))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "https://signed.example/themes/T1.zip" {
		t.Errorf("Location = %q", got)
	}
}

func TestHandlePreviewsOrder(t *testing.T) {
	st := newFakeStore(sampleSavable("T1", "Alpha", models.ApprovalAccepted))
	h := newTestHandler(t, st, &fakeBlobs{}, &fakeIngestor{})

	w := httptest.NewRecorder()
	h.HandlePreviews(w, pathValueRequest(http.MethodGet, "/themes/previews/T1", themeIDParam, "T1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"https://signed.example/images/dark/0-dark-T1.png",
		"https://signed.example/images/light/0-light-T1.png",
	}
	if len(resp["previews"]) != 2 || resp["previews"][0] != want[0] || resp["previews"][1] != want[1] {
		t.Errorf("previews = %v, want %v", resp["previews"], want)
	}
}

func TestHandleAttachment(t *testing.T) {
	st := newFakeStore(sampleSavable("T1", "Alpha", models.ApprovalAccepted))
	blobs := &fakeBlobs{objects: map[string]string{"themes/T1.zip": "archive-bytes"}}
	h := newTestHandler(t, st, blobs, &fakeIngestor{})

	w := httptest.NewRecorder()
	h.HandleAttachment(w, pathValueRequest(http.MethodGet, "/themes/attachment/T1", themeIDParam, "T1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "archive-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/zip" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestHandleAttachmentMissingObject(t *testing.T) {
	st := newFakeStore(sampleSavable("T1", "Alpha", models.ApprovalAccepted))
	h := newTestHandler(t, st, &fakeBlobs{objects: map[string]string{}}, &fakeIngestor{})

	w := httptest.NewRecorder()
	h.HandleAttachment(w, pathValueRequest(http.MethodGet, "/themes/attachment/T1", themeIDParam, "T1"))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleListStoreFailure(t *testing.T) {
	st := newFakeStore()
	st.listErr = errors.New("db closed")
	h := newTestHandler(t, st, &fakeBlobs{}, &fakeIngestor{})

	r := httptest.NewRequest(http.MethodGet, "/themes", nil)
	w := httptest.NewRecorder()
	h.HandleList(w, r)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
