// internal/preview/render_test.go
package preview

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/winstonapp/themestore/internal/models"
)

func testMetadata() models.ThemeMetadata {
	light := models.ThemePreview{
		Background:              "#111111",
		AccentColor:             "#222222",
		TabBarBackground:        "#333333",
		SubredditPillBackground: "#444444",
		Divider:                 "#555555",
		TabBarInactiveColor:     "#666666",
		TabBarInactiveTextColor: "#777777",
		PostBackground:          "#888888",
		PostTitleText:           "#999999",
		PostBodyText:            "#aaaaaa",
	}
	dark := models.ThemePreview{
		Background:              "#1b1b1b",
		AccentColor:             "#2b2b2b",
		TabBarBackground:        "#3b3b3b",
		SubredditPillBackground: "#4b4b4b",
		Divider:                 "#5b5b5b",
		TabBarInactiveColor:     "#6b6b6b",
		TabBarInactiveTextColor: "#7b7b7b",
		PostBackground:          "#8b8b8b",
		PostTitleText:           "#9b9b9b",
		PostBodyText:            "#abcdef",
	}
	return models.ThemeMetadata{
		FileID:        "T1",
		FileName:      "t1.zip",
		ThemeName:     "Test",
		ApprovalState: models.ApprovalPending,
		Light:         light,
		Dark:          dark,
	}
}

func TestSubstituteReplacesEveryOccurrence(t *testing.T) {
	meta := testMetadata()
	colors := sentinelColors(meta)

	template := `<rect fill="#F2F2F7"/><rect fill="#F2F2F7"/><circle fill="#007AFF"/><rect fill="#000003"/>`

	light := substitute(template, colors, VariantLight)
	if got := strings.Count(light, "#F2F2F7"); got != 0 {
		t.Errorf("light output still contains token %d times", got)
	}
	if got := strings.Count(light, meta.Light.Background); got != 2 {
		t.Errorf("light background substituted %d times, want 2", got)
	}
	if got := strings.Count(light, "#000000"); got != 1 {
		t.Errorf("light contrast color substituted %d times, want 1", got)
	}

	dark := substitute(template, colors, VariantDark)
	if got := strings.Count(dark, meta.Dark.Background); got != 2 {
		t.Errorf("dark background substituted %d times, want 2", got)
	}
	if got := strings.Count(dark, "#FFFFFF"); got != 1 {
		t.Errorf("dark contrast color substituted %d times, want 1", got)
	}
}

func TestSubstituteOrderIsDeterministic(t *testing.T) {
	// A palette value that collides with a later token must cascade the same
	// way on every run.
	meta := testMetadata()
	meta.Light.Background = "#007AFF"
	colors := sentinelColors(meta)

	template := `<rect fill="#F2F2F7"/><circle fill="#007AFF"/>`
	want := `<rect fill="#222222"/><circle fill="#222222"/>`
	for i := 0; i < 20; i++ {
		if got := substitute(template, colors, VariantLight); got != want {
			t.Fatalf("run %d: substitute = %q, want %q", i, got, want)
		}
	}
}

func TestSubstituteClearsAllTemplateTokens(t *testing.T) {
	meta := testMetadata()
	colors := sentinelColors(meta)

	names, err := templateNames()
	if err != nil {
		t.Fatalf("templateNames: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("no templates bundled")
	}
	for _, name := range names {
		data, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		template := string(data)
		for _, v := range []Variant{VariantLight, VariantDark} {
			out := substitute(template, colors, v)
			for _, s := range colors {
				if before, after := strings.Count(template, s.token), strings.Count(out, s.token); after != 0 {
					t.Errorf("%s %s: token %s appears %d times after substitution (was %d)", name, v, s.token, after, before)
				}
			}
		}
	}
}

func TestRenderProducesVariantFiles(t *testing.T) {
	scratch := t.TempDir()
	r := NewRenderer(scratch)

	lightPaths, darkPaths, err := r.Render(context.Background(), testMetadata())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	names, _ := templateNames()
	if len(lightPaths) != len(names) || len(darkPaths) != len(names) {
		t.Fatalf("got %d light and %d dark paths, want %d each", len(lightPaths), len(darkPaths), len(names))
	}

	if base := filepath.Base(lightPaths[0]); base != "0-light-T1.png" {
		t.Errorf("light path basename = %q, want %q", base, "0-light-T1.png")
	}
	if base := filepath.Base(darkPaths[0]); base != "0-dark-T1.png" {
		t.Errorf("dark path basename = %q, want %q", base, "0-dark-T1.png")
	}

	for _, path := range append(append([]string{}, lightPaths...), darkPaths...) {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("stat %s: %v", path, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", path)
		}
	}

	// Intermediate vector files must not survive the render.
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".svg") {
			t.Errorf("leftover intermediate file %s", entry.Name())
		}
	}
}

func TestRenderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRenderer(t.TempDir())
	lightPaths, darkPaths, err := r.Render(ctx, testMetadata())
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if len(lightPaths) != 0 || len(darkPaths) != 0 {
		t.Errorf("got %d light and %d dark paths, want none", len(lightPaths), len(darkPaths))
	}
}
