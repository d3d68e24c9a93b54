// internal/preview/render.go
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/winstonapp/themestore/internal/models"
)

// Variant names a palette side; they double as path and key segments.
type Variant string

const (
	VariantLight Variant = "light"
	VariantDark  Variant = "dark"
)

// RasterizationError reports a single template variant that failed to
// rasterize. The rest of the render proceeds.
type RasterizationError struct {
	Path string
	Err  error
}

func (e *RasterizationError) Error() string {
	return fmt.Sprintf("rasterize %s: %v", e.Path, e.Err)
}

func (e *RasterizationError) Unwrap() error { return e.Err }

type replacement struct {
	light string
	dark  string
}

func (r replacement) variant(v Variant) string {
	if v == VariantDark {
		return r.dark
	}
	return r.light
}

type sentinel struct {
	token string
	repl  replacement
}

// sentinelColors pairs each placeholder color baked into the templates with
// its resolved palette slot. The slice order is the substitution order; a
// palette value that happens to equal a later token would otherwise make the
// output depend on iteration order.
func sentinelColors(meta models.ThemeMetadata) []sentinel {
	return []sentinel{
		{"#F2F2F7", replacement{meta.Light.Background, meta.Dark.Background}},
		{"#007AFF", replacement{meta.Light.AccentColor, meta.Dark.AccentColor}},
		{"#CCE4FF", replacement{meta.Light.SubredditPillBackground, meta.Dark.SubredditPillBackground}},
		{"#F2F2F2", replacement{meta.Light.Divider, meta.Dark.Divider}},
		{"#A1A1A1", replacement{meta.Light.TabBarInactiveColor, meta.Dark.TabBarInactiveColor}},
		{"#ADAEAE", replacement{meta.Light.TabBarInactiveTextColor, meta.Dark.TabBarInactiveTextColor}},
		{"#FFFFFE", replacement{meta.Light.PostBackground, meta.Dark.PostBackground}},
		{"#F7F7F8", replacement{meta.Light.TabBarBackground, meta.Dark.TabBarBackground}},
		{"#000001", replacement{meta.Light.PostTitleText, meta.Dark.PostTitleText}},
		{"#000002", replacement{meta.Light.PostBodyText, meta.Dark.PostBodyText}},
		{"#000003", replacement{"#000000", "#FFFFFF"}},
	}
}

func substitute(template string, colors []sentinel, v Variant) string {
	for _, s := range colors {
		template = strings.ReplaceAll(template, s.token, s.repl.variant(v))
	}
	return template
}

// Renderer colorizes the bundled templates for a theme and rasterizes them
// to PNG files under scratchDir.
type Renderer struct {
	scratchDir string
}

func NewRenderer(scratchDir string) *Renderer {
	return &Renderer{scratchDir: scratchDir}
}

// Render produces one PNG per template per variant, named
// {index}-{variant}-{fileID}.png so concurrent renders of different themes
// never collide. Callers own the returned files. A template that fails to
// rasterize is reported in the joined error and skipped; the others still
// render. Intermediate SVG files are removed whether or not rasterization
// succeeds.
func (r *Renderer) Render(ctx context.Context, meta models.ThemeMetadata) (lightPaths, darkPaths []string, err error) {
	names, err := templateNames()
	if err != nil {
		return nil, nil, fmt.Errorf("list templates: %w", err)
	}
	if err := os.MkdirAll(r.scratchDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create scratch dir: %w", err)
	}

	colors := sentinelColors(meta)
	var errs []error
	for idx, name := range names {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		data, readErr := templateFS.ReadFile("templates/" + name)
		if readErr != nil {
			errs = append(errs, fmt.Errorf("read template %s: %w", name, readErr))
			continue
		}
		template := string(data)

		for _, v := range []Variant{VariantLight, VariantDark} {
			pngPath, renderErr := r.renderVariant(idx, v, meta.FileID, substitute(template, colors, v))
			if renderErr != nil {
				log.Error().Err(renderErr).
					Str("template", name).
					Str("variant", string(v)).
					Str("file_id", meta.FileID).
					Msg("Failed to rasterize preview")
				errs = append(errs, renderErr)
				continue
			}
			if v == VariantDark {
				darkPaths = append(darkPaths, pngPath)
			} else {
				lightPaths = append(lightPaths, pngPath)
			}
		}
	}
	return lightPaths, darkPaths, errors.Join(errs...)
}

func (r *Renderer) renderVariant(idx int, v Variant, fileID, svgData string) (string, error) {
	base := fmt.Sprintf("%d-%s-%s", idx, v, fileID)
	svgPath := filepath.Join(r.scratchDir, base+".svg")
	pngPath := filepath.Join(r.scratchDir, base+".png")

	if err := os.WriteFile(svgPath, []byte(svgData), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", svgPath, err)
	}
	defer os.Remove(svgPath)

	if err := rasterize(svgPath, pngPath); err != nil {
		os.Remove(pngPath)
		return "", &RasterizationError{Path: svgPath, Err: err}
	}
	return pngPath, nil
}

func rasterize(svgPath, pngPath string) error {
	data, err := os.ReadFile(svgPath)
	if err != nil {
		return err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return err
	}
	w := int(icon.ViewBox.W)
	h := int(icon.ViewBox.H)
	if w <= 0 || h <= 0 {
		return fmt.Errorf("template has no usable viewBox")
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)

	out, err := os.Create(pngPath)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
