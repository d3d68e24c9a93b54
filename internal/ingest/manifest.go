// internal/ingest/manifest.go
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/winstonapp/themestore/internal/models"
)

// ManifestFileName is the descriptor every theme archive must carry at its
// extraction root.
const ManifestFileName = "theme.json"

// Slots with no manifest source keep the stock client values.
const (
	defaultPillBackground     = "#CCE4FF"
	defaultTabBarInactive     = "#A1A1A1"
	defaultTabBarInactiveText = "#ADAEAE"
)

var pureWhite = colorful.Color{R: 1, G: 1, B: 1}

type hexValue struct {
	Hex string `json:"hex"`
}

type variantHex struct {
	Light hexValue `json:"light"`
	Dark  hexValue `json:"dark"`
}

type manifestMetadata struct {
	Name        string               `json:"name"`
	Author      string               `json:"author"`
	Description string               `json:"description"`
	Color       models.MetadataColor `json:"color"`
	Icon        string               `json:"icon"`
}

type manifest struct {
	ID       string            `json:"id"`
	Metadata *manifestMetadata `json:"metadata"`
	General  struct {
		AccentColor variantHex `json:"accentColor"`
		TabBarBG    struct {
			Blurry bool       `json:"blurry"`
			Color  variantHex `json:"color"`
		} `json:"tabBarBG"`
	} `json:"general"`
	Posts struct {
		BG struct {
			Color struct {
				Base variantHex `json:"_0"`
			} `json:"color"`
		} `json:"bg"`
	} `json:"posts"`
	Lists struct {
		DividerColors variantHex `json:"dividersColors"`
	} `json:"lists"`
	PostLinks struct {
		Theme struct {
			TitleText struct {
				Color variantHex `json:"color"`
			} `json:"titleText"`
			BodyText struct {
				Color variantHex `json:"color"`
			} `json:"bodyText"`
		} `json:"theme"`
	} `json:"postLinks"`
}

// Variant selects one of the two palette derivations.
type Variant string

const (
	VariantLight Variant = "light"
	VariantDark  Variant = "dark"
)

// PaletteSource holds the raw, unprefixed manifest hex fields that palette
// derivation reads for one variant.
type PaletteSource struct {
	Background   string
	Accent       string
	TabBar       string
	TabBarBlurry bool
	Divider      string
	TitleText    string
	BodyText     string
}

// ParseManifest reads and validates the manifest under extractRoot and
// derives both palettes. archiveName becomes the metadata's file_name. A
// missing or structurally invalid manifest is fatal; a manifest whose derived
// fields are incomplete returns ErrPaletteIncomplete and no metadata.
func ParseManifest(extractRoot, archiveName string) (*models.ThemeMetadata, error) {
	path := filepath.Join(extractRoot, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingManifest, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrMalformedManifest, ManifestFileName, err)
	}

	var doc manifest
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if doc.Metadata == nil {
		return nil, fmt.Errorf("%w: missing metadata section", ErrMalformedManifest)
	}
	if strings.TrimSpace(doc.ID) == "" {
		return nil, ErrMissingIdentity
	}

	light, err := ResolvePalette(doc.paletteSource(VariantLight), VariantLight)
	if err != nil {
		return nil, err
	}
	dark, err := ResolvePalette(doc.paletteSource(VariantDark), VariantDark)
	if err != nil {
		return nil, err
	}

	meta := &models.ThemeMetadata{
		FileName:         archiveName,
		FileID:           strings.TrimSpace(doc.ID),
		ThemeName:        doc.Metadata.Name,
		ThemeAuthor:      doc.Metadata.Author,
		ThemeDescription: doc.Metadata.Description,
		ApprovalState:    models.ApprovalPending,
		Color:            doc.Metadata.Color,
		Icon:             doc.Metadata.Icon,
		Light:            light,
		Dark:             dark,
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaletteIncomplete, err)
	}
	return meta, nil
}

func (m *manifest) paletteSource(variant Variant) PaletteSource {
	pick := func(v variantHex) string {
		if variant == VariantDark {
			return v.Dark.Hex
		}
		return v.Light.Hex
	}
	return PaletteSource{
		Background:   pick(m.Posts.BG.Color.Base),
		Accent:       pick(m.General.AccentColor),
		TabBar:       pick(m.General.TabBarBG.Color),
		TabBarBlurry: m.General.TabBarBG.Blurry,
		Divider:      pick(m.Lists.DividerColors),
		TitleText:    pick(m.PostLinks.Theme.TitleText.Color),
		BodyText:     pick(m.PostLinks.Theme.BodyText.Color),
	}
}

// ResolvePalette maps raw manifest fields onto a fully populated preview for
// one variant. Pure: no I/O, directly unit-testable.
//
// Two slots carry conditional policy. A blurry tab bar is translucent, so its
// configured color is ignored and the background shows through. A pure-white
// dark-mode tab bar would read as a seam against light content, so it also
// falls back to the background; light mode has no such guard.
func ResolvePalette(src PaletteSource, variant Variant) (models.ThemePreview, error) {
	background, err := prefixHex("background", src.Background)
	if err != nil {
		return models.ThemePreview{}, err
	}

	tabBar := background
	switch {
	case src.TabBarBlurry:
		// Declared value ignored.
	case variant == VariantDark && isPureWhite(src.TabBar):
		// Pure-white guard.
	default:
		tabBar, err = prefixHex("tabBarBackground", src.TabBar)
		if err != nil {
			return models.ThemePreview{}, err
		}
	}

	accent, err := prefixHex("accentColor", src.Accent)
	if err != nil {
		return models.ThemePreview{}, err
	}
	divider, err := prefixHex("divider", src.Divider)
	if err != nil {
		return models.ThemePreview{}, err
	}
	titleText, err := prefixHex("postTitleText", src.TitleText)
	if err != nil {
		return models.ThemePreview{}, err
	}
	bodyText, err := prefixHex("postBodyText", src.BodyText)
	if err != nil {
		return models.ThemePreview{}, err
	}

	return models.ThemePreview{
		Background:              background,
		AccentColor:             accent,
		TabBarBackground:        tabBar,
		SubredditPillBackground: defaultPillBackground,
		Divider:                 divider,
		TabBarInactiveColor:     defaultTabBarInactive,
		TabBarInactiveTextColor: defaultTabBarInactiveText,
		PostBackground:          background,
		PostTitleText:           titleText,
		PostBodyText:            bodyText,
	}, nil
}

func normalizeHex(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), "#")
}

// isPureWhite reports whether the raw manifest field decodes to exact white.
// Malformed values report false and surface through the regular parse path.
func isPureWhite(value string) bool {
	c, err := models.ParseHexColor("#" + normalizeHex(value))
	if err != nil {
		return false
	}
	return c == pureWhite
}

// prefixHex turns a raw manifest hex field into canonical #-prefixed form.
func prefixHex(field, value string) (string, error) {
	normalized := "#" + normalizeHex(value)
	if _, err := models.ParseHexColor(normalized); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPaletteIncomplete, field, err)
	}
	return normalized, nil
}
