// internal/models/theme.go
package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

const maxThemeNameLength = 100
const maxDescriptionLength = 2000

var hexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// IsHexColor reports whether value is a #-prefixed 6-digit hex color.
func IsHexColor(value string) bool {
	return hexColorRegex.MatchString(strings.TrimSpace(value))
}

// ParseHexColor parses a #-prefixed hex color, rejecting shorthand forms.
func ParseHexColor(value string) (colorful.Color, error) {
	if !hexColorRegex.MatchString(value) {
		return colorful.Color{}, fmt.Errorf("invalid hex color: %q", value)
	}
	return colorful.Hex(value)
}

// ApprovalState is the moderation lifecycle of a theme. A theme is created
// Pending; Accepted and Denied are terminal.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "waiting for approval"
	ApprovalAccepted ApprovalState = "accepted"
	ApprovalDenied   ApprovalState = "denied"
)

func (s ApprovalState) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalAccepted, ApprovalDenied:
		return true
	}
	return false
}

// ParseApprovalState maps a stored string onto the closed enum.
func ParseApprovalState(value string) (ApprovalState, error) {
	state := ApprovalState(value)
	if !state.Valid() {
		return "", fmt.Errorf("unknown approval state: %q", value)
	}
	return state, nil
}

// MetadataColor is the accent color declared in the manifest.
type MetadataColor struct {
	Hex   string  `json:"hex"`
	Alpha float64 `json:"alpha"`
}

// ThemePreview is one fully resolved palette variant. Every slot is a
// #-prefixed 6-digit hex color; a preview is never partially populated.
type ThemePreview struct {
	Background              string `json:"background"`
	AccentColor             string `json:"accentColor"`
	TabBarBackground        string `json:"tabBarBackground"`
	SubredditPillBackground string `json:"subredditPillBackground"`
	Divider                 string `json:"divider"`
	TabBarInactiveColor     string `json:"tabBarInactiveColor"`
	TabBarInactiveTextColor string `json:"tabBarInactiveTextColor"`
	PostBackground          string `json:"postBackground"`
	PostTitleText           string `json:"postTitleText"`
	PostBodyText            string `json:"postBodyText"`
}

// Validate checks that every slot holds a well-formed color.
func (p ThemePreview) Validate() error {
	slots := []struct {
		name  string
		value string
	}{
		{"background", p.Background},
		{"accentColor", p.AccentColor},
		{"tabBarBackground", p.TabBarBackground},
		{"subredditPillBackground", p.SubredditPillBackground},
		{"divider", p.Divider},
		{"tabBarInactiveColor", p.TabBarInactiveColor},
		{"tabBarInactiveTextColor", p.TabBarInactiveTextColor},
		{"postBackground", p.PostBackground},
		{"postTitleText", p.PostTitleText},
		{"postBodyText", p.PostBodyText},
	}
	for _, slot := range slots {
		if _, err := ParseHexColor(slot.value); err != nil {
			return fmt.Errorf("%s: %w", slot.name, err)
		}
	}
	return nil
}

// ThemeMetadata is the full in-memory representation of an ingested theme.
// FileID is the stable identity; it never changes across revisions.
type ThemeMetadata struct {
	FileName         string        `json:"file_name"`
	FileID           string        `json:"file_id"`
	ThemeName        string        `json:"theme_name"`
	ThemeAuthor      string        `json:"theme_author"`
	ThemeDescription string        `json:"theme_description"`
	MessageID        string        `json:"message_id,omitempty"`
	ApprovalState    ApprovalState `json:"approval_state"`
	Color            MetadataColor `json:"color"`
	Icon             string        `json:"icon"`
	Light            ThemePreview  `json:"themeColorsLight"`
	Dark             ThemePreview  `json:"themeColorsDark"`
}

func (m ThemeMetadata) Validate() error {
	if strings.TrimSpace(m.FileID) == "" {
		return fmt.Errorf("file_id is required")
	}
	if strings.TrimSpace(m.FileName) == "" {
		return fmt.Errorf("file_name is required")
	}
	name := strings.TrimSpace(m.ThemeName)
	if name == "" {
		return fmt.Errorf("theme_name is required")
	}
	if len(name) > maxThemeNameLength {
		return fmt.Errorf("theme_name must be %d characters or fewer", maxThemeNameLength)
	}
	if len(m.ThemeDescription) > maxDescriptionLength {
		return fmt.Errorf("theme_description must be %d characters or fewer", maxDescriptionLength)
	}
	if !m.ApprovalState.Valid() {
		return fmt.Errorf("invalid approval state: %q", m.ApprovalState)
	}
	if m.Color.Alpha < 0 || m.Color.Alpha > 1 {
		return fmt.Errorf("color alpha must be in [0,1], got %v", m.Color.Alpha)
	}
	if err := m.Light.Validate(); err != nil {
		return fmt.Errorf("light palette: %w", err)
	}
	if err := m.Dark.Validate(); err != nil {
		return fmt.Errorf("dark palette: %w", err)
	}
	return nil
}

// SavableMetadata is the flattened persistence projection of ThemeMetadata.
// Palettes are not persisted; previews are regenerated from templates.
type SavableMetadata struct {
	FileName         string        `json:"file_name"`
	FileID           string        `json:"file_id"`
	ThemeName        string        `json:"theme_name"`
	ThemeAuthor      string        `json:"theme_author"`
	ThemeDescription string        `json:"theme_description"`
	MessageID        string        `json:"message_id,omitempty"`
	ApprovalState    ApprovalState `json:"approval_state"`
	Color            string        `json:"color"`
	Alpha            float64       `json:"alpha"`
	Icon             string        `json:"icon"`
}

// Savable flattens the metadata for persistence.
func (m ThemeMetadata) Savable() SavableMetadata {
	return SavableMetadata{
		FileName:         m.FileName,
		FileID:           m.FileID,
		ThemeName:        m.ThemeName,
		ThemeAuthor:      m.ThemeAuthor,
		ThemeDescription: m.ThemeDescription,
		MessageID:        m.MessageID,
		ApprovalState:    m.ApprovalState,
		Color:            m.Color.Hex,
		Alpha:            m.Color.Alpha,
		Icon:             m.Icon,
	}
}

// Metadata reverses Savable for records loaded from the store. Palettes are
// left zero; callers that need previews re-derive them from the archive.
func (s SavableMetadata) Metadata() ThemeMetadata {
	return ThemeMetadata{
		FileName:         s.FileName,
		FileID:           s.FileID,
		ThemeName:        s.ThemeName,
		ThemeAuthor:      s.ThemeAuthor,
		ThemeDescription: s.ThemeDescription,
		MessageID:        s.MessageID,
		ApprovalState:    s.ApprovalState,
		Color:            MetadataColor{Hex: s.Color, Alpha: s.Alpha},
		Icon:             s.Icon,
	}
}
