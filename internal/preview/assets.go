// internal/preview/assets.go
package preview

import (
	"embed"
	"sort"
)

// Bundled vector templates. The sentinel colors inside them form the
// substitution vocabulary; editing a template's colors requires a matching
// change to the replacement table in render.go.
//
//go:embed templates/*.svg
var templateFS embed.FS

func templateNames() ([]string, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	// Stable order keeps template indexes, and so preview keys, reproducible.
	sort.Strings(names)
	return names, nil
}
