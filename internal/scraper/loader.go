package scraper

import (
	"embed"
	"log/slog"
)

//go:embed selectors.json
var embeddedSelectors embed.FS

// LoadConfig tries to load selectors in the following order:
// 1. The file at path, when path is set
// 2. Embedded selectors.json
// 3. Hardcoded defaults
func LoadConfig(path string) SelectorConfig {
	if path != "" {
		if fileSel, err := LoadSelectors(path); err == nil {
			slog.Info("Loaded selectors from external file", "path", path, "retailers", len(fileSel.Retailers))
			return fileSel
		} else {
			slog.Warn("Failed to load external selectors, falling back to embedded config", "path", path, "error", err)
		}
	}

	data, err := embeddedSelectors.ReadFile("selectors.json")
	if err == nil {
		sel, parseErr := LoadSelectorsFromBytes(data)
		if parseErr == nil {
			slog.Info("Loaded selectors from embedded config.", "retailers", len(sel.Retailers))
			return sel
		}
		slog.Warn("Embedded selectors failed to parse.", "error", parseErr)
	}

	slog.Info("Using hardcoded default selectors")
	return DefaultSelectors()
}
