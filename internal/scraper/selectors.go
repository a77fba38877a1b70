package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pricedrop/pricedrop-monitor/internal/validator"
)

// SelectorConfig maps retailer domains (eTLD+1, e.g. "amazon.in") to the
// selectors used on their product pages. Default applies to every page after
// the retailer selectors and JSON-LD have been tried.
type SelectorConfig struct {
	Retailers map[string]RetailerSelectors `json:"retailers"`
	Default   RetailerSelectors            `json:"default"`
}

type RetailerSelectors struct {
	Title []Selector `json:"title" validate:"dive"`
	Price []Selector `json:"price" validate:"dive"`
}

// Selector is a CSS selector. When Attr is set the value is read from that
// attribute instead of the element text.
type Selector struct {
	CSS  string `json:"css" validate:"required"`
	Attr string `json:"attr,omitempty"`
}

func (s Selector) String() string {
	if s.Attr != "" {
		return s.CSS + "@" + s.Attr
	}
	return s.CSS
}

// For returns the selectors registered for a retailer domain.
func (c SelectorConfig) For(domain string) (RetailerSelectors, bool) {
	sel, ok := c.Retailers[strings.ToLower(domain)]
	return sel, ok
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
// This supports loading from embedded data via go:embed.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	if len(config.Default.Price) == 0 {
		return SelectorConfig{}, fmt.Errorf("selector config has no default price selectors")
	}

	v := validator.New()
	if err := v.ValidateStruct(config.Default); err != nil {
		return SelectorConfig{}, fmt.Errorf("default selectors: %w", err)
	}
	normalized := make(map[string]RetailerSelectors, len(config.Retailers))
	for domain, sel := range config.Retailers {
		if err := v.ValidateStruct(sel); err != nil {
			return SelectorConfig{}, fmt.Errorf("selectors for %s: %w", domain, err)
		}
		normalized[strings.ToLower(domain)] = sel
	}
	config.Retailers = normalized

	return config, nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
// The embedded selectors.json should be preferred.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Default: RetailerSelectors{
			Title: []Selector{
				{CSS: `meta[property="og:title"]`, Attr: "content"},
				{CSS: "h1"},
				{CSS: "title"},
			},
			Price: []Selector{
				{CSS: `meta[property="product:price:amount"]`, Attr: "content"},
				{CSS: `meta[itemprop="price"]`, Attr: "content"},
				{CSS: `[itemprop="price"]`},
			},
		},
	}
}
