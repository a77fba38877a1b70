package scraper

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// jsonLDProduct is the subset of a schema.org Product (JSON-LD) used here.
// Offers may be a single Offer, an AggregateOffer or a list of either, and
// prices may be numbers or strings, so both are decoded loosely.
type jsonLDProduct struct {
	Name   string
	Price  string
	Source string
}

// extractJSONLD returns the first Product with a priced offer found in the
// page's ld+json scripts.
func extractJSONLD(doc *goquery.Document) (jsonLDProduct, bool) {
	var found jsonLDProduct
	ok := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		dec := json.NewDecoder(bytes.NewReader([]byte(s.Text())))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return true
		}
		found, ok = findJSONLDProduct(v)
		return !ok
	})
	return found, ok
}

func findJSONLDProduct(v any) (jsonLDProduct, bool) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if p, ok := findJSONLDProduct(item); ok {
				return p, true
			}
		}
	case map[string]any:
		if graph, has := t["@graph"]; has {
			if p, ok := findJSONLDProduct(graph); ok {
				return p, true
			}
		}
		if isProductType(t["@type"]) {
			if price := offerPrice(t["offers"]); price != "" {
				name, _ := t["name"].(string)
				return jsonLDProduct{Name: strings.TrimSpace(name), Price: price, Source: "json-ld"}, true
			}
		}
	}
	return jsonLDProduct{}, false
}

func isProductType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, "Product") || strings.HasSuffix(t, ":Product")
	case []any:
		for _, item := range t {
			if isProductType(item) {
				return true
			}
		}
	}
	return false
}

func offerPrice(v any) string {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if p := offerPrice(item); p != "" {
				return p
			}
		}
	case map[string]any:
		for _, key := range []string{"price", "lowPrice"} {
			if p := scalarString(t[key]); p != "" {
				return p
			}
		}
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}
