package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// trackingParams are query parameters that never identify a product.
var trackingParams = []string{
	"ref", "ref_", "tag", "affid", "affextparam1", "affextparam2",
	"gclid", "fbclid", "srsltid", "linkcode", "psc", "smid", "th",
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	for _, p := range trackingParams {
		if k == p {
			return true
		}
	}
	return false
}

// NormalizeURL returns the canonical form of a product URL: lower-case scheme
// and host without "www.", no fragment, no tracking parameters, sorted query
// and no trailing slash. Path case and other query parameters are kept.
func NormalizeURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL, fmt.Errorf("invalid product URL %q: %w", rawURL, err)
	}

	parsedURL.Scheme = strings.ToLower(parsedURL.Scheme)
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return rawURL, fmt.Errorf("invalid product URL %q: scheme must be http or https", rawURL)
	}
	if parsedURL.Hostname() == "" {
		return rawURL, fmt.Errorf("invalid product URL %q: missing host", rawURL)
	}

	parsedURL.Host = strings.TrimPrefix(strings.ToLower(parsedURL.Host), "www.")
	parsedURL.Fragment = ""
	parsedURL.RawFragment = ""
	parsedURL.User = nil

	if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")
		// Clear RawPath so String() rebuilds the path without the slash
		parsedURL.RawPath = ""
	}

	queryParams := parsedURL.Query()
	for key := range queryParams {
		if isTrackingParam(key) {
			queryParams.Del(key)
		}
	}
	// Encode sorts by key
	parsedURL.RawQuery = queryParams.Encode()
	return parsedURL.String(), nil
}

// DeriveProductID hashes the normalized URL into a 64 character hex ID.
// URLs that cannot be normalized are hashed as given (trimmed).
func DeriveProductID(rawURL string) string {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		key = strings.TrimSpace(rawURL)
	}
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// GetDomain returns the registrable domain (eTLD+1) of a URL, for example
// "amazon.in" for "https://www.amazon.in/dp/B0". It returns the bare host
// when no public suffix applies and for IP addresses.
func GetDomain(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsedURL.Hostname())
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// HostAllowed reports whether host equals one of the domains or is a
// subdomain of one. An empty list allows every host.
func HostAllowed(host string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
