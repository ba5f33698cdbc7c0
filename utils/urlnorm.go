package utils

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Tracking query parameters stripped during normalization.
var trackingParams = map[string]bool{
	"gclid":        true,
	"fbclid":       true,
	"msclkid":      true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"referrer":     true,
	"igshid":       true,
	"_hsenc":       true,
	"_hsmi":        true,
	"vero_id":      true,
	"yclid":        true,
	"twclid":       true,
	"s_cid":        true,
	"mkt_tok":      true,
	"trk":          true,
	"spm":          true,
	"gad_source":   true,
	"gbraid":       true,
	"wbraid":       true,
	"campaign_id":  true,
	"ad_id":        true,
	"affiliate_id": true,
}

// NormalizeURL canonicalizes a raw URL for dedup lookups: https scheme,
// lowercased host without "www.", no tracking params, no fragment, no
// trailing slash. The function is idempotent.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}

	u.Scheme = "https"
	u.Fragment = ""
	u.User = nil

	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":443")
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimPrefix(host, "www.")
	u.Host = host

	q := u.Query()
	for key := range q {
		if trackingParams[key] || strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}

// RegistrableDomain extracts the eTLD+1 ("example.co.uk") from a raw or
// normalized URL. Falls back to the bare host when the public suffix
// list has no answer (IPs, localhost).
func RegistrableDomain(raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return "", err
	}
	host := u.Hostname()

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return domain, nil
}
