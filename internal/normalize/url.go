package normalize

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Tracking params stripped during canonicalization, beyond the utm_*
// prefix family.
var trackingParams = map[string]struct{}{
	"fbclid":    {},
	"gclid":     {},
	"mc_cid":    {},
	"mc_eid":    {},
	"ref":       {},
	"ref_src":   {},
	"cmpid":     {},
	"ocid":      {},
	"smid":      {},
	"partner":   {},
	"ito":       {},
	"at_medium": {},
}

// CanonicalURL rewrites a raw article link into its canonical form:
// lowercase scheme and host, default ports stripped, fragment dropped,
// path cleaned, tracking params removed, and surviving query keys sorted
// so equal links always serialize identically. The second return is the
// host, for source attribution.
func CanonicalURL(raw string) (string, string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", fmt.Errorf("normalize: empty url")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("normalize: parse url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", "", fmt.Errorf("normalize: url %q missing scheme or host", trimmed)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	parsed.Host = host
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") ||
			(parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			parsed.Host = host + ":" + port
		}
	}

	parsed.Fragment = ""

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	parsed.Path = path
	parsed.RawPath = ""

	parsed.RawQuery = cleanQuery(parsed.Query())

	return parsed.String(), host, nil
}

// cleanQuery drops tracking keys and re-encodes the rest in sorted order.
func cleanQuery(q url.Values) string {
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingParams[lower]; ok {
			q.Del(key)
		}
	}
	if len(q) == 0 {
		return ""
	}

	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := url.Values{}
	for _, key := range keys {
		vals := q[key]
		sort.Strings(vals)
		for _, v := range vals {
			out.Add(key, v)
		}
	}
	return out.Encode()
}

// SourceDomain reduces a host to the domain used as the article's source
// key: the www prefix goes, subdomains stay ("edition.cnn.com" is
// resolved to its outlet by the registry, not here).
func SourceDomain(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
