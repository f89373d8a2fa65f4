package model

import "strings"

// SourceKind classifies an outlet for coverage analysis.
type SourceKind string

const (
	SourceWire     SourceKind = "wire"     // AP, Reuters, AFP
	SourceOfficial SourceKind = "official" // agencies and NGOs: USGS, WHO, UN
	SourceNational SourceKind = "national" // national outlets with wide reach
	SourceLocal    SourceKind = "local"    // regional and local outlets
)

// SourceInfo is the registry entry for one outlet. Country is a lowercase
// ISO 3166-1 alpha-2 code. A zero Bias means the outlet has no political
// rating; Weight scales its contribution to importance.
type SourceInfo struct {
	Domain   string      `json:"domain"`
	Name     string      `json:"name"`
	Country  string      `json:"country"`
	Kind     SourceKind  `json:"kind"`
	Language string      `json:"language,omitempty"`
	Bias     BiasCompass `json:"bias,omitempty"`
	Weight   float64     `json:"weight,omitempty"`
}

// Registry resolves article source domains to outlet metadata. Lookups
// strip a leading "www." and fall back to the registrable parent domain,
// so "edition.cnn.com" resolves to the "cnn.com" entry.
type Registry struct {
	byDomain map[string]SourceInfo
}

// NewRegistry builds a registry from the given entries. Bias vectors are
// normalized here so downstream code never sees a compass that fails to
// sum to 1 (upstream rating feeds are not trusted to be well-formed).
func NewRegistry(infos []SourceInfo) *Registry {
	r := &Registry{byDomain: make(map[string]SourceInfo, len(infos))}
	r.Merge(infos)
	return r
}

// Merge overlays additional entries (config overrides win over defaults).
func (r *Registry) Merge(infos []SourceInfo) {
	for _, in := range infos {
		in.Domain = strings.ToLower(strings.TrimPrefix(in.Domain, "www."))
		in.Bias = in.Bias.Normalized()
		if in.Language == "" {
			in.Language = "en"
		}
		if in.Weight == 0 {
			in.Weight = 1.0
		}
		r.byDomain[in.Domain] = in
	}
}

// Lookup resolves a domain to its registry entry.
func (r *Registry) Lookup(domain string) (SourceInfo, bool) {
	d := strings.ToLower(strings.TrimPrefix(domain, "www."))
	if info, ok := r.byDomain[d]; ok {
		return info, true
	}
	// Walk up subdomains: "edition.cnn.com" -> "cnn.com"
	for strings.Count(d, ".") > 1 {
		d = d[strings.Index(d, ".")+1:]
		if info, ok := r.byDomain[d]; ok {
			return info, true
		}
	}
	return SourceInfo{}, false
}

// Kind returns the outlet kind for a domain. Unknown outlets count as
// local: small regional sites are exactly the ones a registry misses.
func (r *Registry) Kind(domain string) SourceKind {
	if info, ok := r.Lookup(domain); ok {
		return info.Kind
	}
	return SourceLocal
}

// Country returns the outlet country, or "" when unknown.
func (r *Registry) Country(domain string) string {
	if info, ok := r.Lookup(domain); ok {
		return info.Country
	}
	return ""
}

// Bias returns the outlet's normalized bias compass (zero when unrated).
func (r *Registry) Bias(domain string) BiasCompass {
	if info, ok := r.Lookup(domain); ok {
		return info.Bias
	}
	return BiasCompass{}
}

// Language returns the outlet's primary language, defaulting to "en".
func (r *Registry) Language(domain string) string {
	if info, ok := r.Lookup(domain); ok {
		return info.Language
	}
	return "en"
}

// DefaultSources is the curated outlet table Chorus ships with. Bias
// priors are coarse survey-based placements, not editorial judgments;
// config can override any entry.
func DefaultSources() []SourceInfo {
	return []SourceInfo{
		// Major wires
		{Domain: "apnews.com", Name: "AP News", Country: "us", Kind: SourceWire, Bias: BiasCompass{Left: 0.2, Center: 0.6, Right: 0.2}, Weight: 1.5},
		{Domain: "reuters.com", Name: "Reuters", Country: "uk", Kind: SourceWire, Bias: BiasCompass{Left: 0.2, Center: 0.6, Right: 0.2}, Weight: 1.5},
		{Domain: "afp.com", Name: "AFP", Country: "fr", Kind: SourceWire, Bias: BiasCompass{Left: 0.2, Center: 0.6, Right: 0.2}, Weight: 1.5},

		// Officials and NGOs
		{Domain: "usgs.gov", Name: "USGS", Country: "us", Kind: SourceOfficial, Weight: 1.4},
		{Domain: "who.int", Name: "WHO", Country: "ch", Kind: SourceOfficial, Weight: 1.4},
		{Domain: "un.org", Name: "United Nations", Country: "ch", Kind: SourceOfficial, Weight: 1.3},
		{Domain: "reliefweb.int", Name: "ReliefWeb", Country: "ch", Kind: SourceOfficial, Weight: 1.3},
		{Domain: "nasa.gov", Name: "NASA", Country: "us", Kind: SourceOfficial, Weight: 1.3},
		{Domain: "noaa.gov", Name: "NOAA", Country: "us", Kind: SourceOfficial, Weight: 1.2},

		// National outlets
		{Domain: "bbc.co.uk", Name: "BBC", Country: "uk", Kind: SourceNational, Bias: BiasCompass{Left: 0.3, Center: 0.5, Right: 0.2}, Weight: 1.3},
		{Domain: "bbc.com", Name: "BBC", Country: "uk", Kind: SourceNational, Bias: BiasCompass{Left: 0.3, Center: 0.5, Right: 0.2}, Weight: 1.3},
		{Domain: "nytimes.com", Name: "The New York Times", Country: "us", Kind: SourceNational, Bias: BiasCompass{Left: 0.6, Center: 0.3, Right: 0.1}, Weight: 1.2},
		{Domain: "washingtonpost.com", Name: "The Washington Post", Country: "us", Kind: SourceNational, Bias: BiasCompass{Left: 0.6, Center: 0.3, Right: 0.1}, Weight: 1.2},
		{Domain: "theguardian.com", Name: "The Guardian", Country: "uk", Kind: SourceNational, Bias: BiasCompass{Left: 0.7, Center: 0.2, Right: 0.1}, Weight: 1.2},
		{Domain: "foxnews.com", Name: "Fox News", Country: "us", Kind: SourceNational, Bias: BiasCompass{Left: 0.1, Center: 0.2, Right: 0.7}, Weight: 1.1},
		{Domain: "wsj.com", Name: "The Wall Street Journal", Country: "us", Kind: SourceNational, Bias: BiasCompass{Left: 0.1, Center: 0.5, Right: 0.4}, Weight: 1.2},
		{Domain: "telegraph.co.uk", Name: "The Telegraph", Country: "uk", Kind: SourceNational, Bias: BiasCompass{Left: 0.1, Center: 0.3, Right: 0.6}, Weight: 1.1},
		{Domain: "aljazeera.com", Name: "Al Jazeera", Country: "qa", Kind: SourceNational, Bias: BiasCompass{Left: 0.4, Center: 0.5, Right: 0.1}, Weight: 1.1},
		{Domain: "dw.com", Name: "Deutsche Welle", Country: "de", Kind: SourceNational, Bias: BiasCompass{Left: 0.3, Center: 0.6, Right: 0.1}, Weight: 1.1},
		{Domain: "lemonde.fr", Name: "Le Monde", Country: "fr", Kind: SourceNational, Language: "fr", Bias: BiasCompass{Left: 0.5, Center: 0.4, Right: 0.1}, Weight: 1.1},
		{Domain: "elpais.com", Name: "El País", Country: "es", Kind: SourceNational, Language: "es", Bias: BiasCompass{Left: 0.5, Center: 0.4, Right: 0.1}, Weight: 1.1},
		{Domain: "cnn.com", Name: "CNN", Country: "us", Kind: SourceNational, Bias: BiasCompass{Left: 0.6, Center: 0.3, Right: 0.1}, Weight: 1.1},
		{Domain: "npr.org", Name: "NPR", Country: "us", Kind: SourceNational, Bias: BiasCompass{Left: 0.4, Center: 0.5, Right: 0.1}, Weight: 1.2},
	}
}
