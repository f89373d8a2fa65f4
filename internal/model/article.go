// Package model defines the core data types shared across the Chorus
// pipeline: articles, events, narrative perspectives, and the source
// registry. The store persists these types; the pipeline stages transform
// them.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Article is an immutable record of one fetched piece of content.
//
// Articles are created by the normalizer and never mutated afterwards,
// with three exceptions: ClusterID is set once when the clusterer assigns
// the article to an event, EmbedAttempts is bumped when an embedding
// attempt fails, and FactCheckStatus is set once by the fact-check tier.
// Retention cleanup (tier 5) is the only thing that deletes them.
type Article struct {
	ID         string // 16-hex content id derived from the canonical URL
	URL        string // canonical URL, unique
	Source     string // registrable domain, e.g. "reuters.com"
	SourceName string // display name, e.g. "Reuters"
	Title      string
	Body       string
	Summary    string
	Authors    []string
	Images     []string
	Entities   []string // ordered, deduped, extracted at normalization
	Language   string

	ContentHash  string // sha256 hex of normalized title+body
	TitleSimhash uint64 // 64-bit simhash of the normalized title

	PublishedAt time.Time
	IngestedAt  time.Time

	// ClusterID is empty until the article is assigned to an event.
	ClusterID string

	// EmbedAttempts counts failed embedding attempts, for visibility.
	EmbedAttempts int

	// FactCheckStatus is empty until the fact-check tier has looked at
	// the article, then one of FactCheckVerified, FactCheckDisputed or
	// FactCheckUnclear.
	FactCheckStatus string
}

// Fact-check outcomes recorded on articles by the fact-check tier.
const (
	FactCheckVerified = "verified"
	FactCheckDisputed = "disputed"
	FactCheckUnclear  = "unclear"
)

// Clustered reports whether the article carries a cluster assignment.
func (a *Article) Clustered() bool { return a.ClusterID != "" }

// EmbedText builds the text sent to the embedding service: title plus as
// much of the body as fits in maxChars. The body is assumed already
// sanitized by the normalizer.
func (a *Article) EmbedText(maxChars int) string {
	text := a.Title
	if a.Body != "" && len(text) < maxChars {
		rest := maxChars - len(text) - 1
		body := a.Body
		if len(body) > rest {
			body = body[:rest]
		}
		text += " " + body
	}
	return text
}

// HashID returns the 16-hex identifier Chorus uses for articles, derived
// from the canonical URL.
func HashID(canonicalURL string) string {
	h := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(h[:8])
}

// ContentHashOf returns the full sha256 hex of the given normalized text.
// Used as the embedding cache key: identical text embeds identically.
func ContentHashOf(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
