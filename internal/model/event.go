package model

import "time"

// ConfidenceTier buckets an event's truth score.
type ConfidenceTier string

const (
	TierConfirmed  ConfidenceTier = "confirmed"
	TierDeveloping ConfidenceTier = "developing"
	TierUnverified ConfidenceTier = "unverified"
)

// ConflictSeverity buckets a coherence score below the conflict threshold.
// Empty means no conflict.
type ConflictSeverity string

const (
	SeverityNone   ConflictSeverity = ""
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// Event is the mutable aggregate for one real-world occurrence: a cluster
// of co-reporting articles plus every derived annotation.
//
// Counters and scores are always recomputed from the full current member
// set and written in a single transaction, never patched incrementally.
// Invariant: UniqueSources <= ArticlesCount.
type Event struct {
	ID      string // uuid
	Summary string // representative title of the medoid member

	ArticlesCount int
	UniqueSources int
	GeoDiversity  float64 // fraction in [0,1]

	EvidenceFlag  bool
	OfficialMatch bool

	TruthScore     float64 // [0,100]
	ConfidenceTier ConfidenceTier

	// Underreported flags official/NGO-covered events missing from the
	// major wires. WireSeen latches the first wire appearance so the flag
	// can only be cleared, never re-raised (no flicker).
	Underreported bool
	WireSeen      bool

	// CoherenceScore is nil until the coherence tier has evaluated the
	// event at least once.
	CoherenceScore   *float64
	HasConflict      bool
	ConflictSeverity ConflictSeverity
	Conflict         *ConflictExplanation

	BiasCompass BiasCompass

	Category           string
	CategoryConfidence float64
	ImportanceScore    float64

	FirstSeen time.Time
	LastSeen  time.Time

	Languages []string
}

// Open reports whether the event still accepts new members: its last
// member arrived within staleAfter of now. Closed events are skipped by
// incremental assignment and eventually removed by retention.
func (e *Event) Open(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(e.LastSeen) <= staleAfter
}
