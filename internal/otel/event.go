// Package otel provides structured observability for Chorus.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain
// goroutine. An optional RingBuffer keeps recent events in memory for the
// debug CLI. The per-tier cycle summaries required of the scheduler are
// emitted through this package.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Scheduler tier lifecycle
	KindTierStart    EventKind = "tier.start"
	KindTierComplete EventKind = "tier.complete"
	KindTierSkip     EventKind = "tier.skip" // previous run still in flight
	KindTierError    EventKind = "tier.error"

	// Ingest (tier 1)
	KindFetchStart    EventKind = "fetch.start"
	KindFetchComplete EventKind = "fetch.complete"
	KindFetchError    EventKind = "fetch.error"
	KindDuplicate     EventKind = "ingest.duplicate"
	KindBadRecord     EventKind = "ingest.bad_record"

	// Embedding (tier 2)
	KindEmbedBatch   EventKind = "embed.batch"
	KindEmbedPending EventKind = "embed.pending"
	KindEmbedError   EventKind = "embed.error"

	// Clustering and scoring (tier 2)
	KindEventOpened EventKind = "cluster.event_opened"
	KindEventMerged EventKind = "cluster.event_merged"
	KindAssigned    EventKind = "cluster.assigned"
	KindScored      EventKind = "score.updated"

	// Coherence (tier 3)
	KindCoherence EventKind = "coherence.updated"
	KindConflict  EventKind = "coherence.conflict"

	// Fact check (tier 4)
	KindFactCheck      EventKind = "factcheck.verified"
	KindFactCheckDefer EventKind = "factcheck.deferred"

	// Retention (tier 5)
	KindRetention EventKind = "retention.swept"

	// Store
	KindStoreError EventKind = "store.error"

	// System
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind
// and Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time `json:"t"`
	Level     Level     `json:"level,omitempty"`
	Kind      EventKind `json:"kind"`
	Comp      string    `json:"comp,omitempty"`       // component: "sched", "ingest", "cluster"
	SessionID string    `json:"session_id,omitempty"` // random hex, same for entire daemon run

	Tier string `json:"tier,omitempty"` // scheduler tier name

	Dur   time.Duration `json:"-"`                // not serialized directly
	DurMs float64       `json:"dur_ms,omitempty"` // computed from Dur at marshal time

	// Cycle summary counters.
	Processed int `json:"processed,omitempty"`
	Created   int `json:"created,omitempty"`
	Skipped   int `json:"skipped,omitempty"`
	Errors    int `json:"errors,omitempty"`

	Count   int    `json:"count,omitempty"`
	Source  string `json:"source,omitempty"`
	EventID string `json:"event_id,omitempty"` // event aggregate id, where relevant
	Dims    int    `json:"dims,omitempty"`

	Err   string         `json:"err,omitempty"`
	Msg   string         `json:"msg,omitempty"`   // free text
	Extra map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}

// Summary builds a tier cycle-summary event. The scheduler emits one per
// completed tier run.
func Summary(tier string, dur time.Duration, processed, created, skipped, errs int) Event {
	lvl := LevelInfo
	if errs > 0 {
		lvl = LevelWarn
	}
	return Event{
		Level:     lvl,
		Kind:      KindTierComplete,
		Comp:      "sched",
		Tier:      tier,
		Dur:       dur,
		Processed: processed,
		Created:   created,
		Skipped:   skipped,
		Errors:    errs,
	}
}
