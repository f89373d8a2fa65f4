package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abelbrown/chorus/internal/model"
)

// CreateEvent inserts a new event row.
// Thread-safe: acquires write lock.
func (s *Store) CreateEvent(ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO events (
			id, summary, articles_count, unique_sources, geo_diversity,
			evidence_flag, official_match, truth_score, confidence_tier,
			underreported, wire_seen,
			coherence_score, has_conflict, conflict_severity, conflict_explanation_json,
			bias_compass_json, category, category_confidence, importance_score,
			first_seen, last_seen, languages_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.Summary,
		ev.ArticlesCount,
		ev.UniqueSources,
		ev.GeoDiversity,
		boolToInt(ev.EvidenceFlag),
		boolToInt(ev.OfficialMatch),
		ev.TruthScore,
		string(ev.ConfidenceTier),
		boolToInt(ev.Underreported),
		boolToInt(ev.WireSeen),
		ev.CoherenceScore,
		boolToInt(ev.HasConflict),
		string(ev.ConflictSeverity),
		conflictArg(ev.Conflict),
		ev.BiasCompass,
		ev.Category,
		ev.CategoryConfidence,
		ev.ImportanceScore,
		ev.FirstSeen.UTC(),
		ev.LastSeen.UTC(),
		encodeList(ev.Languages),
	)
	return err
}

// GetEvent returns the event with the given id, or nil if none exists.
// Thread-safe: acquires read lock.
func (s *Store) GetEvent(id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, err := s.queryEvents(eventSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// OpenEvents returns events whose last member arrived at or after the
// given cutoff, ordered by first_seen then id so incremental assignment
// walks them deterministically.
// Thread-safe: acquires read lock.
func (s *Store) OpenEvents(cutoff time.Time) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEvents(
		eventSelect+" WHERE last_seen >= ? ORDER BY first_seen ASC, id ASC",
		cutoff.UTC(),
	)
}

// EventsTouchedSince returns events whose last_seen is at or after t,
// in the same deterministic order as OpenEvents. Passing the zero time
// returns every event.
// Thread-safe: acquires read lock.
func (s *Store) EventsTouchedSince(t time.Time) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEvents(
		eventSelect+" WHERE last_seen >= ? ORDER BY first_seen ASC, id ASC",
		t.UTC(),
	)
}

// TopEvents returns up to limit events ordered by importance, for the
// CLI and reporting surfaces.
// Thread-safe: acquires read lock.
func (s *Store) TopEvents(limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEvents(
		eventSelect+" ORDER BY importance_score DESC, last_seen DESC LIMIT ?",
		limit,
	)
}

// EventMembers returns the articles assigned to an event, ordered by
// published time then id. Scoring and coherence always recompute from
// this full member set.
// Thread-safe: acquires read lock.
func (s *Store) EventMembers(eventID string) ([]model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryArticles(
		articleSelect+" WHERE cluster_id = ? ORDER BY published_at ASC, id ASC",
		eventID,
	)
}

// MergeEvents folds the absorbed event into the surviving one in a single
// transaction: members are re-pointed, the survivor's first_seen/last_seen
// span widens to cover both, the wire_seen latch carries over, and the
// absorbed row is deleted. Counters and scores are stale after a merge
// until the next scoring pass recomputes them.
// Thread-safe: acquires write lock.
func (s *Store) MergeEvents(survivorID, absorbedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		survivor = struct {
			first, last time.Time
			wire        int
		}{}
		absorbed = struct {
			first, last time.Time
			wire        int
		}{}
	)
	row := tx.QueryRow("SELECT first_seen, last_seen, wire_seen FROM events WHERE id = ?", survivorID)
	if err := row.Scan(&survivor.first, &survivor.last, &survivor.wire); err != nil {
		return fmt.Errorf("load survivor %s: %w", survivorID, err)
	}
	row = tx.QueryRow("SELECT first_seen, last_seen, wire_seen FROM events WHERE id = ?", absorbedID)
	if err := row.Scan(&absorbed.first, &absorbed.last, &absorbed.wire); err != nil {
		return fmt.Errorf("load absorbed %s: %w", absorbedID, err)
	}

	if absorbed.first.Before(survivor.first) {
		survivor.first = absorbed.first
	}
	if absorbed.last.After(survivor.last) {
		survivor.last = absorbed.last
	}
	if absorbed.wire > survivor.wire {
		survivor.wire = absorbed.wire
	}

	if _, err := tx.Exec("UPDATE articles SET cluster_id = ? WHERE cluster_id = ?", survivorID, absorbedID); err != nil {
		return fmt.Errorf("repoint members: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE events SET first_seen = ?, last_seen = ?, wire_seen = ? WHERE id = ?",
		survivor.first.UTC(), survivor.last.UTC(), survivor.wire, survivorID,
	); err != nil {
		return fmt.Errorf("widen survivor: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM events WHERE id = ?", absorbedID); err != nil {
		return fmt.Errorf("delete absorbed: %w", err)
	}

	return tx.Commit()
}

// UpdateEventScores writes every field the scoring pass derives from the
// member set in one statement, so readers never observe a half-updated
// event.
// Thread-safe: acquires write lock.
func (s *Store) UpdateEventScores(ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE events SET
			summary = ?,
			articles_count = ?,
			unique_sources = ?,
			geo_diversity = ?,
			evidence_flag = ?,
			official_match = ?,
			truth_score = ?,
			confidence_tier = ?,
			bias_compass_json = ?,
			category = ?,
			category_confidence = ?,
			importance_score = ?,
			first_seen = ?,
			last_seen = ?,
			languages_json = ?
		WHERE id = ?
	`,
		ev.Summary,
		ev.ArticlesCount,
		ev.UniqueSources,
		ev.GeoDiversity,
		boolToInt(ev.EvidenceFlag),
		boolToInt(ev.OfficialMatch),
		ev.TruthScore,
		string(ev.ConfidenceTier),
		ev.BiasCompass,
		ev.Category,
		ev.CategoryConfidence,
		ev.ImportanceScore,
		ev.FirstSeen.UTC(),
		ev.LastSeen.UTC(),
		encodeList(ev.Languages),
		ev.ID,
	)
	return err
}

// UpdateEventDerived writes every derived field at once: the truth
// snapshot plus coherence, conflict and coverage results computed from
// the same member read. One statement means a reader never sees a truth
// score from one snapshot next to a coherence score from another. The
// wire_seen latch only moves from 0 to 1; MAX keeps an already-latched
// event latched no matter what the caller passes.
// Thread-safe: acquires write lock.
func (s *Store) UpdateEventDerived(ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE events SET
			summary = ?,
			articles_count = ?,
			unique_sources = ?,
			geo_diversity = ?,
			evidence_flag = ?,
			official_match = ?,
			truth_score = ?,
			confidence_tier = ?,
			underreported = ?,
			wire_seen = MAX(wire_seen, ?),
			coherence_score = ?,
			has_conflict = ?,
			conflict_severity = ?,
			conflict_explanation_json = ?,
			bias_compass_json = ?,
			category = ?,
			category_confidence = ?,
			importance_score = ?,
			first_seen = ?,
			last_seen = ?,
			languages_json = ?
		WHERE id = ?
	`,
		ev.Summary,
		ev.ArticlesCount,
		ev.UniqueSources,
		ev.GeoDiversity,
		boolToInt(ev.EvidenceFlag),
		boolToInt(ev.OfficialMatch),
		ev.TruthScore,
		string(ev.ConfidenceTier),
		boolToInt(ev.Underreported),
		boolToInt(ev.WireSeen),
		ev.CoherenceScore,
		boolToInt(ev.HasConflict),
		string(ev.ConflictSeverity),
		conflictArg(ev.Conflict),
		ev.BiasCompass,
		ev.Category,
		ev.CategoryConfidence,
		ev.ImportanceScore,
		ev.FirstSeen.UTC(),
		ev.LastSeen.UTC(),
		encodeList(ev.Languages),
		ev.ID,
	)
	return err
}

// RetentionStats reports what one retention sweep removed.
type RetentionStats struct {
	Events     int64
	Articles   int64
	Embeddings int64
}

// SweepExpired deletes events whose last_seen is before the cutoff, their
// articles, unclustered articles ingested before the cutoff, and any
// embeddings left without a matching article. Everything happens in one
// transaction.
// Thread-safe: acquires write lock.
func (s *Store) SweepExpired(cutoff time.Time) (RetentionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats RetentionStats

	tx, err := s.db.Begin()
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM events WHERE last_seen < ?", cutoff.UTC())
	if err != nil {
		return stats, fmt.Errorf("delete events: %w", err)
	}
	stats.Events, _ = res.RowsAffected()

	res, err = tx.Exec("DELETE FROM articles WHERE cluster_id IS NULL AND ingested_at < ?", cutoff.UTC())
	if err != nil {
		return stats, fmt.Errorf("delete loose articles: %w", err)
	}
	stats.Articles, _ = res.RowsAffected()

	res, err = tx.Exec("DELETE FROM articles WHERE cluster_id IS NOT NULL AND cluster_id NOT IN (SELECT id FROM events)")
	if err != nil {
		return stats, fmt.Errorf("delete orphaned articles: %w", err)
	}
	orphans, _ := res.RowsAffected()
	stats.Articles += orphans

	res, err = tx.Exec("DELETE FROM embeddings WHERE content_hash NOT IN (SELECT content_hash FROM articles)")
	if err != nil {
		return stats, fmt.Errorf("delete orphaned embeddings: %w", err)
	}
	stats.Embeddings, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return stats, err
	}
	return stats, nil
}

// Stats summarizes the store for the CLI and tier logs.
type Stats struct {
	Articles          int
	PendingEmbeddings int
	Unclustered       int
	Events            int
	Confirmed         int
	Developing        int
	Unverified        int
	Conflicted        int
	Underreported     int
	LastIngested      time.Time
}

// GetStats collects row counts across all tables.
// Thread-safe: acquires read lock.
func (s *Store) GetStats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM articles", &st.Articles},
		{`SELECT COUNT(*) FROM articles a
			LEFT JOIN embeddings e ON e.content_hash = a.content_hash
			WHERE e.content_hash IS NULL`, &st.PendingEmbeddings},
		{"SELECT COUNT(*) FROM articles WHERE cluster_id IS NULL", &st.Unclustered},
		{"SELECT COUNT(*) FROM events", &st.Events},
		{"SELECT COUNT(*) FROM events WHERE confidence_tier = 'confirmed'", &st.Confirmed},
		{"SELECT COUNT(*) FROM events WHERE confidence_tier = 'developing'", &st.Developing},
		{"SELECT COUNT(*) FROM events WHERE confidence_tier = 'unverified'", &st.Unverified},
		{"SELECT COUNT(*) FROM events WHERE has_conflict = 1", &st.Conflicted},
		{"SELECT COUNT(*) FROM events WHERE underreported = 1", &st.Underreported},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return st, err
		}
	}

	var last sql.NullTime
	if err := s.db.QueryRow("SELECT MAX(ingested_at) FROM articles").Scan(&last); err != nil {
		return st, err
	}
	if last.Valid {
		st.LastIngested = last.Time
	}
	return st, nil
}

const eventColumns = `id, summary, articles_count, unique_sources, geo_diversity,
	evidence_flag, official_match, truth_score, confidence_tier,
	underreported, wire_seen,
	coherence_score, has_conflict, conflict_severity, conflict_explanation_json,
	bias_compass_json, category, category_confidence, importance_score,
	first_seen, last_seen, languages_json`

const eventSelect = "SELECT " + eventColumns + " FROM events"

// queryEvents is a helper that executes a query and scans results into
// Events. Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryEvents(query string, args ...any) ([]model.Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var (
			ev            model.Event
			evidence      int
			official      int
			underreported int
			wireSeen      int
			coherence     sql.NullFloat64
			hasConflict   int
			conflictJSON  sql.NullString
			tier          string
			severity      string
			languages     string
		)
		err := rows.Scan(
			&ev.ID,
			&ev.Summary,
			&ev.ArticlesCount,
			&ev.UniqueSources,
			&ev.GeoDiversity,
			&evidence,
			&official,
			&ev.TruthScore,
			&tier,
			&underreported,
			&wireSeen,
			&coherence,
			&hasConflict,
			&severity,
			&conflictJSON,
			&ev.BiasCompass,
			&ev.Category,
			&ev.CategoryConfidence,
			&ev.ImportanceScore,
			&ev.FirstSeen,
			&ev.LastSeen,
			&languages,
		)
		if err != nil {
			return nil, err
		}
		ev.EvidenceFlag = evidence != 0
		ev.OfficialMatch = official != 0
		ev.ConfidenceTier = model.ConfidenceTier(tier)
		ev.Underreported = underreported != 0
		ev.WireSeen = wireSeen != 0
		if coherence.Valid {
			v := coherence.Float64
			ev.CoherenceScore = &v
		}
		ev.HasConflict = hasConflict != 0
		ev.ConflictSeverity = model.ConflictSeverity(severity)
		if conflictJSON.Valid && conflictJSON.String != "" {
			var ce model.ConflictExplanation
			if err := json.Unmarshal([]byte(conflictJSON.String), &ce); err != nil {
				return nil, fmt.Errorf("decode conflict explanation for %s: %w", ev.ID, err)
			}
			ev.Conflict = &ce
		}
		ev.Languages = decodeList(languages)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// conflictArg adapts an optional explanation to a driver argument: nil
// stores NULL, anything else goes through the payload's own Valuer.
func conflictArg(c *model.ConflictExplanation) any {
	if c == nil {
		return nil
	}
	return *c
}
