// Package store provides SQLite persistence for Chorus: articles, events,
// and the embedding cache.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Enable WAL mode for file-based databases (not :memory:)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		source_name TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		authors TEXT NOT NULL DEFAULT '[]',
		images TEXT NOT NULL DEFAULT '[]',
		entities TEXT NOT NULL DEFAULT '[]',
		language TEXT NOT NULL DEFAULT 'en',
		content_hash TEXT NOT NULL,
		title_simhash INTEGER NOT NULL DEFAULT 0,
		published_at DATETIME NOT NULL,
		ingested_at DATETIME NOT NULL,
		cluster_id TEXT,
		embed_attempts INTEGER NOT NULL DEFAULT 0,
		fact_check_status TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source, published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_cluster ON articles(cluster_id);
	CREATE INDEX IF NOT EXISTS idx_articles_content_hash ON articles(content_hash);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		summary TEXT NOT NULL DEFAULT '',
		articles_count INTEGER NOT NULL DEFAULT 0,
		unique_sources INTEGER NOT NULL DEFAULT 0,
		geo_diversity REAL NOT NULL DEFAULT 0,
		evidence_flag INTEGER NOT NULL DEFAULT 0,
		official_match INTEGER NOT NULL DEFAULT 0,
		truth_score REAL NOT NULL DEFAULT 0,
		confidence_tier TEXT NOT NULL DEFAULT 'unverified',
		underreported INTEGER NOT NULL DEFAULT 0,
		wire_seen INTEGER NOT NULL DEFAULT 0,
		coherence_score REAL,
		has_conflict INTEGER NOT NULL DEFAULT 0,
		conflict_severity TEXT NOT NULL DEFAULT '',
		conflict_explanation_json TEXT,
		bias_compass_json TEXT NOT NULL DEFAULT '{"left":0,"center":0,"right":0}',
		category TEXT NOT NULL DEFAULT '',
		category_confidence REAL NOT NULL DEFAULT 0,
		importance_score REAL NOT NULL DEFAULT 0,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		languages_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_events_last_seen ON events(last_seen DESC);
	CREATE INDEX IF NOT EXISTS idx_events_tier ON events(confidence_tier);

	CREATE TABLE IF NOT EXISTS embeddings (
		content_hash TEXT PRIMARY KEY,
		dims INTEGER NOT NULL,
		vector BLOB NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeList serializes a string slice as JSON text for storage. A nil or
// empty slice encodes as "[]" so columns stay NOT NULL.
func encodeList(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeList is the inverse of encodeList. Corrupt text decodes as nil
// rather than failing the whole row scan.
func decodeList(text string) []string {
	if text == "" || text == "[]" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(text), &vals); err != nil {
		return nil
	}
	return vals
}

// placeholders returns "?, ?, ..." with n slots, for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
