package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// SaveEmbedding caches a vector under its content hash. Re-saving the
// same hash overwrites, which is harmless because embedding is
// deterministic for identical text.
// Thread-safe: acquires write lock.
func (s *Store) SaveEmbedding(contentHash string, vec []float32, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vec) == 0 {
		return fmt.Errorf("empty vector for %s", contentHash)
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO embeddings (content_hash, dims, vector, model, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, contentHash, len(vec), encodeVector(vec), model, time.Now().UTC())
	return err
}

// GetEmbedding returns the cached vector for a content hash. The second
// return value reports whether one was found.
// Thread-safe: acquires read lock.
func (s *Store) GetEmbedding(contentHash string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob []byte
	var dims int
	err := s.db.QueryRow(
		"SELECT dims, vector FROM embeddings WHERE content_hash = ?", contentHash,
	).Scan(&dims, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	vec, err := decodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode vector for %s: %w", contentHash, err)
	}
	if len(vec) != dims {
		return nil, false, fmt.Errorf("vector for %s has %d dims, row says %d", contentHash, len(vec), dims)
	}
	return vec, true, nil
}

// EmbeddingsByHash loads vectors for a batch of content hashes in one
// query. Hashes with no cached vector are simply absent from the result.
// Thread-safe: acquires read lock.
func (s *Store) EmbeddingsByHash(hashes []string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}
	query := "SELECT content_hash, vector FROM embeddings WHERE content_hash IN (" + placeholders(len(hashes)) + ")"
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		var blob []byte
		if err := rows.Scan(&hash, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode vector for %s: %w", hash, err)
		}
		out[hash] = vec
	}
	return out, rows.Err()
}

// encodeVector packs float32s as little-endian bytes for BLOB storage.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
