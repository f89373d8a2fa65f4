package store

import (
	"database/sql"
	"time"

	"github.com/abelbrown/chorus/internal/model"
)

// SaveArticles stores articles, returning the count of new rows inserted.
// Duplicates (by id or canonical URL) are silently ignored via
// INSERT OR IGNORE, which is what makes ingestion idempotent: re-saving
// the same article is a no-op and reports zero new rows.
// Thread-safe: acquires write lock.
func (s *Store) SaveArticles(articles []model.Article) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(articles) == 0 {
		return 0, nil
	}

	stmt, err := s.db.Prepare(`
		INSERT OR IGNORE INTO articles (
			id, url, source, source_name, title, body, summary,
			authors, images, entities, language,
			content_hash, title_simhash, published_at, ingested_at,
			cluster_id, embed_attempts, fact_check_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	newCount := 0
	for _, a := range articles {
		var clusterID any
		if a.ClusterID != "" {
			clusterID = a.ClusterID
		}
		result, err := stmt.Exec(
			a.ID,
			a.URL,
			a.Source,
			a.SourceName,
			a.Title,
			a.Body,
			a.Summary,
			encodeList(a.Authors),
			encodeList(a.Images),
			encodeList(a.Entities),
			a.Language,
			a.ContentHash,
			int64(a.TitleSimhash),
			a.PublishedAt.UTC(),
			a.IngestedAt.UTC(),
			clusterID,
			a.EmbedAttempts,
			a.FactCheckStatus,
		)
		if err != nil {
			return newCount, err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return newCount, err
		}
		if affected > 0 {
			newCount++
		}
	}

	return newCount, nil
}

// FindByURL returns the article with the given canonical URL, or nil if
// none is stored. Exact duplicate detection goes through here.
// Thread-safe: acquires read lock.
func (s *Store) FindByURL(url string) (*model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	articles, err := s.queryArticles(articleSelect+" WHERE url = ?", url)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, nil
	}
	return &articles[0], nil
}

// FindRecentBySource returns articles from one source published at or
// after the given cutoff, newest first. The fuzzy duplicate check scans
// these for matching title fingerprints.
// Thread-safe: acquires read lock.
func (s *Store) FindRecentBySource(source string, since time.Time) ([]model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryArticles(
		articleSelect+" WHERE source = ? AND published_at >= ? ORDER BY published_at DESC",
		source, since.UTC(),
	)
}

// FindRecent returns articles from any source published at or after the
// cutoff, newest first, capped at limit. The cross-source syndication
// check scans these for verbatim headline copies.
// Thread-safe: acquires read lock.
func (s *Store) FindRecent(since time.Time, limit int) ([]model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryArticles(
		articleSelect+" WHERE published_at >= ? ORDER BY published_at DESC LIMIT ?",
		since.UTC(), limit,
	)
}

// ArticlesNeedingEmbedding returns articles whose content hash has no
// cached vector, oldest first so retried stragglers are not starved by
// fresh arrivals.
// Thread-safe: acquires read lock.
func (s *Store) ArticlesNeedingEmbedding(limit int) ([]model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + articleColumns + `
		FROM articles a
		LEFT JOIN embeddings e ON e.content_hash = a.content_hash
		WHERE e.content_hash IS NULL
		ORDER BY a.published_at ASC
		LIMIT ?
	`
	return s.queryArticles(query, limit)
}

// BumpEmbedAttempts increments the failed-attempt counter on the given
// articles. Attempts are never capped; pending articles stay visible to
// the next cycle.
// Thread-safe: acquires write lock.
func (s *Store) BumpEmbedAttempts(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "UPDATE articles SET embed_attempts = embed_attempts + 1 WHERE id IN (" + placeholders(len(ids)) + ")"
	_, err := s.db.Exec(query, args...)
	return err
}

// UnclusteredEmbedded returns articles that have a cached embedding but
// no cluster assignment yet, ordered by published time then id so
// clustering sees a deterministic sequence.
// Thread-safe: acquires read lock.
func (s *Store) UnclusteredEmbedded(limit int) ([]model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + articleColumns + `
		FROM articles a
		JOIN embeddings e ON e.content_hash = a.content_hash
		WHERE a.cluster_id IS NULL
		ORDER BY a.published_at ASC, a.id ASC
		LIMIT ?
	`
	return s.queryArticles(query, limit)
}

// AssignCluster records the article's event membership. Assignments are
// write-once in practice (events are never split), but merges re-point
// members in bulk via MergeEvents instead.
// Thread-safe: acquires write lock.
func (s *Store) AssignCluster(articleID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE articles SET cluster_id = ? WHERE id = ?", eventID, articleID)
	return err
}

// ArticlesForFactCheck returns clustered articles the fact-check tier has
// not looked at yet, newest first.
// Thread-safe: acquires read lock.
func (s *Store) ArticlesForFactCheck(limit int) ([]model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryArticles(
		articleSelect+` WHERE fact_check_status = '' AND cluster_id IS NOT NULL
		ORDER BY published_at DESC LIMIT ?`, limit)
}

// SetFactCheckStatus records the fact-check outcome for one article.
// Thread-safe: acquires write lock.
func (s *Store) SetFactCheckStatus(articleID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE articles SET fact_check_status = ? WHERE id = ?", status, articleID)
	return err
}

// articleColumns is the canonical column list, aliased to table a so it
// can be reused in joins.
const articleColumns = `a.id, a.url, a.source, a.source_name, a.title, a.body, a.summary,
	a.authors, a.images, a.entities, a.language,
	a.content_hash, a.title_simhash, a.published_at, a.ingested_at,
	a.cluster_id, a.embed_attempts, a.fact_check_status`

const articleSelect = "SELECT " + articleColumns + " FROM articles a"

// queryArticles is a helper that executes a query and scans results into
// Articles. Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryArticles(query string, args ...any) ([]model.Article, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var (
			a        model.Article
			authors  string
			images   string
			entities string
			simhash  int64
			cluster  sql.NullString
		)
		err := rows.Scan(
			&a.ID,
			&a.URL,
			&a.Source,
			&a.SourceName,
			&a.Title,
			&a.Body,
			&a.Summary,
			&authors,
			&images,
			&entities,
			&a.Language,
			&a.ContentHash,
			&simhash,
			&a.PublishedAt,
			&a.IngestedAt,
			&cluster,
			&a.EmbedAttempts,
			&a.FactCheckStatus,
		)
		if err != nil {
			return nil, err
		}
		a.Authors = decodeList(authors)
		a.Images = decodeList(images)
		a.Entities = decodeList(entities)
		a.TitleSimhash = uint64(simhash)
		if cluster.Valid {
			a.ClusterID = cluster.String
		}
		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return articles, nil
}
