// Package normalize turns raw fetched items into deduplicated, entity
// tagged articles. Ingestion is idempotent: feeding the same batch twice
// produces the same stored rows.
package normalize

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/fetch"
	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/store"
)

// syndicationScanLimit caps how many recent articles the cross-source
// headline check compares against.
const syndicationScanLimit = 500

// summaryMaxChars bounds the stored summary.
const summaryMaxChars = 500

// Normalizer validates, canonicalizes, and deduplicates fetched items.
type Normalizer struct {
	store   *store.Store
	sources *model.Registry
	cfg     config.NormalizeConfig
	logger  *log.Logger
}

// New builds a Normalizer around the given store and source registry.
func New(st *store.Store, sources *model.Registry, cfg config.NormalizeConfig, logger *log.Logger) *Normalizer {
	return &Normalizer{store: st, sources: sources, cfg: cfg, logger: logger}
}

// Result counts what one ingest batch did.
type Result struct {
	Processed  int // items examined
	New        int // articles inserted
	Duplicates int // exact or fuzzy duplicates dropped
	Skipped    int // data-quality rejects
}

// Ingest runs the full chain on a fetched batch: normalize each item,
// drop duplicates, save the survivors. A malformed item is skipped and
// logged, never aborts the batch; only store failures do.
func (n *Normalizer) Ingest(ctx context.Context, items []fetch.Item, now time.Time) (Result, error) {
	var res Result
	window := time.Duration(n.cfg.DedupWindowMinutes) * time.Minute

	var batch []model.Article
	seenURL := make(map[string]struct{})

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++

		a, err := n.normalizeOne(item, now)
		if err != nil {
			res.Skipped++
			n.logger.Debug("skipping item", "url", item.URL, "feed", item.FeedName, "err", err)
			continue
		}

		if _, ok := seenURL[a.URL]; ok {
			res.Duplicates++
			continue
		}
		dup, err := n.duplicateInStore(a, window)
		if err != nil {
			return res, fmt.Errorf("normalize: duplicate check: %w", err)
		}
		if !dup {
			dup = duplicateInBatch(a, batch, window, n.cfg)
		}
		if dup {
			res.Duplicates++
			continue
		}

		seenURL[a.URL] = struct{}{}
		batch = append(batch, a)
	}

	inserted, err := n.store.SaveArticles(batch)
	if err != nil {
		return res, fmt.Errorf("normalize: save articles: %w", err)
	}
	res.New = inserted
	// Rows the insert ignored were concurrent duplicates.
	res.Duplicates += len(batch) - inserted

	return res, nil
}

// normalizeOne builds an Article from a raw item, or reports a
// data-quality error the caller should skip over.
func (n *Normalizer) normalizeOne(item fetch.Item, now time.Time) (model.Article, error) {
	canonical, host, err := CanonicalURL(item.URL)
	if err != nil {
		return model.Article{}, err
	}

	title := StripHTML(item.Title)
	if title == "" {
		return model.Article{}, fmt.Errorf("normalize: empty title")
	}

	body := StripHTML(item.Content)
	if body == "" {
		body = StripHTML(item.Summary)
	}
	summary := Truncate(StripHTML(item.Summary), summaryMaxChars)
	if summary == "" && body != "" {
		summary = Truncate(body, summaryMaxChars)
	}

	published := item.Published
	if published.IsZero() {
		published = now
	}
	// Feed clocks drift; a timestamp from the future would pin the
	// article at the top of every recency window.
	if published.After(now) {
		published = now
	}

	source := SourceDomain(host)
	info, known := n.sources.Lookup(source)

	sourceName := item.FeedName
	language := item.Language
	if known {
		if info.Name != "" {
			sourceName = info.Name
		}
		if language == "" {
			language = info.Language
		}
	}
	if sourceName == "" {
		sourceName = source
	}
	if language == "" {
		language = "en"
	}

	return model.Article{
		ID:           model.HashID(canonical),
		URL:          canonical,
		Source:       source,
		SourceName:   sourceName,
		Title:        title,
		Body:         body,
		Summary:      summary,
		Authors:      item.Authors,
		Images:       item.Images,
		Entities:     ExtractEntities(title, body),
		Language:     language,
		ContentHash:  model.ContentHashOf(Clean(title + " " + body)),
		TitleSimhash: Simhash(title),
		PublishedAt:  published.UTC(),
		IngestedAt:   now.UTC(),
	}, nil
}

// duplicateInStore checks the three dedup keys against persisted
// articles: exact canonical URL, near-duplicate title from the same
// source inside the window, and verbatim syndicated headlines across
// sources at the stricter distance.
func (n *Normalizer) duplicateInStore(a model.Article, window time.Duration) (bool, error) {
	existing, err := n.store.FindByURL(a.URL)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}

	since := a.PublishedAt.Add(-window)

	recent, err := n.store.FindRecentBySource(a.Source, since)
	if err != nil {
		return false, err
	}
	for _, r := range recent {
		if titleDup(a, r, window, n.cfg.MaxTitleDistance) {
			return true, nil
		}
	}

	if n.cfg.SyndicationDistance > 0 {
		others, err := n.store.FindRecent(since, syndicationScanLimit)
		if err != nil {
			return false, err
		}
		for _, r := range others {
			if r.Source == a.Source {
				continue
			}
			if titleDup(a, r, window, n.cfg.SyndicationDistance) {
				return true, nil
			}
		}
	}

	return false, nil
}

// duplicateInBatch applies the same fuzzy rules against articles
// accepted earlier in this batch.
func duplicateInBatch(a model.Article, batch []model.Article, window time.Duration, cfg config.NormalizeConfig) bool {
	for _, b := range batch {
		maxDist := cfg.SyndicationDistance
		if b.Source == a.Source {
			maxDist = cfg.MaxTitleDistance
		}
		if maxDist > 0 && titleDup(a, b, window, maxDist) {
			return true
		}
	}
	return false
}

func titleDup(a, b model.Article, window time.Duration, maxDist int) bool {
	gap := a.PublishedAt.Sub(b.PublishedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > window {
		return false
	}
	return HammingDistance(a.TitleSimhash, b.TitleSimhash) <= maxDist
}
