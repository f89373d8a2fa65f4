// Package fetch retrieves raw items from configured RSS/Atom feeds and
// converts them into the neutral Item shape the normalizer consumes.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

// Feed is one configured feed endpoint.
type Feed struct {
	Name string // Display name
	URL  string // Feed URL
}

// Item is a raw fetched entry before normalization. No identity yet;
// the normalizer derives ids from the canonical URL.
type Item struct {
	URL       string
	Title     string
	Summary   string
	Content   string
	Authors   []string
	Images    []string
	Language  string
	FeedName  string
	Published time.Time
	Fetched   time.Time
}

// Fetcher retrieves items from feed sources.
type Fetcher struct {
	client        *http.Client
	maxConcurrent int
}

// NewFetcher creates a Fetcher with the given HTTP timeout and
// concurrency ceiling for FetchAll.
func NewFetcher(timeout time.Duration, maxConcurrent int) *Fetcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Fetcher{
		client:        &http.Client{Timeout: timeout},
		maxConcurrent: maxConcurrent,
	}
}

// Fetch retrieves items from one feed. Returns items and any error.
// Does NOT store items - caller decides what to do with them.
//
// The function respects context cancellation and will return early
// if the context is cancelled.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]Item, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set a user agent to be a good citizen
	req.Header.Set("User-Agent", "Chorus/1.0 (+https://github.com/abelbrown/chorus)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := time.Now()
	lang := feedLanguage(parsed.Language)
	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		items = append(items, convertEntry(entry, feed, lang, now))
	}

	return items, nil
}

// FetchAll retrieves every feed concurrently, bounded by the fetcher's
// concurrency ceiling. One failing feed never blocks the others; its
// error is collected and returned alongside whatever succeeded.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []Feed) ([]Item, []error) {
	var (
		mu    sync.Mutex
		items []Item
		errs  []error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrent)

	for _, feed := range feeds {
		feed := feed
		g.Go(func() error {
			got, err := f.Fetch(ctx, feed)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", feed.Name, err))
				return nil // keep fetching the rest
			}
			items = append(items, got...)
			return nil
		})
	}

	g.Wait()
	return items, errs
}

// convertEntry maps a gofeed entry to an Item.
func convertEntry(entry *gofeed.Item, feed Feed, lang string, fetchTime time.Time) Item {
	// Published time falls back to the update time, then to fetch time.
	published := fetchTime
	if entry.PublishedParsed != nil {
		published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		published = *entry.UpdatedParsed
	}

	var authors []string
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	var images []string
	if entry.Image != nil && entry.Image.URL != "" {
		images = append(images, entry.Image.URL)
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			images = append(images, enc.URL)
		}
	}

	return Item{
		URL:       entry.Link,
		Title:     entry.Title,
		Summary:   entry.Description,
		Content:   entry.Content,
		Authors:   authors,
		Images:    images,
		Language:  lang,
		FeedName:  feed.Name,
		Published: published,
		Fetched:   fetchTime,
	}
}

// feedLanguage reduces a feed-level language tag like "en-US" to its
// primary subtag. Empty means unknown; the normalizer defaults it.
func feedLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return ""
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return tag
}
