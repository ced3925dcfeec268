package feeds

import (
	"context"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/jhartung/presseschau/internal/storage"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

// Item is a normalized feed entry: plain-text description, resolved link,
// parsed publish time.
type Item struct {
	Title       string
	Link        string
	Description string
	PublishedAt time.Time
}

// FetchStats summarizes one ingestion run over all configured feeds.
type FetchStats struct {
	FeedsTotal   int
	FeedsErrored int
	NewArticles  int
}

// Fetcher downloads and parses RSS/Atom feeds and inserts the day's items
// as articles.
type Fetcher struct {
	parser *gofeed.Parser
	client *http.Client
	policy *bluemonday.Policy
	store  storage.Store

	// now is swapped out in tests to pin the "today" boundary.
	now func() time.Time
}

// NewFetcher creates a feed fetcher writing into the given store.
func NewFetcher(store storage.Store) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = "Presseschau/1.0"
	return &Fetcher{
		parser: parser,
		client: &http.Client{},
		policy: bluemonday.StrictPolicy(),
		store:  store,
		now:    time.Now,
	}
}

// FetchFeed fetches a single feed URL and returns its items published on
// the current calendar day, with HTML stripped from descriptions. Handles
// both RSS 2.0 and Atom; gofeed resolves Atom link rel=alternate entries
// and the published/updated fallback.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "Presseschau/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", url, err)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", url, err)
	}

	today := f.now()
	var items []Item
	for _, entry := range parsed.Items {
		published := f.parseDate(entry)
		if !sameDay(published, today) {
			continue
		}

		title := entry.Title
		if title == "" {
			title = "Kein Titel"
		}

		description := entry.Description
		if description == "" {
			description = entry.Content
		}

		items = append(items, Item{
			Title:       title,
			Link:        entry.Link,
			Description: f.stripHTML(description),
			PublishedAt: published,
		})
	}
	return items, nil
}

// parseDate resolves an item's publish time: gofeed's parsed published or
// updated timestamp, then a lenient parse of the raw strings, then "now"
// so an undated item still lands in today's batch.
func (f *Fetcher) parseDate(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}

	for _, raw := range []string{entry.Published, entry.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t
		}
	}

	if entry.Published != "" || entry.Updated != "" {
		log.Printf("fetcher: failed to parse date %q", entry.Published+entry.Updated)
	}
	return f.now()
}

func (f *Fetcher) stripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(f.policy.Sanitize(s)))
}

// sameDay reports whether both timestamps fall on the same local calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

// StoreItems inserts fetched items as unprocessed articles for the feed,
// ignoring links already present. Returns the number of new articles.
func (f *Fetcher) StoreItems(feedID int64, items []Item) (int, error) {
	articles := make([]storage.Article, len(items))
	for i, item := range items {
		articles[i] = storage.Article{
			FeedID:      feedID,
			Title:       item.Title,
			Link:        item.Link,
			Content:     item.Description,
			PublishedAt: item.PublishedAt,
		}
	}
	return f.store.InsertArticles(articles)
}

// FetchAllFeeds runs one ingestion pass over every configured feed. A feed
// that fails to fetch or parse contributes zero items and does not abort
// the others.
func (f *Fetcher) FetchAllFeeds(ctx context.Context) (*FetchStats, error) {
	sources, err := f.store.GetAllFeeds()
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}

	stats := &FetchStats{FeedsTotal: len(sources)}
	for _, source := range sources {
		feedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		items, err := f.FetchFeed(feedCtx, source.URL)
		cancel()
		if err != nil {
			log.Printf("fetcher: %v", err)
			stats.FeedsErrored++
			continue
		}

		stored, err := f.StoreItems(source.ID, items)
		if err != nil {
			log.Printf("fetcher: failed to store articles from %s: %v", source.URL, err)
			continue
		}
		stats.NewArticles += stored
	}
	return stats, nil
}
