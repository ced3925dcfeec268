package view

import (
	"context"
	"log"
	"sync"

	"github.com/jhartung/presseschau/internal/storage"
)

// Event is a one-shot signal to the presentation layer. Consumers switch
// exhaustively over the concrete types.
type Event interface{ event() }

// ScrollToTop asks the article list to reset its scroll position; emitted
// whenever a filter changes.
type ScrollToTop struct{}

// Notice carries a user-facing message (e.g. new-article counts).
type Notice struct{ Message string }

func (ScrollToTop) event() {}
func (Notice) event()      {}

// Controller derives the live article list from the store and the three
// orthogonal filters (feed, read state, category). Changing a filter swaps
// in a fresh query atomically; watchers always see a complete snapshot for
// exactly one filter combination, never a patched list.
type Controller struct {
	store storage.Store

	mu            sync.Mutex
	filter        storage.ArticleFilter
	filterChanged chan struct{}

	events chan Event
}

// NewController creates a controller with all filters cleared.
func NewController(store storage.Store) *Controller {
	return &Controller{
		store:         store,
		filter:        storage.ArticleFilter{ReadState: storage.ReadStateAll},
		filterChanged: make(chan struct{}),
		events:        make(chan Event, 16),
	}
}

// Events returns the UI event stream. Events are dropped when nobody
// drains the channel; they are hints, not state.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Emit pushes an event without ever blocking the caller.
func (c *Controller) Emit(e Event) {
	select {
	case c.events <- e:
	default:
	}
}

// SetFeed filters the list to one feed; nil means all feeds.
func (c *Controller) SetFeed(feedID *int64) {
	c.mu.Lock()
	c.filter.FeedID = feedID
	c.bumpLocked()
	c.mu.Unlock()
	c.Emit(ScrollToTop{})
}

// SetReadState filters the list by read flag.
func (c *Controller) SetReadState(state storage.ReadState) {
	c.mu.Lock()
	c.filter.ReadState = state
	c.bumpLocked()
	c.mu.Unlock()
	c.Emit(ScrollToTop{})
}

// SetCategory filters the list to one category tag; nil means all.
func (c *Controller) SetCategory(category *string) {
	c.mu.Lock()
	c.filter.Category = category
	c.bumpLocked()
	c.mu.Unlock()
	c.Emit(ScrollToTop{})
}

// Filter returns the current filter combination.
func (c *Controller) Filter() storage.ArticleFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

func (c *Controller) bumpLocked() {
	close(c.filterChanged)
	c.filterChanged = make(chan struct{})
}

func (c *Controller) filterSignal() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filterChanged
}

// Articles returns the current filtered snapshot, newest first.
func (c *Controller) Articles() ([]storage.Article, error) {
	return c.store.GetFilteredArticles(c.Filter())
}

// UsedCategories returns the configured categories that are present on at
// least one article — the set shown as filter chips. The full configured
// list (AllCategories) is for the management UI.
func (c *Controller) UsedCategories() ([]storage.Category, error) {
	all, err := c.store.GetAllCategories()
	if err != nil {
		return nil, err
	}
	used, err := c.store.GetUsedCategories()
	if err != nil {
		return nil, err
	}

	inUse := make(map[string]bool, len(used))
	for _, name := range used {
		inUse[name] = true
	}
	var result []storage.Category
	for _, cat := range all {
		if inUse[cat.Name] {
			result = append(result, cat)
		}
	}
	return result, nil
}

// AllCategories returns every configured category tag.
func (c *Controller) AllCategories() ([]storage.Category, error) {
	return c.store.GetAllCategories()
}

// Watch delivers a fresh filtered snapshot now and after every store
// mutation or filter change, until ctx is cancelled. A slow consumer only
// ever sees the latest snapshot; intermediate ones are replaced.
func (c *Controller) Watch(ctx context.Context) <-chan []storage.Article {
	out := make(chan []storage.Article, 1)

	go func() {
		defer close(out)
		for {
			// Grab both signals before querying so a mutation between
			// query and wait is not lost.
			storeSignal := c.store.Changed()
			filterSignal := c.filterSignal()

			articles, err := c.Articles()
			if err != nil {
				log.Printf("view: query failed: %v", err)
			} else {
				// Latest-wins: replace a stale undelivered snapshot.
				select {
				case out <- articles:
				default:
					select {
					case <-out:
					default:
					}
					out <- articles
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-storeSignal:
			case <-filterSignal:
			}
		}
	}()
	return out
}
