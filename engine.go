// Package presseschau aggregates RSS/Atom news feeds into a local SQLite
// store and runs a local language model over them: a background worker
// categorizes and summarizes every new article while the foreground
// filters and reads the results.
package presseschau

import (
	"context"
	"fmt"
	"log"

	"github.com/jhartung/presseschau/internal/feeds"
	"github.com/jhartung/presseschau/internal/llm"
	"github.com/jhartung/presseschau/internal/models"
	"github.com/jhartung/presseschau/internal/notify"
	"github.com/jhartung/presseschau/internal/storage"
	"github.com/jhartung/presseschau/internal/view"
	"github.com/jhartung/presseschau/internal/worker"
)

// defaultFeeds and defaultCategories seed an empty database on first run.
var defaultFeeds = []Feed{
	{Name: "Tagesschau", URL: "https://www.tagesschau.de/xml/rss2"},
	{Name: "Heise", URL: "https://www.heise.de/rss/heise-atom.xml"},
}

var defaultCategories = []string{"#Politik", "#Tech", "#Wirtschaft", "#Lokal"}

// Engine is the public API for the presseschau pipeline. It wraps the
// article store, feed fetcher, model runtime, model file manager, the
// inference worker, and the reactive view state.
type Engine struct {
	store    *storage.SQLiteStore
	fetcher  *feeds.Fetcher
	svc      *llm.Service
	worker   *worker.Worker
	manager  *models.Manager
	view     *view.Controller
	notifier *notify.Notifier
}

// NewEngine creates an engine backed by the given SQLite database. The
// model runtime is created lazily ready: it only contacts Ollama when
// InitializeEngine is called.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = "./presseschau.db"
	}
	if cfg.OllamaBaseURL == "" {
		cfg.OllamaBaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "gemma3:4b"
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "./models"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = cfg.ModelDir + "/cache"
	}
	if cfg.MinModelSizeMB == 0 {
		cfg.MinModelSizeMB = 100
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := seedDefaults(store); err != nil {
		store.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	backend, err := llm.NewOllamaBackend(cfg.OllamaBaseURL, cfg.Model)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create model backend: %w", err)
	}
	svc := llm.NewService(backend, cfg.CategorizeChars)

	viewCtl := view.NewController(store)
	engine := &Engine{
		store:   store,
		fetcher: feeds.NewFetcher(store),
		svc:     svc,
		worker:  worker.New(store, svc, cfg.ChunkChars, cfg.PollInterval, cfg.PaceInterval),
		manager: models.NewManager(cfg.ModelDir, cfg.CacheDir, cfg.MinModelSizeMB),
		view:    viewCtl,
		notifier: notify.NewNotifier(!cfg.Quiet, func(message string) {
			viewCtl.Emit(view.Notice{Message: message})
		}),
	}
	return engine, nil
}

// seedDefaults fills an empty database with starter feeds and categories.
func seedDefaults(store *storage.SQLiteStore) error {
	existing, err := store.GetAllFeeds()
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		for _, f := range defaultFeeds {
			if _, err := store.AddFeed(f.Name, f.URL); err != nil {
				return err
			}
		}
	}

	count, err := store.CategoryCount()
	if err != nil {
		return err
	}
	if count == 0 {
		for _, name := range defaultCategories {
			if err := store.AddCategory(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Model lifecycle

// CheckModelStatus validates the installed model file. It returns the
// model path, or an error when no model is installed or the file was
// deleted as corrupt. It never starts the runtime.
func (e *Engine) CheckModelStatus() (string, error) {
	return e.manager.Check()
}

// InitializeEngine validates the model file and initializes the runtime
// (GPU first, CPU fallback). On failure the engine stays un-ready and the
// user has to re-select a model or restart; there is no automatic retry.
func (e *Engine) InitializeEngine(ctx context.Context) error {
	modelPath, err := e.manager.Check()
	if err != nil {
		e.notifier.EngineError(err.Error())
		return err
	}
	if err := e.svc.Initialize(ctx, modelPath, e.manager.CacheDir()); err != nil {
		e.notifier.EngineError(err.Error())
		return fmt.Errorf("initialize model runtime: %w", err)
	}
	log.Printf("engine: model runtime ready (%s)", modelPath)
	return nil
}

// StopEngine releases the model runtime. The worker observes the lost
// readiness on its next cycle; an in-flight generate call finishes
// naturally.
func (e *Engine) StopEngine() {
	e.svc.Close()
}

// ModelReady reports whether the runtime is initialized.
func (e *Engine) ModelReady() bool {
	return e.svc.Ready()
}

// ImportModel installs a model from a user-selected file (raw model file
// or .tar.gz archive), reporting progress through report (may be nil).
func (e *Engine) ImportModel(srcPath string, report func(models.ImportState)) error {
	return e.manager.Import(srcPath, report)
}

// ModelSize returns a human-readable size of the installed model file.
func (e *Engine) ModelSize() string {
	return e.manager.ModelSize()
}

// DeleteModel stops the runtime and removes the installed model files.
func (e *Engine) DeleteModel() error {
	e.svc.Close()
	return e.manager.DeleteModel()
}

// Worker lifecycle

// StartWorker launches the background inference loop.
func (e *Engine) StartWorker(ctx context.Context) {
	e.worker.Start(ctx)
}

// StopWorker cancels the inference loop and waits for the current cycle.
func (e *Engine) StopWorker() {
	e.worker.Stop()
}

// Ingestion

// FetchAndSummarizeNews runs one manual ingestion pass over every
// configured feed and reports the new-article count to the user. Newly
// inserted articles are picked up by the worker on its next cycle.
func (e *Engine) FetchAndSummarizeNews(ctx context.Context) (*FetchResult, error) {
	stats, err := e.fetcher.FetchAllFeeds(ctx)
	if err != nil {
		return nil, err
	}

	e.notifier.NewArticles(stats.NewArticles)
	if stats.NewArticles > 0 {
		e.view.Emit(view.ScrollToTop{})
	}

	return &FetchResult{
		FeedsTotal:   stats.FeedsTotal,
		FeedsErrored: stats.FeedsErrored,
		NewArticles:  stats.NewArticles,
	}, nil
}

// View state

// SetFeedFilter limits the article list to one feed; nil means all.
func (e *Engine) SetFeedFilter(feedID *int64) {
	e.view.SetFeed(feedID)
}

// SetReadFilter limits the article list by read state.
func (e *Engine) SetReadFilter(filter ReadFilter) {
	e.view.SetReadState(storage.ReadState(filter))
}

// SetCategoryFilter limits the article list to one category; nil means all.
func (e *Engine) SetCategoryFilter(category *string) {
	e.view.SetCategory(category)
}

// Articles returns the current filtered article list, newest first.
func (e *Engine) Articles() ([]Article, error) {
	internal, err := e.view.Articles()
	if err != nil {
		return nil, err
	}
	return articlesFromInternal(internal), nil
}

// WatchArticles delivers a fresh filtered snapshot on every store
// mutation or filter change until ctx is cancelled.
func (e *Engine) WatchArticles(ctx context.Context) <-chan []Article {
	out := make(chan []Article, 1)
	updates := e.view.Watch(ctx)
	go func() {
		defer close(out)
		for snapshot := range updates {
			select {
			case out <- articlesFromInternal(snapshot):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Events returns the UI event stream (scroll resets, notices).
func (e *Engine) Events() <-chan view.Event {
	return e.view.Events()
}

// GetArticle returns a single article by ID.
func (e *Engine) GetArticle(articleID int64) (*Article, error) {
	a, err := e.store.GetArticle(articleID)
	if err != nil {
		return nil, err
	}
	result := articleFromInternal(*a)
	return &result, nil
}

// MarkArticleRead marks an article as read.
func (e *Engine) MarkArticleRead(articleID int64) error {
	return e.store.UpdateReadStatus(articleID, true)
}

// ToggleArticleRead flips an article's read flag.
func (e *Engine) ToggleArticleRead(articleID int64) error {
	a, err := e.store.GetArticle(articleID)
	if err != nil {
		return err
	}
	return e.store.UpdateReadStatus(articleID, !a.IsRead)
}

// Feed and category management

// Feeds returns all configured feed sources.
func (e *Engine) Feeds() ([]Feed, error) {
	internal, err := e.store.GetAllFeeds()
	if err != nil {
		return nil, err
	}
	return feedsFromInternal(internal), nil
}

// AddFeed adds a feed source.
func (e *Engine) AddFeed(name, url string) (int64, error) {
	return e.store.AddFeed(name, url)
}

// DeleteFeed removes a feed and, via cascade, all of its articles.
func (e *Engine) DeleteFeed(feedID int64) error {
	return e.store.DeleteFeed(feedID)
}

// Categories returns the configured categories in use by at least one
// article — the set offered as list filters.
func (e *Engine) Categories() ([]Category, error) {
	internal, err := e.view.UsedCategories()
	if err != nil {
		return nil, err
	}
	return categoriesFromInternal(internal), nil
}

// AllCategories returns every configured category, for the management UI.
func (e *Engine) AllCategories() ([]Category, error) {
	internal, err := e.view.AllCategories()
	if err != nil {
		return nil, err
	}
	return categoriesFromInternal(internal), nil
}

// AddCategory adds a category tag; duplicates are ignored.
func (e *Engine) AddCategory(name string) error {
	return e.store.AddCategory(name)
}

// DeleteCategory removes a category tag. Articles keep their tag string.
func (e *Engine) DeleteCategory(categoryID int64) error {
	return e.store.DeleteCategory(categoryID)
}

// Status returns a snapshot of engine and worker state.
func (e *Engine) Status() (*Status, error) {
	unprocessed, err := e.store.UnprocessedCount()
	if err != nil {
		return nil, err
	}
	modelPath, _ := e.manager.FindModel()
	return &Status{
		ModelInstalled: modelPath != "",
		ModelReady:     e.svc.Ready(),
		Summarizing:    e.worker.Summarizing(),
		Unprocessed:    unprocessed,
		Processed:      e.worker.Processed(),
		ModelSize:      e.manager.ModelSize(),
	}, nil
}

// Close stops the worker, releases the runtime, and closes the database.
func (e *Engine) Close() error {
	e.worker.Stop()
	e.svc.Close()
	return e.store.Close()
}

// --- internal type conversion helpers ---

func articleFromInternal(a storage.Article) Article {
	return Article{
		ID:          a.ID,
		FeedID:      a.FeedID,
		Title:       a.Title,
		Link:        a.Link,
		Content:     a.Content,
		PublishedAt: a.PublishedAt,
		Summary:     a.Summary,
		Category:    a.Category,
		IsRead:      a.IsRead,
	}
}

func articlesFromInternal(articles []storage.Article) []Article {
	out := make([]Article, len(articles))
	for i, a := range articles {
		out[i] = articleFromInternal(a)
	}
	return out
}

func feedsFromInternal(ff []storage.Feed) []Feed {
	out := make([]Feed, len(ff))
	for i, f := range ff {
		out[i] = Feed{ID: f.ID, Name: f.Name, URL: f.URL}
	}
	return out
}

func categoriesFromInternal(cc []storage.Category) []Category {
	out := make([]Category, len(cc))
	for i, c := range cc {
		out[i] = Category{ID: c.ID, Name: c.Name}
	}
	return out
}
