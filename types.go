package presseschau

import "time"

// EngineConfig configures the Presseschau content engine.
type EngineConfig struct {
	DBPath        string
	OllamaBaseURL string
	Model         string

	ModelDir       string
	CacheDir       string
	MinModelSizeMB int64

	PollInterval time.Duration // worker idle poll (~2s)
	PaceInterval time.Duration // delay between processed articles (~1.5s)

	ChunkChars      int // summarization chunk budget
	CategorizeChars int // classifier input cap

	Quiet bool // suppress stdout notifications (tests, embedding)
}

// ReadFilter selects articles by read state.
type ReadFilter string

const (
	ReadFilterAll    ReadFilter = "ALL"
	ReadFilterRead   ReadFilter = "READ"
	ReadFilterUnread ReadFilter = "UNREAD"
)

// Article is a feed item. Summary and Category are nil until the
// inference worker has processed it.
type Article struct {
	ID          int64     `json:"id"`
	FeedID      int64     `json:"feed_id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Content     string    `json:"content,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Summary     *string   `json:"summary,omitempty"`
	Category    *string   `json:"category,omitempty"`
	IsRead      bool      `json:"is_read"`
}

// Processed reports whether the inference worker has finished this article.
func (a Article) Processed() bool {
	return a.Summary != nil && a.Category != nil
}

// Feed is a configured RSS/Atom source.
type Feed struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Category is a configured tag label, e.g. "#Politik".
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FetchResult summarizes one manual ingestion run.
type FetchResult struct {
	FeedsTotal   int `json:"feeds_total"`
	FeedsErrored int `json:"feeds_errored"`
	NewArticles  int `json:"new_articles"`
}

// Status is a snapshot of engine and worker state.
type Status struct {
	ModelInstalled bool   `json:"model_installed"`
	ModelReady     bool   `json:"model_ready"`
	Summarizing    bool   `json:"summarizing"`
	Unprocessed    int    `json:"unprocessed"`
	Processed      int64  `json:"processed"`
	ModelSize      string `json:"model_size"`
}
