package storage

import "time"

// ReadState selects articles by read flag in a filtered query.
type ReadState string

const (
	ReadStateAll    ReadState = "ALL"
	ReadStateRead   ReadState = "READ"
	ReadStateUnread ReadState = "UNREAD"
)

type Feed struct {
	ID   int64
	Name string
	URL  string
}

type Category struct {
	ID   int64
	Name string
}

// Article is a single feed item. Summary and Category are nil until the
// inference worker has filled them in; Content is cleared to "" at that
// point to bound database growth.
type Article struct {
	ID          int64
	FeedID      int64
	Title       string
	Link        string
	Content     string
	PublishedAt time.Time
	Summary     *string
	Category    *string
	IsRead      bool
}

// ArticleFilter combines the three orthogonal list filters. A nil FeedID or
// Category means "all".
type ArticleFilter struct {
	FeedID    *int64
	ReadState ReadState
	Category  *string
}

// Store defines the persistence interface for the article database.
type Store interface {
	Close() error

	// Feeds
	AddFeed(name, url string) (int64, error)
	GetAllFeeds() ([]Feed, error)
	DeleteFeed(feedID int64) error

	// Categories
	AddCategory(name string) error
	GetAllCategories() ([]Category, error)
	DeleteCategory(categoryID int64) error
	CategoryCount() (int, error)
	GetUsedCategories() ([]string, error)

	// Articles
	InsertArticles(articles []Article) (int, error)
	GetArticle(articleID int64) (*Article, error)
	NextUnprocessedArticleID() (int64, error)
	UnprocessedCount() (int, error)
	MarkProcessed(articleID int64, summary string, category *string) error
	UpdateReadStatus(articleID int64, read bool) error
	GetFilteredArticles(filter ArticleFilter) ([]Article, error)

	// Changed returns a channel that is closed on the next mutation.
	// Callers re-subscribe after each signal.
	Changed() <-chan struct{}
}
