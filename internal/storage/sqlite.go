package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	changed chan struct{}
}

// NewSQLiteStore opens (or creates) the database at dbPath and initializes
// the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		changed: make(chan struct{}),
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Changed returns the current broadcast channel. It is closed and replaced
// after every successful mutation.
func (s *SQLiteStore) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *SQLiteStore) notify() {
	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// Feed management

// AddFeed adds a new feed source.
func (s *SQLiteStore) AddFeed(name, url string) (int64, error) {
	result, err := s.db.Exec("INSERT INTO feeds (name, url) VALUES (?, ?)", name, url)
	if err != nil {
		return 0, fmt.Errorf("failed to add feed: %w", err)
	}
	s.notify()
	return result.LastInsertId()
}

// GetAllFeeds returns all configured feed sources.
func (s *SQLiteStore) GetAllFeeds() ([]Feed, error) {
	rows, err := s.db.Query("SELECT id, name, url FROM feeds ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var f Feed
		if err := rows.Scan(&f.ID, &f.Name, &f.URL); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// DeleteFeed removes a feed. Its articles are removed via FK CASCADE.
func (s *SQLiteStore) DeleteFeed(feedID int64) error {
	_, err := s.db.Exec("DELETE FROM feeds WHERE id = ?", feedID)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	s.notify()
	return nil
}

// Category management

// AddCategory inserts a category tag, ignoring duplicates.
func (s *SQLiteStore) AddCategory(name string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO categories (name) VALUES (?)", name)
	if err != nil {
		return fmt.Errorf("failed to add category: %w", err)
	}
	s.notify()
	return nil
}

// GetAllCategories returns all configured category tags.
func (s *SQLiteStore) GetAllCategories() ([]Category, error) {
	rows, err := s.db.Query("SELECT id, name FROM categories ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory removes a category tag. Articles keep their category
// string; it just no longer appears in the configured tag list.
func (s *SQLiteStore) DeleteCategory(categoryID int64) error {
	_, err := s.db.Exec("DELETE FROM categories WHERE id = ?", categoryID)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	s.notify()
	return nil
}

// CategoryCount returns the number of configured categories.
func (s *SQLiteStore) CategoryCount() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return count, nil
}

// GetUsedCategories returns the distinct category strings present on at
// least one article.
func (s *SQLiteStore) GetUsedCategories() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT category FROM articles WHERE category IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to get used categories: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan category name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Article management

// InsertArticles batch-inserts articles, silently skipping any whose link
// already exists. Returns the number of genuinely new rows.
func (s *SQLiteStore) InsertArticles(articles []Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO articles (feed_id, title, link, content, published_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, a := range articles {
		result, err := stmt.Exec(a.FeedID, a.Title, a.Link, a.Content, a.PublishedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert article %q: %w", a.Link, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit inserts: %w", err)
	}
	if inserted > 0 {
		s.notify()
	}
	return inserted, nil
}

// GetArticle returns a single article by ID.
func (s *SQLiteStore) GetArticle(articleID int64) (*Article, error) {
	var a Article
	err := s.db.QueryRow(
		`SELECT id, feed_id, title, link, content, published_at, summary, category, is_read
		 FROM articles WHERE id = ?`, articleID,
	).Scan(&a.ID, &a.FeedID, &a.Title, &a.Link, &a.Content, &a.PublishedAt,
		&a.Summary, &a.Category, &a.IsRead)
	if err != nil {
		return nil, fmt.Errorf("failed to get article %d: %w", articleID, err)
	}
	return &a, nil
}

// NextUnprocessedArticleID returns the most recently published article that
// still lacks a summary or category, or 0 when none is pending.
func (s *SQLiteStore) NextUnprocessedArticleID() (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM articles
		 WHERE summary IS NULL OR category IS NULL
		 ORDER BY published_at DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query unprocessed article: %w", err)
	}
	return id, nil
}

// UnprocessedCount returns how many articles still await inference.
func (s *SQLiteStore) UnprocessedCount() (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM articles WHERE summary IS NULL OR category IS NULL",
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed articles: %w", err)
	}
	return count, nil
}

// MarkProcessed stores the inference results and clears the raw content.
// A nil category stays NULL (no categories configured yet).
func (s *SQLiteStore) MarkProcessed(articleID int64, summary string, category *string) error {
	_, err := s.db.Exec(
		"UPDATE articles SET summary = ?, category = ?, content = '' WHERE id = ?",
		summary, category, articleID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark article %d processed: %w", articleID, err)
	}
	s.notify()
	return nil
}

// UpdateReadStatus sets the read flag on an article.
func (s *SQLiteStore) UpdateReadStatus(articleID int64, read bool) error {
	_, err := s.db.Exec("UPDATE articles SET is_read = ? WHERE id = ?", read, articleID)
	if err != nil {
		return fmt.Errorf("failed to update read status: %w", err)
	}
	s.notify()
	return nil
}

// GetFilteredArticles returns articles matching all three filters, newest
// published first.
func (s *SQLiteStore) GetFilteredArticles(filter ArticleFilter) ([]Article, error) {
	var conds []string
	var args []any

	if filter.FeedID != nil {
		conds = append(conds, "feed_id = ?")
		args = append(args, *filter.FeedID)
	}
	switch filter.ReadState {
	case ReadStateRead:
		conds = append(conds, "is_read = 1")
	case ReadStateUnread:
		conds = append(conds, "is_read = 0")
	}
	if filter.Category != nil {
		conds = append(conds, "category = ?")
		args = append(args, *filter.Category)
	}

	query := `SELECT id, feed_id, title, link, content, published_at, summary, category, is_read
	 FROM articles`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY published_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get filtered articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.FeedID, &a.Title, &a.Link, &a.Content,
			&a.PublishedAt, &a.Summary, &a.Category, &a.IsRead); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
