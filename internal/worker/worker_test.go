package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jhartung/presseschau/internal/llm"
	"github.com/jhartung/presseschau/internal/storage"
)

// scriptedGenerator answers classifier prompts with tag and everything
// else with summary.
type scriptedGenerator struct {
	tag     string
	summary string
	genErr  error
}

func (g *scriptedGenerator) Load(ctx context.Context, gpu bool) error { return nil }

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.genErr != nil {
		return "", g.genErr
	}
	if strings.Contains(prompt, "Klassifizierer") {
		return g.tag, nil
	}
	return g.summary, nil
}

func (g *scriptedGenerator) Close() error { return nil }

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func readyService(t *testing.T, gen llm.Generator) *llm.Service {
	t.Helper()
	svc := llm.NewService(gen, 0)
	modelPath := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(modelPath, []byte("weights"), 0644); err != nil {
		t.Fatalf("failed to write model file: %v", err)
	}
	if err := svc.Initialize(context.Background(), modelPath, ""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return svc
}

func seedArticles(t *testing.T, store *storage.SQLiteStore, n int) {
	t.Helper()
	feedID, err := store.AddFeed("Test", "https://example.com/feed")
	if err != nil {
		t.Fatalf("AddFeed failed: %v", err)
	}
	articles := make([]storage.Article, n)
	for i := range articles {
		articles[i] = storage.Article{
			FeedID:      feedID,
			Title:       "Artikel",
			Link:        "https://example.com/" + string(rune('a'+i)),
			Content:     "Der Inhalt des Artikels.",
			PublishedAt: time.Now().Add(-time.Duration(i) * time.Minute),
		}
	}
	if _, err := store.InsertArticles(articles); err != nil {
		t.Fatalf("InsertArticles failed: %v", err)
	}
}

func waitProcessed(t *testing.T, store *storage.SQLiteStore, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := store.UnprocessedCount()
		if err != nil {
			t.Fatalf("UnprocessedCount failed: %v", err)
		}
		total := 0
		all, _ := store.GetFilteredArticles(storage.ArticleFilter{ReadState: storage.ReadStateAll})
		total = len(all)
		if total-count >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d processed articles", want)
}

func newTestWorker(store storage.Store, svc *llm.Service) *Worker {
	return New(store, svc, 0, 20*time.Millisecond, time.Millisecond)
}

func TestWorker_ProcessesAllPendingArticles(t *testing.T) {
	store := newTestStore(t)
	store.AddCategory("#Tech")
	store.AddCategory("#Politik")
	seedArticles(t, store, 3)

	svc := readyService(t, &scriptedGenerator{tag: "#Tech", summary: "Kurzfassung."})
	w := newTestWorker(store, svc)
	w.Start(context.Background())
	defer w.Stop()

	waitProcessed(t, store, 3)

	articles, _ := store.GetFilteredArticles(storage.ArticleFilter{ReadState: storage.ReadStateAll})
	for _, a := range articles {
		if a.Summary == nil || *a.Summary != "Kurzfassung." {
			t.Errorf("article %d summary mismatch: %v", a.ID, a.Summary)
		}
		if a.Category == nil || *a.Category != "#Tech" {
			t.Errorf("article %d category mismatch: %v", a.ID, a.Category)
		}
		if a.Content != "" {
			t.Errorf("article %d content not cleared", a.ID)
		}
	}
	if w.Processed() < 3 {
		t.Errorf("expected at least 3 processed, got %d", w.Processed())
	}
}

func TestWorker_IdlesWhileModelNotReady(t *testing.T) {
	store := newTestStore(t)
	store.AddCategory("#Tech")
	seedArticles(t, store, 1)

	svc := llm.NewService(&scriptedGenerator{tag: "#Tech", summary: "s"}, 0)

	w := newTestWorker(store, svc)
	w.Start(context.Background())
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	count, _ := store.UnprocessedCount()
	if count != 1 {
		t.Errorf("article should stay unprocessed without a ready model, count=%d", count)
	}
	if w.Summarizing() {
		t.Error("worker should not report summarizing while idle")
	}
}

func TestWorker_EmptyGenerationGetsPlaceholder(t *testing.T) {
	store := newTestStore(t)
	store.AddCategory("#Tech")
	seedArticles(t, store, 1)

	// Empty summary responses and garbage categorization.
	svc := readyService(t, &scriptedGenerator{tag: "irgendwas", summary: ""})
	w := newTestWorker(store, svc)
	w.Start(context.Background())
	defer w.Stop()

	waitProcessed(t, store, 1)

	articles, _ := store.GetFilteredArticles(storage.ArticleFilter{ReadState: storage.ReadStateAll})
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	a := articles[0]
	if a.Summary == nil || *a.Summary != FailedSummaryPlaceholder {
		t.Errorf("expected placeholder summary, got %v", a.Summary)
	}
	if a.Category == nil || *a.Category != llm.FallbackTag {
		t.Errorf("expected fallback category, got %v", a.Category)
	}
}

func TestWorker_GenerationErrorStillConverges(t *testing.T) {
	store := newTestStore(t)
	store.AddCategory("#Tech")
	seedArticles(t, store, 1)

	// Every generate call fails; the service converts summarization
	// failures to sentinel text and categorization to the fallback, so
	// the article still ends up processed.
	svc := readyService(t, &scriptedGenerator{genErr: errors.New("inference crashed")})
	w := newTestWorker(store, svc)
	w.Start(context.Background())
	defer w.Stop()

	waitProcessed(t, store, 1)

	count, _ := store.UnprocessedCount()
	if count != 0 {
		t.Errorf("expected no unprocessed articles, got %d", count)
	}
}

func TestWorker_NoCategoriesLeavesCategoryNull(t *testing.T) {
	store := newTestStore(t)
	seedArticles(t, store, 1)

	svc := readyService(t, &scriptedGenerator{summary: "Kurzfassung."})
	w := newTestWorker(store, svc)
	w.Start(context.Background())
	defer w.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		articles, _ := store.GetFilteredArticles(storage.ArticleFilter{ReadState: storage.ReadStateAll})
		if len(articles) == 1 && articles[0].Summary != nil {
			if articles[0].Category != nil {
				t.Errorf("category should stay null without configured categories, got %q", *articles[0].Category)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for summary")
}

func TestWorker_StartIsIdempotentAndStopTerminates(t *testing.T) {
	store := newTestStore(t)
	svc := llm.NewService(&scriptedGenerator{}, 0)

	w := newTestWorker(store, svc)
	w.Start(context.Background())
	w.Start(context.Background())

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not terminate the worker")
	}
}
