package worker

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jhartung/presseschau/internal/llm"
	"github.com/jhartung/presseschau/internal/storage"
)

// FailedSummaryPlaceholder is stored when every chunk of an article yields
// an empty response. A non-null summary keeps the article out of the
// unprocessed queue, so it can never wedge the pipeline.
const FailedSummaryPlaceholder = "Generierung fehlgeschlagen."

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPaceInterval = 1500 * time.Millisecond
)

// Worker is the background inference loop: it repeatedly picks the most
// recently published unprocessed article, categorizes and summarizes it
// through the model runtime, and writes the results back. Exactly one
// worker runs per process; all model calls go through it sequentially.
type Worker struct {
	store      storage.Store
	svc        *llm.Service
	chunkChars int

	pollInterval time.Duration
	paceInterval time.Duration

	summarizing atomic.Bool
	processed   atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an inference worker. Zero intervals fall back to the
// defaults (~2s idle poll, ~1.5s pacing between articles).
func New(store storage.Store, svc *llm.Service, chunkChars int, pollInterval, paceInterval time.Duration) *Worker {
	if chunkChars <= 0 {
		chunkChars = llm.DefaultChunkChars
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if paceInterval <= 0 {
		paceInterval = DefaultPaceInterval
	}
	return &Worker{
		store:        store,
		svc:          svc,
		chunkChars:   chunkChars,
		pollInterval: pollInterval,
		paceInterval: paceInterval,
	}
}

// Summarizing reports whether the worker is currently processing an article.
func (w *Worker) Summarizing() bool {
	return w.summarizing.Load()
}

// Processed returns the number of articles completed since Start.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

// Start launches the background loop. Calling Start on a running worker is
// a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx)
	log.Printf("worker: started (poll=%s, pace=%s)", w.pollInterval, w.paceInterval)
}

// Stop cancels the loop and waits for the current cycle to finish. An
// in-flight model call runs to completion; the loop observes cancellation
// at its next suspension point.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("worker: stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	for {
		if ctx.Err() != nil {
			return
		}

		if !w.svc.Ready() {
			if !sleep(ctx, w.pollInterval) {
				return
			}
			continue
		}

		articleID, err := w.store.NextUnprocessedArticleID()
		if err != nil {
			log.Printf("worker: queue query failed: %v", err)
			articleID = 0
		}
		if articleID == 0 {
			w.summarizing.Store(false)
			if !sleep(ctx, w.pollInterval) {
				return
			}
			continue
		}

		w.summarizing.Store(true)
		if err := w.processArticle(ctx, articleID); err != nil {
			// Contained: the article stays unprocessed and is retried
			// on a later cycle.
			log.Printf("worker: article %d failed: %v", articleID, err)
		} else {
			w.processed.Add(1)
		}

		// Yield CPU/GPU back to the foreground between inferences.
		if !sleep(ctx, w.paceInterval) {
			return
		}
	}
}

// processArticle fills in the missing summary and/or category for one
// article and persists the result with the raw content cleared.
func (w *Worker) processArticle(ctx context.Context, articleID int64) error {
	article, err := w.store.GetArticle(articleID)
	if err != nil {
		return err
	}

	category := article.Category
	if category == nil {
		categories, err := w.store.GetAllCategories()
		if err != nil {
			return err
		}
		if len(categories) > 0 {
			tags := make([]string, len(categories))
			for i, c := range categories {
				tags[i] = c.Name
			}
			result := w.svc.Categorize(ctx, article.Title+"\n"+article.Content, tags)
			category = &result
		}
	}

	summary := article.Summary
	if summary == nil {
		var combined strings.Builder
		for _, chunk := range llm.ChunkText(article.Content, w.chunkChars) {
			combined.WriteString(w.svc.Summarize(ctx, chunk))
			combined.WriteString("\n")
		}
		final := strings.TrimSpace(combined.String())
		if final == "" {
			final = FailedSummaryPlaceholder
		}
		summary = &final
	}

	return w.store.MarkProcessed(articleID, *summary, category)
}

// sleep waits for the duration or context cancellation; it returns false
// when the context was cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
