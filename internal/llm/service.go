package llm

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"text/template"
	"time"
)

//go:embed prompts/summarize.txt
var summarizePrompt string

//go:embed prompts/categorize.txt
var categorizePrompt string

// FallbackTag is returned by Categorize when the model's answer matches no
// candidate, generation fails, or the runtime is not initialized.
const FallbackTag = "#Sonstiges"

// DefaultCategorizeChars caps the text handed to the classifier prompt.
// Very long feed descriptions otherwise overflow the context window.
const DefaultCategorizeChars = 2500

// Generator is the execution backend behind the service. Load prepares the
// model on the requested backend; Generate runs one prompt to completion.
type Generator interface {
	Load(ctx context.Context, gpu bool) error
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}

// Service adapts the local model runtime for the inference pipeline:
// initialization with GPU-to-CPU fallback, chunked summarization, and
// constrained categorization. Calls are serialized by the owning worker;
// only the readiness flag is read concurrently.
type Service struct {
	gen             Generator
	categorizeChars int
	initialized     atomic.Bool
}

// NewService creates a runtime adapter over the given generator backend.
func NewService(gen Generator, categorizeChars int) *Service {
	if categorizeChars <= 0 {
		categorizeChars = DefaultCategorizeChars
	}
	return &Service{gen: gen, categorizeChars: categorizeChars}
}

// Ready reports whether Initialize has succeeded since the last Close.
func (s *Service) Ready() bool {
	return s.initialized.Load()
}

// Initialize prepares the runtime for the model at modelPath. It tries the
// GPU backend first and falls back to CPU; it fails only when both fail.
// Calling it while already initialized is a no-op.
//
// Before loading, the model file's mtime is touched and the local inference
// cache is cleared. Serialized driver caches from a previous session are
// known to crash warm restarts; a fresh timestamp and an empty cache dir
// force re-compilation instead.
func (s *Service) Initialize(ctx context.Context, modelPath, cacheDir string) error {
	if s.initialized.Load() {
		return nil
	}

	now := time.Now()
	if err := os.Chtimes(modelPath, now, now); err != nil {
		log.Printf("llm: failed to touch model file: %v", err)
	}
	clearCacheDir(cacheDir)

	if err := s.gen.Load(ctx, true); err != nil {
		log.Printf("llm: GPU init failed, retrying on CPU: %v", err)
		if cpuErr := s.gen.Load(ctx, false); cpuErr != nil {
			return fmt.Errorf("model init failed on GPU (%v) and CPU: %w", err, cpuErr)
		}
	}

	s.initialized.Store(true)
	return nil
}

// Summarize runs the editorial prompt over one chunk and returns the
// trimmed response. Generation failures are converted to sentinel text so
// a single bad prompt never aborts the pipeline.
func (s *Service) Summarize(ctx context.Context, chunk string) string {
	if !s.initialized.Load() {
		return "Fehler: Modell nicht initialisiert."
	}

	prompt, err := renderPrompt(summarizePrompt, map[string]any{"Text": chunk})
	if err != nil {
		return fmt.Sprintf("Fehler bei der Zusammenfassung: %v", err)
	}

	response, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		log.Printf("llm: summarization failed: %v", err)
		return fmt.Sprintf("Fehler bei der Zusammenfassung: %v", err)
	}
	return strings.TrimSpace(response)
}

// Categorize classifies text into exactly one of the candidate tags. The
// raw model answer is validated against the candidates; anything else maps
// to FallbackTag, so the result is always a candidate or the fallback.
func (s *Service) Categorize(ctx context.Context, text string, tags []string) string {
	if !s.initialized.Load() || len(tags) == 0 {
		return FallbackTag
	}

	if len(text) > s.categorizeChars {
		text = text[:s.categorizeChars] + "..."
	}

	prompt, err := renderPrompt(categorizePrompt, map[string]any{
		"Tags": strings.Join(tags, ", "),
		"Text": text,
	})
	if err != nil {
		return FallbackTag
	}

	response, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		log.Printf("llm: categorization failed: %v", err)
		return FallbackTag
	}

	cleaned := strings.TrimSpace(response)
	for _, tag := range tags {
		if cleaned == tag {
			return cleaned
		}
	}
	return FallbackTag
}

// Close releases the runtime and resets the initialized state. Safe to
// call repeatedly; an in-flight generate call runs to completion.
func (s *Service) Close() {
	if err := s.gen.Close(); err != nil {
		log.Printf("llm: close: %v", err)
	}
	s.initialized.Store(false)
}

func clearCacheDir(cacheDir string) {
	if cacheDir == "" {
		return
	}
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		os.RemoveAll(filepath.Join(cacheDir, entry.Name()))
	}
}

func renderPrompt(promptTemplate string, data any) (string, error) {
	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
