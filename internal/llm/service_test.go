package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeGenerator scripts backend behavior for service tests.
type fakeGenerator struct {
	failGPU    bool
	failCPU    bool
	response   string
	genErr     error
	loadCalls  []bool
	generated  []string
	closeCalls int
}

func (f *fakeGenerator) Load(ctx context.Context, gpu bool) error {
	f.loadCalls = append(f.loadCalls, gpu)
	if gpu && f.failGPU {
		return errors.New("driver crash")
	}
	if !gpu && f.failCPU {
		return errors.New("out of memory")
	}
	return nil
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.generated = append(f.generated, prompt)
	return f.response, f.genErr
}

func (f *fakeGenerator) Close() error {
	f.closeCalls++
	return nil
}

func testModelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(path, []byte("weights"), 0644); err != nil {
		t.Fatalf("failed to write model file: %v", err)
	}
	return path
}

func TestInitialize_GPUFallsBackToCPU(t *testing.T) {
	gen := &fakeGenerator{failGPU: true}
	svc := NewService(gen, 0)

	if err := svc.Initialize(context.Background(), testModelFile(t), ""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !svc.Ready() {
		t.Error("service should be ready after CPU fallback")
	}
	if len(gen.loadCalls) != 2 || gen.loadCalls[0] != true || gen.loadCalls[1] != false {
		t.Errorf("expected GPU then CPU load attempts, got %v", gen.loadCalls)
	}
}

func TestInitialize_FailsWhenBothBackendsFail(t *testing.T) {
	gen := &fakeGenerator{failGPU: true, failCPU: true}
	svc := NewService(gen, 0)

	if err := svc.Initialize(context.Background(), testModelFile(t), ""); err == nil {
		t.Fatal("expected error when both backends fail")
	}
	if svc.Ready() {
		t.Error("service must not report ready after failed init")
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewService(gen, 0)
	path := testModelFile(t)

	if err := svc.Initialize(context.Background(), path, ""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := svc.Initialize(context.Background(), path, ""); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if len(gen.loadCalls) != 1 {
		t.Errorf("expected exactly 1 load call, got %d", len(gen.loadCalls))
	}
}

func TestInitialize_ClearsCacheDir(t *testing.T) {
	cacheDir := t.TempDir()
	stale := filepath.Join(cacheDir, "pipeline.cache")
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatalf("failed to write cache artifact: %v", err)
	}

	svc := NewService(&fakeGenerator{}, 0)
	if err := svc.Initialize(context.Background(), testModelFile(t), cacheDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale cache artifact should have been removed")
	}
}

func TestSummarize_NotInitialized(t *testing.T) {
	svc := NewService(&fakeGenerator{}, 0)
	result := svc.Summarize(context.Background(), "irgendein Text")
	if !strings.Contains(result, "nicht initialisiert") {
		t.Errorf("expected uninitialized sentinel, got %q", result)
	}
}

func TestSummarize_TrimsResponse(t *testing.T) {
	gen := &fakeGenerator{response: "  Eine knappe Zusammenfassung.\n"}
	svc := NewService(gen, 0)
	svc.Initialize(context.Background(), testModelFile(t), "")

	result := svc.Summarize(context.Background(), "Text")
	if result != "Eine knappe Zusammenfassung." {
		t.Errorf("unexpected summary: %q", result)
	}
	if len(gen.generated) != 1 || !strings.Contains(gen.generated[0], "Text") {
		t.Error("chunk text missing from rendered prompt")
	}
}

func TestSummarize_GenerationErrorBecomesSentinel(t *testing.T) {
	gen := &fakeGenerator{genErr: errors.New("context window exceeded")}
	svc := NewService(gen, 0)
	svc.Initialize(context.Background(), testModelFile(t), "")

	result := svc.Summarize(context.Background(), "Text")
	if !strings.Contains(result, "Fehler bei der Zusammenfassung") {
		t.Errorf("expected error sentinel, got %q", result)
	}
}

func TestCategorize_ValidTagAccepted(t *testing.T) {
	gen := &fakeGenerator{response: "#Politik\n"}
	svc := NewService(gen, 0)
	svc.Initialize(context.Background(), testModelFile(t), "")

	got := svc.Categorize(context.Background(), "Bundestag debattiert", []string{"#Tech", "#Politik"})
	if got != "#Politik" {
		t.Errorf("expected #Politik, got %q", got)
	}
}

func TestCategorize_GarbageFallsBack(t *testing.T) {
	gen := &fakeGenerator{response: "RandomGarbage"}
	svc := NewService(gen, 0)
	svc.Initialize(context.Background(), testModelFile(t), "")

	got := svc.Categorize(context.Background(), "irgendwas", []string{"#Tech", "#Politik"})
	if got != FallbackTag {
		t.Errorf("expected fallback tag, got %q", got)
	}
}

func TestCategorize_TotalOverCandidatesPlusFallback(t *testing.T) {
	tags := []string{"#Tech", "#Politik", "#Wirtschaft"}
	responses := []string{"#Tech", "#politik", "Sonstiges", "", "#Tech und #Politik", FallbackTag}

	for _, resp := range responses {
		gen := &fakeGenerator{response: resp}
		svc := NewService(gen, 0)
		svc.Initialize(context.Background(), testModelFile(t), "")

		got := svc.Categorize(context.Background(), "Text", tags)
		valid := got == FallbackTag
		for _, tag := range tags {
			if got == tag {
				valid = true
			}
		}
		if !valid {
			t.Errorf("response %q produced out-of-range category %q", resp, got)
		}
	}
}

func TestCategorize_UninitializedOrNoTags(t *testing.T) {
	svc := NewService(&fakeGenerator{response: "#Tech"}, 0)
	if got := svc.Categorize(context.Background(), "Text", []string{"#Tech"}); got != FallbackTag {
		t.Errorf("uninitialized categorize should return fallback, got %q", got)
	}

	svc.Initialize(context.Background(), testModelFile(t), "")
	if got := svc.Categorize(context.Background(), "Text", nil); got != FallbackTag {
		t.Errorf("categorize with no tags should return fallback, got %q", got)
	}
}

func TestCategorize_TruncatesLongInput(t *testing.T) {
	gen := &fakeGenerator{response: "#Tech"}
	svc := NewService(gen, 100)
	svc.Initialize(context.Background(), testModelFile(t), "")

	svc.Categorize(context.Background(), strings.Repeat("x", 5000), []string{"#Tech"})
	if len(gen.generated) != 1 {
		t.Fatalf("expected 1 generate call, got %d", len(gen.generated))
	}
	if strings.Contains(gen.generated[0], strings.Repeat("x", 200)) {
		t.Error("input was not truncated before prompting")
	}
}

func TestClose_ResetsAndIsRepeatable(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewService(gen, 0)
	svc.Initialize(context.Background(), testModelFile(t), "")

	svc.Close()
	svc.Close()
	if svc.Ready() {
		t.Error("service should not be ready after Close")
	}
	if gen.closeCalls != 2 {
		t.Errorf("expected 2 close calls, got %d", gen.closeCalls)
	}
}
