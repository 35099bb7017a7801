package notebook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"polyglot/internal/provider"
	"polyglot/internal/translator"
)

const sampleNotebook = `{
 "cells": [
  {
   "cell_type": "markdown",
   "metadata": {},
   "source": ["# Title\n", "Some prose."]
  },
  {
   "cell_type": "code",
   "execution_count": 3,
   "metadata": {},
   "outputs": [{"output_type": "stream", "text": ["hi\n"]}],
   "source": ["x = 1\n", "print(x)\n"]
  },
  {
   "cell_type": "raw",
   "metadata": {},
   "source": ["raw text"]
  }
 ],
 "metadata": {"kernelspec": {"name": "python3"}},
 "nbformat": 4,
 "nbformat_minor": 5
}`

func TestParse_Shape(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(nb.Cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(nb.Cells))
	}
	kinds := []string{CellMarkdown, CellCode, CellRaw}
	for i, want := range kinds {
		if nb.Cells[i].CellType != want {
			t.Errorf("cell %d: expected %s, got %s", i, want, nb.Cells[i].CellType)
		}
	}
	if nb.Cells[1].SourceText() != "x = 1\nprint(x)\n" {
		t.Errorf("code cell source wrong: %q", nb.Cells[1].SourceText())
	}
	if nb.Cells[1].ExecutionCount == nil || *nb.Cells[1].ExecutionCount != 3 {
		t.Error("execution count lost")
	}
	if nb.NBFormat != 4 || nb.NBFormatMinor != 5 {
		t.Error("format version lost")
	}
}

func TestParse_SingleStringSource(t *testing.T) {
	raw := `{"cells": [{"cell_type": "code", "source": "print('hi')"}], "metadata": {}}`
	nb, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if nb.Cells[0].SourceText() != "print('hi')" {
		t.Errorf("string source not handled: %q", nb.Cells[0].SourceText())
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := Parse([]byte("{ nope")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRoundTrip(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	raw, err := nb.ToJSON()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	again, err := Parse(raw)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}

	if len(again.Cells) != len(nb.Cells) {
		t.Fatalf("cell count changed: %d -> %d", len(nb.Cells), len(again.Cells))
	}
	for i := range nb.Cells {
		if again.Cells[i].CellType != nb.Cells[i].CellType {
			t.Errorf("cell %d kind changed", i)
		}
		if again.Cells[i].SourceText() != nb.Cells[i].SourceText() {
			t.Errorf("cell %d source changed", i)
		}
	}
}

// stubProvider is a minimal healthy provider for transformer tests.
type stubProvider struct {
	mu   sync.Mutex
	fail bool
}

func (s *stubProvider) Name() string                         { return "offline" }
func (s *stubProvider) Initialize(ctx context.Context) error { return nil }
func (s *stubProvider) HealthProbe(ctx context.Context) provider.Status {
	return provider.StatusHealthy
}
func (s *stubProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }
func (s *stubProvider) Close() error                        { return nil }

func (s *stubProvider) Translate(ctx context.Context, code, sourceLang, targetLang string, opts provider.TranslateOptions) (string, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", 0, errors.New("provider down")
	}
	return "// translated\n" + code, 0.7, nil
}

func (s *stubProvider) Explain(ctx context.Context, code, language string, lineByLine bool) (string, error) {
	return "", nil
}

func newStubEngine(t *testing.T, stub *stubProvider) *translator.Engine {
	t.Helper()
	registry := provider.NewRegistry(nil)
	registry.Register("offline", func(cfg provider.Config) (provider.Provider, error) { return stub, nil })
	if _, err := registry.Create(context.Background(), "offline", provider.Config{ProbePeriod: time.Hour}); err != nil {
		t.Fatalf("failed to create stub provider: %v", err)
	}
	t.Cleanup(registry.Shutdown)

	e := translator.NewEngine(translator.Options{Registry: registry})
	e.RebuildChain()
	return e
}

func TestTransformer_Translate(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	engine := newStubEngine(t, &stubProvider{})
	translated, stats, err := NewTransformer(engine).Translate(context.Background(), nb, "Python", "JavaScript", "")
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if stats.TotalCells != 3 || stats.CodeCells != 1 || stats.MarkdownCells != 1 {
		t.Errorf("stats wrong: %+v", stats)
	}
	if stats.TranslatedCells != 1 || stats.FailedCells != 0 {
		t.Errorf("translation counts wrong: %+v", stats)
	}

	code := translated.Cells[1]
	if !strings.HasPrefix(code.SourceText(), "// translated") {
		t.Errorf("code cell not translated: %q", code.SourceText())
	}
	if len(code.Outputs) != 0 {
		t.Error("outputs not cleared")
	}
	if code.ExecutionCount != nil {
		t.Error("execution count not cleared")
	}

	meta, ok := code.Metadata["translation"].(map[string]any)
	if !ok {
		t.Fatal("translation metadata missing")
	}
	if meta["source_lang"] != "Python" || meta["target_lang"] != "JavaScript" {
		t.Errorf("translation metadata wrong: %+v", meta)
	}
	if meta["confidence"] != 0.7 {
		t.Errorf("confidence not recorded: %v", meta["confidence"])
	}

	// Markdown passes through untouched.
	if translated.Cells[0].SourceText() != nb.Cells[0].SourceText() {
		t.Error("markdown cell modified")
	}
	// Kernel metadata swapped to the target language template.
	kernel, ok := translated.Metadata["kernelspec"].(map[string]any)
	if !ok || kernel["language"] != "javascript" {
		t.Errorf("kernel metadata not updated: %+v", translated.Metadata["kernelspec"])
	}
	// The input notebook stays unmodified.
	if nb.Cells[1].SourceText() != "x = 1\nprint(x)\n" {
		t.Error("original notebook mutated")
	}
}

func TestTransformer_FailedCellKeepsOriginal(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	engine := newStubEngine(t, &stubProvider{fail: true})
	translated, stats, err := NewTransformer(engine).Translate(context.Background(), nb, "Python", "JavaScript", "")
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if stats.FailedCells != 1 || stats.TranslatedCells != 0 {
		t.Errorf("expected one failed cell: %+v", stats)
	}
	if len(stats.Errors) != 1 || stats.Errors[0].CellIndex != 1 {
		t.Errorf("error record wrong: %+v", stats.Errors)
	}

	source := translated.Cells[1].SourceText()
	if !strings.Contains(source, "# Translation failed") {
		t.Errorf("missing error marker: %q", source)
	}
	if !strings.Contains(source, "x = 1") {
		t.Errorf("original source dropped: %q", source)
	}
}

func TestFromSnippets(t *testing.T) {
	nb := FromSnippets([]string{"print(1)", "print(2)"}, "Python", []string{"First"})

	if len(nb.Cells) != 3 {
		t.Fatalf("expected 3 cells (1 header + 2 code), got %d", len(nb.Cells))
	}
	if nb.Cells[0].CellType != CellMarkdown || !strings.Contains(nb.Cells[0].SourceText(), "First") {
		t.Error("header cell wrong")
	}
	if nb.Cells[1].CellType != CellCode || nb.Cells[2].CellType != CellCode {
		t.Error("code cells wrong")
	}
	kernel, ok := nb.Metadata["kernelspec"].(map[string]any)
	if !ok || kernel["name"] != "python3" {
		t.Error("kernel metadata missing")
	}
}

func TestToJSON_CodeCellAlwaysCarriesOutputs(t *testing.T) {
	nb := FromSnippets([]string{"x = 1"}, "Python", nil)
	raw, err := nb.ToJSON()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	var doc struct {
		Cells []map[string]json.RawMessage `json:"cells"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if _, ok := doc.Cells[0]["outputs"]; !ok {
		t.Error("code cell missing outputs key")
	}
	if _, ok := doc.Cells[0]["execution_count"]; !ok {
		t.Error("code cell missing execution_count key")
	}
}
