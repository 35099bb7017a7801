package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"polyglot/internal/resilience"
	"polyglot/internal/translator"
)

// batchInput reads an INPUT_* environment variable, the contract used when
// polyglot runs as an automation entrypoint.
func batchInput(name, def string) string {
	key := "INPUT_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// languageExtensions maps languages to output file extensions.
var languageExtensions = map[string]string{
	"Python":     ".py",
	"JavaScript": ".js",
	"TypeScript": ".ts",
	"Java":       ".java",
	"Kotlin":     ".kt",
	"Swift":      ".swift",
	"C++":        ".cpp",
	"Go":         ".go",
	"Rust":       ".rs",
	"Ruby":       ".rb",
}

type batchResult struct {
	File       string
	Output     string
	Confidence float64
	Err        error
}

// batchCmd translates a file set driven entirely by environment inputs:
// INPUT_SOURCE_LANG, INPUT_TARGET_LANG, INPUT_FILES (glob),
// INPUT_OUTPUT_DIR, INPUT_PROVIDER, INPUT_FAIL_ON_ERROR,
// INPUT_GENERATE_REPORT.
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Translate a set of files using environment-variable inputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceLang := batchInput("source-lang", "")
		targetLang := batchInput("target-lang", "")
		pattern := batchInput("files", "")
		outputDir := batchInput("output-dir", "translated")
		providerInput := batchInput("provider", "")
		failOnError := strings.EqualFold(batchInput("fail-on-error", "false"), "true")
		generateReport := strings.EqualFold(batchInput("generate-report", "true"), "true")

		if targetLang == "" {
			return fmt.Errorf("INPUT_TARGET_LANG is required")
		}
		if pattern == "" {
			return fmt.Errorf("INPUT_FILES is required")
		}

		files, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid file glob %q: %w", pattern, err)
		}
		if len(files) == 0 {
			return fmt.Errorf("no files matched %q", pattern)
		}
		sort.Strings(files)

		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		application, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer application.close()

		results := runBatch(ctx, application, files, sourceLang, targetLang, providerInput, outputDir)

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "failed: %s: %v\n", r.File, r.Err)
			} else if verbose {
				fmt.Fprintf(os.Stderr, "translated: %s -> %s\n", r.File, r.Output)
			}
		}

		if generateReport {
			reportPath := filepath.Join(outputDir, "translation-report.md")
			if err := os.WriteFile(reportPath, []byte(batchReport(results, sourceLang, targetLang)), 0o644); err != nil {
				application.logger.Warn("failed to write report", zap.Error(err))
			} else {
				fmt.Println(reportPath)
			}
		}

		fmt.Fprintf(os.Stderr, "Batch complete: %d translated, %d failed\n", len(results)-failed, failed)
		if failOnError && failed > 0 {
			return fmt.Errorf("%d file(s) failed to translate", failed)
		}
		return nil
	},
}

// batchWorkers bounds concurrent translations in a batch run.
const batchWorkers = 2

// runBatch pushes every file through the priority queue and drains it with
// a small worker pool. The queue is the admission-control point: files are
// enqueued at normal priority without blocking, and workers throttle the
// actual provider traffic.
func runBatch(ctx context.Context, a *app, files []string, sourceLang, targetLang, providerInput, outputDir string) []batchResult {
	type job struct {
		index int
		file  string
	}

	queue := resilience.NewQueue[job](len(files))
	for i, file := range files {
		if err := queue.Put(job{index: i, file: file}, resilience.PriorityNormal); err != nil {
			// The queue is sized to the file count; a full queue means a
			// programming error, not an operational one.
			a.logger.Warn("failed to enqueue file", zap.String("file", file), zap.Error(err))
		}
	}

	source := sourceLang
	if source == "" {
		source = translator.Auto
	}
	ext := languageExtensions[targetLang]
	if ext == "" {
		ext = ".txt"
	}

	results := make([]batchResult, len(files))
	var wg sync.WaitGroup

	for w := 0; w < batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := queue.Get(100 * time.Millisecond)
				if err != nil {
					return // drained
				}

				results[j.index] = translateFile(ctx, a, j.file, source, targetLang, providerInput, outputDir, ext)
			}
		}()
	}
	wg.Wait()

	return results
}

func translateFile(ctx context.Context, a *app, file, source, targetLang, providerInput, outputDir, ext string) batchResult {
	res := batchResult{File: file}

	code, err := os.ReadFile(file)
	if err != nil {
		res.Err = err
		return res
	}

	result, err := a.engine.Translate(ctx, string(code), source, targetLang, providerInput)
	if err != nil {
		res.Err = err
		return res
	}

	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	outPath := filepath.Join(outputDir, base+ext)
	if err := os.WriteFile(outPath, []byte(result.Text), 0o644); err != nil {
		res.Err = err
		return res
	}

	res.Output = outPath
	res.Confidence = result.Confidence
	return res
}

// batchReport renders the markdown summary table.
func batchReport(results []batchResult, sourceLang, targetLang string) string {
	var b strings.Builder
	b.WriteString("# Translation Report\n\n")
	if sourceLang == "" {
		sourceLang = "auto-detected"
	}
	fmt.Fprintf(&b, "Translated from %s to %s.\n\n", sourceLang, targetLang)
	b.WriteString("| File | Status | Output | Confidence |\n")
	b.WriteString("|------|--------|--------|------------|\n")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(&b, "| %s | Error | - | %v |\n", r.File, r.Err)
			continue
		}
		fmt.Fprintf(&b, "| %s | Success | %s | %.0f%% |\n", r.File, r.Output, r.Confidence*100)
	}
	return b.String()
}
