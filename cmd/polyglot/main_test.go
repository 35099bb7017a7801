package main

import (
	"errors"
	"strings"
	"testing"
)

func TestBatchInput(t *testing.T) {
	t.Setenv("INPUT_SOURCE_LANG", "Python")
	t.Setenv("INPUT_FAIL_ON_ERROR", "true")

	if got := batchInput("source-lang", ""); got != "Python" {
		t.Errorf("expected Python, got %q", got)
	}
	if got := batchInput("fail-on-error", "false"); got != "true" {
		t.Errorf("expected true, got %q", got)
	}
	if got := batchInput("missing", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestBatchReportRendering(t *testing.T) {
	results := []batchResult{
		{File: "a.py", Output: "out/a.js", Confidence: 0.7},
		{File: "b.py", Err: errors.New("no provider")},
	}
	report := batchReport(results, "Python", "JavaScript")

	for _, want := range []string{
		"# Translation Report",
		"Python",
		"JavaScript",
		"| a.py | Success | out/a.js | 70% |",
		"| b.py | Error | - | no provider |",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestLanguageExtensions(t *testing.T) {
	if languageExtensions["JavaScript"] != ".js" {
		t.Error("JavaScript extension wrong")
	}
	if languageExtensions["C++"] != ".cpp" {
		t.Error("C++ extension wrong")
	}
}
