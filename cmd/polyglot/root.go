package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"polyglot/internal/analyzer"
	"polyglot/internal/notebook"
	"polyglot/internal/translator"
)

// runRoot dispatches the root command according to the operation flags.
func runRoot(cmd *cobra.Command, args []string) error {
	if listLanguages {
		fmt.Println(strings.Join(translator.SupportedLanguages, "\n"))
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("missing required input: pass a file path or - for stdin")
	}

	code, err := readInput(args[0])
	if err != nil {
		return err
	}

	// Pure static operations need no providers.
	if detectOnly {
		detected := analyzer.Detect(code)
		if detected == "" {
			return fmt.Errorf("could not detect language")
		}
		return writeOutput(detected)
	}
	if analyzeFlag {
		return runAnalyze(code)
	}
	if genTests {
		return runGenerateTests(code)
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

	switch {
	case explainFlag || explainLines:
		return runExplain(ctx, application, code)
	case notebookMode:
		return runNotebook(ctx, application, code)
	default:
		return runTranslate(ctx, application, code)
	}
}

func selectedProvider() string {
	if forceOffline {
		return "offline"
	}
	return providerName
}

func runTranslate(ctx context.Context, a *app, code string) error {
	if toLang == "" {
		return fmt.Errorf("target language required: pass -t/--to")
	}

	source := fromLang
	if source == "" {
		source = translator.Auto
	}

	result, err := a.engine.Translate(ctx, code, source, toLang, selectedProvider())
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Translated %s -> %s via %s (confidence %.2f)\n",
			result.SourceLang, result.TargetLang, result.ProviderUsed, result.Confidence)
	}
	return writeOutput(result.Text)
}

func runExplain(ctx context.Context, a *app, code string) error {
	language := fromLang
	if language == "" {
		language = translator.Auto
	}

	explanation, err := a.engine.Explain(ctx, code, language, explainLines)
	if err != nil {
		return err
	}
	return writeOutput(explanation)
}

func runAnalyze(code string) error {
	language := fromLang
	if language == "" {
		language = analyzer.Detect(code)
		if language == "" {
			return fmt.Errorf("could not detect language; pass -f/--from")
		}
	} else if !analyzer.IsSupported(language) {
		return fmt.Errorf("unsupported language: %s", language)
	}

	analysis := analyzer.Analyze(code, language)
	return writeOutput(analyzer.FormatAnalysis(analysis))
}

func runGenerateTests(code string) error {
	language := fromLang
	if language == "" {
		language = analyzer.Detect(code)
		if language == "" {
			return fmt.Errorf("could not detect language; pass -f/--from")
		}
	} else if !analyzer.IsSupported(language) {
		return fmt.Errorf("unsupported language: %s", language)
	}

	framework := analyzer.DefaultFramework(language)
	if testFramework != "" {
		parsed, err := analyzer.ParseFramework(testFramework)
		if err != nil {
			return err
		}
		framework = parsed
	}

	return writeOutput(analyzer.GenerateTests(code, language, framework))
}

func runNotebook(ctx context.Context, a *app, content string) error {
	if fromLang == "" || toLang == "" {
		return fmt.Errorf("notebook translation requires both -f/--from and -t/--to")
	}

	nb, err := notebook.Parse([]byte(content))
	if err != nil {
		return err
	}

	transformer := notebook.NewTransformer(a.engine)
	translated, stats, err := transformer.Translate(ctx, nb, fromLang, toLang, selectedProvider())
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Notebook: %d cells, %d code, %d translated, %d failed\n",
			stats.TotalCells, stats.CodeCells, stats.TranslatedCells, stats.FailedCells)
		for _, e := range stats.Errors {
			fmt.Fprintf(os.Stderr, "  cell %d: %s\n", e.CellIndex, e.Error)
		}
	}

	raw, err := translated.ToJSON()
	if err != nil {
		return err
	}
	return writeOutput(string(raw))
}
