// Package main implements the polyglot CLI - a code translation tool backed
// by multiple AI providers with an offline rule-based fallback.
//
// The root command translates a file (or stdin) between languages; flags
// select the auxiliary operations (detect, explain, analyze, generate
// tests, notebook translation). Subcommands: serve (HTTP API) and batch
// (environment-driven file set translation).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is the application version, stamped into health responses.
const Version = "2.0.0"

var (
	// Global flags
	verbose   bool
	configDir string

	// Translation flags
	fromLang     string
	toLang       string
	outputPath   string
	providerName string
	forceOffline bool

	// Operation selection flags
	listLanguages bool
	detectOnly    bool
	explainFlag   bool
	explainLines  bool
	analyzeFlag   bool
	genTests      bool
	testFramework string
	notebookMode  bool
)

// rootCmd is the translation entry point.
var rootCmd = &cobra.Command{
	Use:   "polyglot [input-file]",
	Short: "polyglot - translate code between programming languages",
	Long: `polyglot translates source code between programming languages using
AI providers (OpenAI, Anthropic, Google) with an offline rule-based
fallback, and bundles static analysis utilities: language detection,
complexity analysis, and test skeleton generation.

Pass an input file path or - for stdin. Primary output goes to stdout
unless -o is given; diagnostics go to stderr.`,
	Version:       Version,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	flags := rootCmd.Flags()

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Diagnostic output on stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default: user config dir)")

	flags.StringVarP(&fromLang, "from", "f", "", "Source language (omitted = auto-detect)")
	flags.StringVarP(&toLang, "to", "t", "", "Target language (required for translation)")
	flags.StringVarP(&outputPath, "output", "o", "", "Output file (omitted = stdout)")
	flags.StringVar(&providerName, "provider", "", "Force a specific provider (openai, anthropic, google, offline)")
	flags.BoolVar(&forceOffline, "offline", false, "Force the offline provider")

	flags.BoolVar(&listLanguages, "list-languages", false, "Print the supported-language set and exit")
	flags.BoolVar(&detectOnly, "detect", false, "Print the detected language and exit")
	flags.BoolVar(&explainFlag, "explain", false, "Explain the code in plain English")
	flags.BoolVar(&explainLines, "explain-lines", false, "Explain the code line by line")
	flags.BoolVar(&analyzeFlag, "analyze", false, "Run static analysis and print the module report")
	flags.BoolVar(&genTests, "generate-tests", false, "Generate test skeletons")
	flags.StringVar(&testFramework, "test-framework", "", "Test framework (pytest, jest, junit)")
	flags.BoolVar(&notebookMode, "notebook", false, "Treat input as notebook JSON, translate and emit notebook JSON")

	rootCmd.AddCommand(serveCmd, batchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
