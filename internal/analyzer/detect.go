package analyzer

import (
	"regexp"
	"strings"
)

// detectionPatterns holds the fixed per-language pattern sets. A language's
// score is the count of patterns that match anywhere in the sample.
var detectionPatterns = map[string][]*regexp.Regexp{
	"Python": compileAll(
		// Function and class definitions
		`(?m)^\s*def\s+\w+\s*\(`,
		`(?m)^\s*async\s+def\s+\w+\s*\(`,
		`(?m)^\s*class\s+\w+[\s(:]`,
		// Imports
		`(?m)^\s*import\s+\w+`,
		`(?m)^\s*from\s+\w+\s+import`,
		// Print statements
		`\bprint\s*\(`,
		`\bprint\s+["']`,
		// Python-specific constructs
		`if\s+__name__\s*==\s*["']__main__["']`,
		`(?m)^\s*elif\s+`,
		`(?m)^\s*except[\s:]`,
		// F-strings, comprehensions, decorators, docstrings
		`[fF]["'][^"']*\{[^}]*\}`,
		`\[\s*\w+\s+for\s+\w+\s+in\s+`,
		`(?m)^\s*@\w+`,
		`["']{3}`,
	),
	"JavaScript": compileAll(
		`\bfunction\s+\w+\s*\(`,
		`\bfunction\s*\(`,
		`=>\s*\{`,
		`=>\s*[^{\s]`,
		`\b(const|let|var)\s+\w+\s*=`,
		`\bconsole\.(log|error|warn|info)\s*\(`,
		"`[^`]*\\$\\{[^}]*\\}",
		`\bexport\s+(default\s+)?`,
		`\bimport\s+.*\s+from\s+["']`,
		`\brequire\s*\(["']`,
		`\.(map|filter|reduce|forEach)\s*\(`,
		`\basync\s+function`,
		`\bawait\s+`,
		`\btypeof\s+\w+`,
	),
	"TypeScript": compileAll(
		`:\s*(string|number|boolean|any|void|never)\b`,
		`:\s*\w+\[\]`,
		`\binterface\s+\w+`,
		`\btype\s+\w+\s*=`,
		`\bas\s+\w+`,
		`\breadonly\s+\w+`,
		`\bprivate\s+\w+`,
		`\bpublic\s+\w+`,
		`\bprotected\s+\w+`,
		`\bimport\s+type\s+`,
		`\bexport\s+type\s+`,
		`<\w+\s+extends\s+\w+>`,
		`\benum\s+\w+`,
	),
	"Java": compileAll(
		`\b(public|private|protected)\s+(static\s+)?class\s+\w+`,
		`public\s+static\s+void\s+main\s*\(\s*String`,
		`(?m)^\s*import\s+(static\s+)?java\.`,
		`(?m)^\s*package\s+[\w.]+;`,
		`System\.(out|err)\.(print|println)\s*\(`,
		`(?m)^\s*@(Override|Deprecated|SuppressWarnings)`,
		`\b(extends|implements)\s+\w+`,
		`\bfinal\s+\w+`,
		`\bnew\s+\w+\s*\(`,
		`<[A-Z]\w*>`,
		`\b(try|catch|finally)\s*\{`,
		`\bthrows\s+\w+`,
	),
	"Kotlin": compileAll(
		`\bfun\s+\w+\s*\(`,
		`\bfun\s+main\s*\(`,
		`\b(val|var)\s+\w+\s*(:\s*\w+)?\s*=`,
		`\b(data\s+)?class\s+\w+`,
		`\bobject\s+\w+`,
		`\bwhen\s*\{`,
		`\bwhen\s*\([^)]+\)\s*\{`,
		`\bprintln\s*\(`,
		`\?\.`,
		`\?:`,
		`!!\.`,
		`\bsuspend\s+fun`,
		`\blaunch\s*\{`,
		`\bfun\s+\w+\.\w+\s*\(`,
	),
	"Swift": compileAll(
		`\bfunc\s+\w+\s*\(`,
		`\b(let|var)\s+\w+\s*(:\s*\w+)?\s*=`,
		`\bstruct\s+\w+`,
		`\bprotocol\s+\w+`,
		`\bguard\s+`,
		`\bif\s+let\s+`,
		`\bswitch\s+\w+\s*\{`,
		`(?m)^\s*import\s+(Foundation|UIKit|SwiftUI)`,
		`\?\?`,
		`\{\s*\([^)]*\)\s+in`,
		`\$\d+`,
		`->\s*\w+`,
	),
	"C++": compileAll(
		`(?m)^\s*#include\s*[<"]`,
		`\busing\s+namespace\s+std\s*;`,
		`\bnamespace\s+\w+\s*\{`,
		`\bint\s+main\s*\(`,
		`\bstd::(cout|cin|endl|string|vector)`,
		`(cout|cerr)\s*<<`,
		`cin\s*>>`,
		`\bclass\s+\w+\s*[{:]`,
		`\btemplate\s*<`,
		`::\w+`,
		`\bvirtual\s+`,
		`\boperator\s*[+\-*/=<>]+\s*\(`,
	),
	"Go": compileAll(
		`(?m)^\s*package\s+\w+`,
		`(?m)^\s*import\s*\(`,
		`(?m)^\s*import\s+"`,
		`\bfunc\s+(\(\w+\s+\*?\w+\)\s+)?\w+\s*\(`,
		`\bfunc\s+main\s*\(\s*\)`,
		`:=`,
		`\bfmt\.(Print|Printf|Println)\s*\(`,
		`\b(defer|go|chan|select)\s+`,
		`\bif\s+err\s*!=\s*nil\s*\{`,
		`\btype\s+\w+\s+struct\s*\{`,
		`\btype\s+\w+\s+interface\s*\{`,
	),
	"Rust": compileAll(
		`\bfn\s+\w+\s*\(`,
		`\bfn\s+main\s*\(\s*\)`,
		`(?m)^\s*use\s+\w+(::\w+)*;`,
		`\b(println!|print!|eprintln!)\s*\(`,
		`\blet\s+(mut\s+)?\w+`,
		`\bmatch\s+\w+\s*\{`,
		`\bimpl\s+\w+`,
		`\bstruct\s+\w+`,
		`\btrait\s+\w+`,
		`&mut\s+`,
		`\bBox<`,
		`\bOption<`,
		`\bResult<`,
		`(?m)^\s*#\[derive`,
	),
	"Ruby": compileAll(
		`\bdef\s+\w+`,
		`\bend\b`,
		`\bclass\s+\w+(\s*<\s*\w+)?`,
		`\bmodule\s+\w+`,
		`\bputs\s+`,
		`\brequire\s+["']`,
		`\brequire_relative\s+`,
		`\bdo\s*\|[^|]*\|`,
		`\{\s*\|[^|]*\|\s*`,
		`\.each\s+do`,
		`\.map\s+do`,
		`:\w+`,
		`@\w+`,
		`<<[-~]?\w+`,
		`\.(select|reject|find|any\?|all\?)\s*[{(]`,
	),
}

var pythonPrintRe = regexp.MustCompile(`\bprint\s*\(`)

// tsOnlyPatterns are constructs JavaScript cannot express; their presence
// settles the TypeScript/JavaScript ambiguity in TypeScript's favor.
var tsOnlyPatterns = compileAll(
	`:\s*(string|number|boolean|any|void|never)\b`,
	`\binterface\s+\w+`,
	`\bimport\s+type\s+`,
	`\bexport\s+type\s+`,
	`\benum\s+\w+`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Detect scores the sample against every candidate's pattern set and
// returns the winning language, or "" when the sample is undetectable.
// It is a statistical detector, not a parser: output is advisory and
// callers must honor an explicit language override.
func Detect(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}

	scores := make(map[string]int, len(SupportedLanguages))
	maxScore := 0
	for _, lang := range SupportedLanguages {
		score := 0
		for _, re := range detectionPatterns[lang] {
			if re.MatchString(code) {
				score++
			}
		}
		scores[lang] = score
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore == 0 {
		return ""
	}

	// Highest score wins; ties break by the canonical candidate order.
	best := ""
	for _, lang := range SupportedLanguages {
		if scores[lang] == maxScore {
			best = lang
			break
		}
	}

	if maxScore >= 2 {
		// A sample dominated by JavaScript-compatible syntax may be either
		// JavaScript or TypeScript; prefer JavaScript unless a
		// TypeScript-only construct appears.
		if best == "TypeScript" && scores["JavaScript"] >= scores["TypeScript"]-1 && !matchesAny(tsOnlyPatterns, code) {
			return "JavaScript"
		}
		return best
	}

	// Single-pattern matches are treated with suspicion.
	if best == "Python" && pythonPrintRe.MatchString(code) {
		return "Python"
	}
	runnerUp := 0
	for _, lang := range SupportedLanguages {
		if lang != best && scores[lang] > runnerUp {
			runnerUp = scores[lang]
		}
	}
	if maxScore > runnerUp {
		return best
	}
	return ""
}

func matchesAny(patterns []*regexp.Regexp, code string) bool {
	for _, re := range patterns {
		if re.MatchString(code) {
			return true
		}
	}
	return false
}
