package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// BigO is a coarse upper bound on runtime growth, drawn from a fixed
// ordered set.
type BigO string

const (
	O1         BigO = "O(1)"
	OLogN      BigO = "O(log n)"
	ON         BigO = "O(n)"
	ONLogN     BigO = "O(n log n)"
	ONSquared  BigO = "O(n²)"
	ONCubed    BigO = "O(n³)"
	OExp       BigO = "O(2^n)"
	OFactorial BigO = "O(n!)"
	OUnknown   BigO = "Unknown"
)

// bigOOrder is the total order used when taking the worst case.
var bigOOrder = []BigO{O1, OLogN, ON, ONLogN, ONSquared, ONCubed, OExp, OFactorial}

func bigORank(b BigO) int {
	for i, o := range bigOOrder {
		if o == b {
			return i
		}
	}
	return -1
}

// Complexity thresholds for suggestion texts.
const (
	LowComplexity    = 5
	MediumComplexity = 10
	HighComplexity   = 20
)

// FunctionAnalysis is the per-function analysis record.
type FunctionAnalysis struct {
	Name                 string   `json:"name"`
	StartLine            int      `json:"start_line"`
	EndLine              int      `json:"end_line"`
	CyclomaticComplexity int      `json:"cyclomatic_complexity"`
	EstimatedBigO        BigO     `json:"estimated_big_o"`
	NestingDepth         int      `json:"nesting_depth"`
	ParameterCount       int      `json:"parameter_count"`
	HasRecursion         bool     `json:"has_recursion"`
	LoopCount            int      `json:"loop_count"`
	BranchCount          int      `json:"branch_count"`
	Suggestions          []string `json:"suggestions,omitempty"`
}

// CodeAnalysis is the module-level analysis record.
type CodeAnalysis struct {
	Language          string             `json:"language"`
	TotalLines        int                `json:"total_lines"`
	CodeLines         int                `json:"code_lines"`
	CommentLines      int                `json:"comment_lines"`
	BlankLines        int                `json:"blank_lines"`
	Functions         []FunctionAnalysis `json:"functions"`
	AverageComplexity float64            `json:"average_complexity"`
	MaxComplexity     int                `json:"max_complexity"`
	OverallBigO       BigO               `json:"overall_big_o"`
	Suggestions       []string           `json:"suggestions,omitempty"`
}

// langPatterns holds the regex table driving analysis for one language.
type langPatterns struct {
	function  *regexp.Regexp
	decisions []*regexp.Regexp // if/else/loops/handlers/short-circuits
	ternary   *regexp.Regexp
	loops     []*regexp.Regexp
	branches  []*regexp.Regexp
	comment   *regexp.Regexp
	docstring *regexp.Regexp // Python only
	indent    bool           // indentation-based nesting
}

var analysisPatterns = buildAnalysisPatterns()

func buildAnalysisPatterns() map[string]*langPatterns {
	python := &langPatterns{
		function: regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+(\w+)\s*\(`),
		decisions: compileAll(
			`\b(if|elif)\s+`,
			`\belse\s*:`,
			`\bfor\s+\w+\s+in\s+`,
			`\bwhile\s+`,
			`\btry\s*:`,
			`\bexcept\s*`,
			`\band\b`,
			`\bor\b`,
		),
		ternary: regexp.MustCompile(`.+\sif\s+.+\selse\s+`),
		loops: compileAll(
			`\bfor\s+\w+\s+in\s+`,
			`\bwhile\s+`,
		),
		branches: compileAll(
			`\b(if|elif)\s+`,
			`\belse\s*:`,
		),
		comment:   regexp.MustCompile(`^\s*#`),
		docstring: regexp.MustCompile(`^\s*("""|''')`),
		indent:    true,
	}

	cStyle := func(function string) *langPatterns {
		return &langPatterns{
			function: regexp.MustCompile(function),
			decisions: compileAll(
				`\bif\s*\(`,
				`\belse\s*[{\n]`,
				`\bfor\s*\(`,
				`\bwhile\s*\(`,
				`\btry\s*\{`,
				`\bcatch\s*\(`,
				`&&`,
				`\|\|`,
				`\bcase\s+`,
			),
			ternary: regexp.MustCompile(`\?.+:`),
			loops: compileAll(
				`\bfor\s*\(`,
				`\bwhile\s*\(`,
			),
			branches: compileAll(
				`\bif\s*\(`,
				`\belse\s*[{\n]`,
				`\bswitch\s*\(`,
			),
			comment: regexp.MustCompile(`^\s*//`),
		}
	}

	js := cStyle(`(?:function\s+(\w+)|(\w+)\s*[=:]\s*(?:async\s+)?function|\bconst\s+(\w+)\s*=\s*(?:async\s+)?\()`)
	java := cStyle(`(?:public|private|protected)\s+(?:static\s+)?(?:\w+(?:<[^>]+>)?)\s+(\w+)\s*\(`)
	cpp := cStyle(`\b(?:[\w:<>]+)\s+(\w+)\s*\([^;]*\)\s*\{`)

	goLang := &langPatterns{
		function: regexp.MustCompile(`\bfunc\s+(?:\(\w+\s+\*?\w+\)\s+)?(\w+)\s*\(`),
		decisions: compileAll(
			`\bif\s+`,
			`\belse\s*\{`,
			`\bfor\s+`,
			`\bswitch\s+`,
			`\bselect\s*\{`,
			`\bcase\s+`,
			`&&`,
			`\|\|`,
		),
		loops: compileAll(
			`\bfor\s+`,
		),
		branches: compileAll(
			`\bif\s+`,
			`\belse\s*\{`,
			`\bswitch\s+`,
		),
		comment: regexp.MustCompile(`^\s*//`),
	}

	rust := &langPatterns{
		function: regexp.MustCompile(`\bfn\s+(\w+)\s*[<(]`),
		decisions: compileAll(
			`\bif\s+`,
			`\belse\s*\{`,
			`\bfor\s+\w+\s+in\s+`,
			`\bwhile\s+`,
			`\bloop\s*\{`,
			`\bmatch\s+`,
			`&&`,
			`\|\|`,
		),
		loops: compileAll(
			`\bfor\s+\w+\s+in\s+`,
			`\bwhile\s+`,
			`\bloop\s*\{`,
		),
		branches: compileAll(
			`\bif\s+`,
			`\belse\s*\{`,
			`\bmatch\s+`,
		),
		comment: regexp.MustCompile(`^\s*//`),
	}

	kotlin := cStyle(`\bfun\s+(\w+)\s*\(`)
	swift := cStyle(`\bfunc\s+(\w+)\s*\(`)

	ruby := &langPatterns{
		function: regexp.MustCompile(`(?m)^\s*def\s+(\w+)`),
		decisions: compileAll(
			`\b(if|elsif)\s+`,
			`\belse\b`,
			`\bfor\s+\w+\s+in\s+`,
			`\bwhile\s+`,
			`\buntil\s+`,
			`\bcase\s+`,
			`\bwhen\s+`,
			`&&`,
			`\|\|`,
			`\brescue\b`,
		),
		loops: compileAll(
			`\bfor\s+\w+\s+in\s+`,
			`\bwhile\s+`,
			`\buntil\s+`,
			`\.each\b`,
		),
		branches: compileAll(
			`\b(if|elsif)\s+`,
			`\belse\b`,
			`\bcase\s+`,
		),
		comment: regexp.MustCompile(`^\s*#`),
		indent:  true,
	}

	return map[string]*langPatterns{
		"Python":     python,
		"JavaScript": js,
		"TypeScript": js,
		"Java":       java,
		"C++":        cpp,
		"Go":         goLang,
		"Rust":       rust,
		"Kotlin":     kotlin,
		"Swift":      swift,
		"Ruby":       ruby,
	}
}

var (
	nestedLoopPatterns = compileAll(
		`(?s)for.*:\s*\n\s+.*for`,
		`(?s)for\s*\([^)]+\)\s*\{[^}]*for\s*\(`,
		`(?s)for\s+[^{]+\{[^}]*for\s+`,
	)
	sortPatterns = compileAll(
		`\.sort\(`,
		`sorted\(`,
		`Arrays\.sort`,
		`sort\.Slice`,
	)
	binarySearchPatterns = compileAll(
		`(?i)while\s+\(?\s*(left|lo|low)\s*[<>=]+\s*(right|hi|high)`,
		`(?i)mid\s*:?=\s*\(?[^)\n]+\)?\s*/\s*2`,
		`(?i)bisect`,
		`(?i)binary[_\s]?search`,
	)
	paramsRe = regexp.MustCompile(`\(([^)]*)\)`)
)

// Analyze performs the complete complexity analysis for one source sample.
func Analyze(code, language string) *CodeAnalysis {
	patterns, ok := analysisPatterns[language]
	if !ok {
		patterns = analysisPatterns["Python"]
	}

	lines := strings.Split(code, "\n")
	totalLines := len(lines)
	blankLines := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blankLines++
		}
	}
	commentLines := countCommentLines(code, language, patterns)
	codeLines := totalLines - blankLines - commentLines

	functions := analyzeFunctions(lines, language, patterns)

	avg := 0.0
	maxC := 0
	for _, f := range functions {
		avg += float64(f.CyclomaticComplexity)
		if f.CyclomaticComplexity > maxC {
			maxC = f.CyclomaticComplexity
		}
	}
	if len(functions) > 0 {
		avg = math.Round(avg/float64(len(functions))*100) / 100
	}

	return &CodeAnalysis{
		Language:          language,
		TotalLines:        totalLines,
		CodeLines:         codeLines,
		CommentLines:      commentLines,
		BlankLines:        blankLines,
		Functions:         functions,
		AverageComplexity: avg,
		MaxComplexity:     maxC,
		OverallBigO:       overallBigO(functions),
		Suggestions:       overallSuggestions(functions, avg),
	}
}

func countCommentLines(code, language string, patterns *langPatterns) int {
	count := 0
	inBlock := false

	for _, line := range strings.Split(code, "\n") {
		if language == "Python" {
			if patterns.docstring != nil && patterns.docstring.MatchString(line) {
				inBlock = !inBlock
				count++
				continue
			}
		} else {
			if strings.Contains(line, "/*") {
				inBlock = true
			}
			if strings.Contains(line, "*/") {
				inBlock = false
				count++
				continue
			}
		}
		if inBlock || patterns.comment.MatchString(line) {
			count++
		}
	}
	return count
}

func analyzeFunctions(lines []string, language string, patterns *langPatterns) []FunctionAnalysis {
	var functions []FunctionAnalysis

	for i, line := range lines {
		m := patterns.function.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := firstGroup(m)
		if name == "" {
			continue
		}

		endLine, body := extractFunctionBody(lines, i, patterns.indent)
		functions = append(functions, analyzeFunction(name, body, i+1, endLine, language, patterns))
	}
	return functions
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// extractFunctionBody returns the 1-based end line and the function text.
// Indentation-based languages end at the first line back at or below the
// definition's indent; brace-based languages track unmatched braces.
func extractFunctionBody(lines []string, startIdx int, indentBased bool) (int, string) {
	if indentBased {
		baseIndent := indentOf(lines[startIdx])
		body := []string{lines[startIdx]}
		for i := startIdx + 1; i < len(lines); i++ {
			line := lines[i]
			if strings.TrimSpace(line) != "" && indentOf(line) <= baseIndent {
				return i, strings.Join(body, "\n")
			}
			body = append(body, line)
		}
		return len(lines), strings.Join(body, "\n")
	}

	braceCount := 0
	foundStart := false
	var body []string
	for i := startIdx; i < len(lines); i++ {
		line := lines[i]
		body = append(body, line)
		braceCount += strings.Count(line, "{") - strings.Count(line, "}")
		if strings.Contains(line, "{") {
			foundStart = true
		}
		if foundStart && braceCount == 0 {
			return i + 1, strings.Join(body, "\n")
		}
	}
	return len(lines), strings.Join(body, "\n")
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func analyzeFunction(name, body string, startLine, endLine int, language string, patterns *langPatterns) FunctionAnalysis {
	complexity := cyclomaticComplexity(body, patterns)
	loopCount := countMatches(body, patterns.loops)
	branchCount := countMatches(body, patterns.branches)
	nesting := nestingDepth(body, patterns.indent)

	// Recursion: the function's own name called inside its body.
	hasRecursion := false
	bodyLines := strings.SplitN(body, "\n", 2)
	if len(bodyLines) == 2 {
		callRe := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*\(`)
		hasRecursion = callRe.MatchString(bodyLines[1])
	}

	return FunctionAnalysis{
		Name:                 name,
		StartLine:            startLine,
		EndLine:              endLine,
		CyclomaticComplexity: complexity,
		EstimatedBigO:        estimateBigO(body, loopCount, hasRecursion),
		NestingDepth:         nesting,
		ParameterCount:       countParameters(body),
		HasRecursion:         hasRecursion,
		LoopCount:            loopCount,
		BranchCount:          branchCount,
		Suggestions:          functionSuggestions(complexity, nesting, loopCount, hasRecursion),
	}
}

// cyclomaticComplexity counts decision points plus one.
func cyclomaticComplexity(body string, patterns *langPatterns) int {
	complexity := 1
	for _, re := range patterns.decisions {
		complexity += len(re.FindAllString(body, -1))
	}
	if patterns.ternary != nil {
		complexity += len(patterns.ternary.FindAllString(body, -1))
	}
	return complexity
}

func countMatches(body string, patterns []*regexp.Regexp) int {
	count := 0
	for _, re := range patterns {
		count += len(re.FindAllString(body, -1))
	}
	return count
}

// nestingDepth measures maximum block depth: running unmatched-brace depth
// for brace languages, leading whitespace divided by the assumed 4-column
// indent unit otherwise.
func nestingDepth(body string, indentBased bool) int {
	if indentBased {
		maxDepth := 0
		for _, line := range strings.Split(body, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if depth := indentOf(line) / 4; depth > maxDepth {
				maxDepth = depth
			}
		}
		return maxDepth
	}

	maxDepth, depth := 0, 0
	for _, r := range body {
		switch r {
		case '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return maxDepth
}

func countParameters(body string) int {
	m := paramsRe.FindStringSubmatch(body)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return 0
	}
	count := 0
	for _, p := range strings.Split(m[1], ",") {
		if strings.TrimSpace(p) != "" {
			count++
		}
	}
	return count
}

// estimateBigO applies the fixed heuristic ladder.
func estimateBigO(body string, loopCount int, hasRecursion bool) BigO {
	nestedLoops := 0
	for _, re := range nestedLoopPatterns {
		nestedLoops += len(re.FindAllString(body, -1))
	}
	hasSort := matchesAny(sortPatterns, body)
	hasBinarySearch := matchesAny(binarySearchPatterns, body)

	switch {
	case hasRecursion && nestedLoops > 0:
		return OExp
	case nestedLoops >= 2:
		return ONCubed
	case nestedLoops == 1:
		return ONSquared
	case hasSort:
		return ONLogN
	case hasBinarySearch:
		return OLogN
	case loopCount >= 1:
		return ON
	case hasRecursion:
		return ON // conservative estimate for recursion
	default:
		return O1
	}
}

// overallBigO is the worst case across functions.
func overallBigO(functions []FunctionAnalysis) BigO {
	worst := O1
	for _, f := range functions {
		if f.EstimatedBigO == OUnknown {
			continue
		}
		if bigORank(f.EstimatedBigO) > bigORank(worst) {
			worst = f.EstimatedBigO
		}
	}
	return worst
}

func functionSuggestions(complexity, nesting, loopCount int, hasRecursion bool) []string {
	var suggestions []string

	if complexity > HighComplexity {
		suggestions = append(suggestions,
			fmt.Sprintf("High complexity (%d). Consider breaking into smaller functions.", complexity))
	} else if complexity > MediumComplexity {
		suggestions = append(suggestions,
			fmt.Sprintf("Moderate complexity (%d). Review for potential simplification.", complexity))
	}
	if nesting > 4 {
		suggestions = append(suggestions,
			fmt.Sprintf("Deep nesting (%d levels). Consider early returns or guard clauses.", nesting))
	}
	if loopCount > 2 {
		suggestions = append(suggestions,
			"Multiple loops detected. Consider combining or using more efficient data structures.")
	}
	if hasRecursion {
		suggestions = append(suggestions,
			"Contains recursion. Ensure base case is correct and consider tail recursion or iteration.")
	}
	return suggestions
}

func overallSuggestions(functions []FunctionAnalysis, avgComplexity float64) []string {
	var suggestions []string

	if avgComplexity > MediumComplexity {
		suggestions = append(suggestions,
			fmt.Sprintf("High average complexity (%.1f). Consider refactoring complex functions.", avgComplexity))
	}

	var highNames []string
	deepNesting := false
	recursive := 0
	for _, f := range functions {
		if f.CyclomaticComplexity > HighComplexity && len(highNames) < 3 {
			highNames = append(highNames, f.Name)
		}
		if f.NestingDepth > 4 {
			deepNesting = true
		}
		if f.HasRecursion {
			recursive++
		}
	}
	if len(highNames) > 0 {
		suggestions = append(suggestions,
			fmt.Sprintf("Functions with high complexity: %s. Priority targets for refactoring.", strings.Join(highNames, ", ")))
	}
	if deepNesting {
		suggestions = append(suggestions,
			"Some functions have deep nesting. Consider flattening with early returns.")
	}
	if recursive > 0 {
		suggestions = append(suggestions,
			fmt.Sprintf("%d recursive function(s) detected. Verify termination conditions.", recursive))
	}
	return suggestions
}

// ComplexityRating maps a cyclomatic value to its threshold band.
func ComplexityRating(complexity int) string {
	switch {
	case complexity <= LowComplexity:
		return "Low"
	case complexity <= MediumComplexity:
		return "Moderate"
	case complexity <= HighComplexity:
		return "High"
	default:
		return "Very High"
	}
}

// FormatAnalysis renders the analysis as the text report printed by the CLI.
func FormatAnalysis(a *CodeAnalysis) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)

	fmt.Fprintf(&b, "%s\nCODE COMPLEXITY ANALYSIS\n%s\n\n", rule, rule)
	fmt.Fprintf(&b, "Language: %s\n", a.Language)
	fmt.Fprintf(&b, "Total Lines: %d\n", a.TotalLines)
	fmt.Fprintf(&b, "  - Code: %d\n", a.CodeLines)
	fmt.Fprintf(&b, "  - Comments: %d\n", a.CommentLines)
	fmt.Fprintf(&b, "  - Blank: %d\n\n", a.BlankLines)
	fmt.Fprintf(&b, "Functions Analyzed: %d\n", len(a.Functions))
	fmt.Fprintf(&b, "Average Complexity: %.2f (%s)\n", a.AverageComplexity, ComplexityRating(int(a.AverageComplexity)))
	fmt.Fprintf(&b, "Maximum Complexity: %d\n", a.MaxComplexity)
	fmt.Fprintf(&b, "Overall Time Complexity: %s\n\n", a.OverallBigO)

	if len(a.Functions) > 0 {
		fmt.Fprintf(&b, "%s\nFUNCTION DETAILS\n%s\n", thin, thin)

		sorted := append([]FunctionAnalysis(nil), a.Functions...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].CyclomaticComplexity > sorted[j].CyclomaticComplexity
		})

		for _, f := range sorted {
			fmt.Fprintf(&b, "\n%s:\n", f.Name)
			fmt.Fprintf(&b, "  Lines: %d-%d\n", f.StartLine, f.EndLine)
			fmt.Fprintf(&b, "  Complexity: %d (%s)\n", f.CyclomaticComplexity, ComplexityRating(f.CyclomaticComplexity))
			fmt.Fprintf(&b, "  Time Complexity: %s\n", f.EstimatedBigO)
			fmt.Fprintf(&b, "  Nesting Depth: %d\n", f.NestingDepth)
			fmt.Fprintf(&b, "  Parameters: %d\n", f.ParameterCount)
			fmt.Fprintf(&b, "  Loops: %d, Branches: %d\n", f.LoopCount, f.BranchCount)
			if f.HasRecursion {
				b.WriteString("  Contains recursion\n")
			}
			if len(f.Suggestions) > 0 {
				b.WriteString("  Suggestions:\n")
				for _, s := range f.Suggestions {
					fmt.Fprintf(&b, "    - %s\n", s)
				}
			}
		}
	}

	if len(a.Suggestions) > 0 {
		fmt.Fprintf(&b, "\n%s\nOVERALL SUGGESTIONS\n%s\n", thin, thin)
		for _, s := range a.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	fmt.Fprintf(&b, "\n%s\n", rule)
	return b.String()
}
