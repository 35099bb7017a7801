// Package notebook parses, translates, and serializes Jupyter notebooks.
// Code cells go through the translation façade; markdown and raw cells pass
// through unchanged.
package notebook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"polyglot/internal/translator"
)

// Cell kinds.
const (
	CellCode     = "code"
	CellMarkdown = "markdown"
	CellRaw      = "raw"
)

// Cell is one notebook cell. Source keeps the ordered text fragments of
// the on-disk format.
type Cell struct {
	CellType       string           `json:"cell_type"`
	Source         []string         `json:"source"`
	Metadata       map[string]any   `json:"metadata"`
	Outputs        []map[string]any `json:"outputs,omitempty"`
	ExecutionCount *int             `json:"execution_count,omitempty"`
}

// Notebook is an ordered sequence of cells plus notebook-level metadata.
type Notebook struct {
	Cells         []Cell         `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// CellError records one failed cell translation.
type CellError struct {
	CellIndex int    `json:"cell_index"`
	Error     string `json:"error"`
}

// Stats summarizes one notebook translation.
type Stats struct {
	TotalCells      int         `json:"total_cells"`
	CodeCells       int         `json:"code_cells"`
	MarkdownCells   int         `json:"markdown_cells"`
	TranslatedCells int         `json:"translated_cells"`
	FailedCells     int         `json:"failed_cells"`
	Errors          []CellError `json:"errors,omitempty"`
}

// Parse decodes notebook JSON.
func Parse(content []byte) (*Notebook, error) {
	var raw struct {
		Cells []struct {
			CellType       string           `json:"cell_type"`
			Source         json.RawMessage  `json:"source"`
			Metadata       map[string]any   `json:"metadata"`
			Outputs        []map[string]any `json:"outputs"`
			ExecutionCount *int             `json:"execution_count"`
		} `json:"cells"`
		Metadata      map[string]any `json:"metadata"`
		NBFormat      *int           `json:"nbformat"`
		NBFormatMinor *int           `json:"nbformat_minor"`
	}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("invalid notebook JSON: %w", err)
	}

	nb := &Notebook{
		Metadata:      raw.Metadata,
		NBFormat:      4,
		NBFormatMinor: 5,
	}
	if raw.NBFormat != nil {
		nb.NBFormat = *raw.NBFormat
	}
	if raw.NBFormatMinor != nil {
		nb.NBFormatMinor = *raw.NBFormatMinor
	}
	if nb.Metadata == nil {
		nb.Metadata = make(map[string]any)
	}

	for _, c := range raw.Cells {
		cell := Cell{
			CellType:       c.CellType,
			Metadata:       c.Metadata,
			Outputs:        c.Outputs,
			ExecutionCount: c.ExecutionCount,
		}
		if cell.CellType == "" {
			cell.CellType = CellCode
		}
		if cell.Metadata == nil {
			cell.Metadata = make(map[string]any)
		}
		cell.Source = decodeSource(c.Source)
		nb.Cells = append(nb.Cells, cell)
	}
	return nb, nil
}

// decodeSource accepts both the list-of-fragments and single-string source
// shapes found in the wild.
func decodeSource(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var fragments []string
	if err := json.Unmarshal(raw, &fragments); err == nil {
		return fragments
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	return []string{}
}

// ParseFile decodes a notebook from disk.
func ParseFile(path string) (*Notebook, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notebook: %w", err)
	}
	return Parse(content)
}

// SourceText joins a cell's fragments into one string.
func (c *Cell) SourceText() string {
	return strings.Join(c.Source, "")
}

// ToJSON serializes the notebook. Code cells always carry their output list
// and execution counter; other cells never do.
func (nb *Notebook) ToJSON() ([]byte, error) {
	cells := make([]map[string]any, 0, len(nb.Cells))
	for _, cell := range nb.Cells {
		data := map[string]any{
			"cell_type": cell.CellType,
			"source":    cell.Source,
			"metadata":  cell.Metadata,
		}
		if cell.CellType == CellCode {
			outputs := cell.Outputs
			if outputs == nil {
				outputs = []map[string]any{}
			}
			data["outputs"] = outputs
			data["execution_count"] = cell.ExecutionCount
		}
		cells = append(cells, data)
	}

	doc := map[string]any{
		"cells":          cells,
		"metadata":       nb.Metadata,
		"nbformat":       nb.NBFormat,
		"nbformat_minor": nb.NBFormatMinor,
	}
	return json.MarshalIndent(doc, "", " ")
}

// WriteFile serializes the notebook to disk.
func (nb *Notebook) WriteFile(path string) error {
	raw, err := nb.ToJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write notebook: %w", err)
	}
	return nil
}

// translateConcurrency bounds in-flight cell translations.
const translateConcurrency = 4

// Transformer translates notebooks through the façade.
type Transformer struct {
	engine *translator.Engine
}

// NewTransformer builds a transformer over the façade.
func NewTransformer(engine *translator.Engine) *Transformer {
	return &Transformer{engine: engine}
}

// Translate translates every code cell in place on a copy of the notebook:
// successful cells get new source, cleared outputs and counters, and a
// translation metadata block; failed cells keep the original source behind
// an error-marker comment. Markdown and raw cells pass through unchanged.
func (t *Transformer) Translate(ctx context.Context, nb *Notebook, sourceLang, targetLang, providerName string) (*Notebook, *Stats, error) {
	if t.engine == nil {
		return nil, nil, fmt.Errorf("translation engine not configured")
	}

	out := nb.clone()
	stats := &Stats{TotalCells: len(out.Cells)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(translateConcurrency)

	for i := range out.Cells {
		cell := &out.Cells[i]
		switch cell.CellType {
		case CellMarkdown:
			stats.MarkdownCells++
			continue
		case CellCode:
			stats.CodeCells++
		default:
			continue
		}

		source := cell.SourceText()
		if strings.TrimSpace(source) == "" {
			continue
		}

		index := i
		g.Go(func() error {
			result, err := t.engine.Translate(gctx, source, sourceLang, targetLang, providerName)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.FailedCells++
				stats.Errors = append(stats.Errors, CellError{CellIndex: index, Error: err.Error()})
				cell.Source = []string{
					fmt.Sprintf("# Translation failed: %v\n", err),
					fmt.Sprintf("# Original code (%s):\n", sourceLang),
					source,
				}
				return nil
			}

			cell.Source = []string{result.Text}
			cell.Outputs = []map[string]any{}
			cell.ExecutionCount = nil
			cell.Metadata["translation"] = map[string]any{
				"source_lang": sourceLang,
				"target_lang": targetLang,
				"confidence":  result.Confidence,
			}
			stats.TranslatedCells++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out.Metadata["translation_info"] = map[string]any{
		"source_language": sourceLang,
		"target_language": targetLang,
		"translated_by":   "Code Translator",
	}
	applyKernelMetadata(out.Metadata, targetLang)

	return out, stats, nil
}

// clone deep-copies the notebook so the caller's copy stays untouched.
func (nb *Notebook) clone() *Notebook {
	out := &Notebook{
		Cells:         make([]Cell, len(nb.Cells)),
		Metadata:      deepCopyMap(nb.Metadata),
		NBFormat:      nb.NBFormat,
		NBFormatMinor: nb.NBFormatMinor,
	}
	for i, cell := range nb.Cells {
		copied := Cell{
			CellType: cell.CellType,
			Source:   append([]string(nil), cell.Source...),
			Metadata: deepCopyMap(cell.Metadata),
		}
		if cell.Outputs != nil {
			copied.Outputs = make([]map[string]any, len(cell.Outputs))
			for j, o := range cell.Outputs {
				copied.Outputs[j] = deepCopyMap(o)
			}
		}
		if cell.ExecutionCount != nil {
			n := *cell.ExecutionCount
			copied.ExecutionCount = &n
		}
		out.Cells[i] = copied
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// kernelSpecs holds the fixed per-target-language kernel metadata template.
var kernelSpecs = map[string]map[string]any{
	"Python": {
		"kernelspec":    map[string]any{"display_name": "Python 3", "language": "python", "name": "python3"},
		"language_info": map[string]any{"name": "python", "file_extension": ".py"},
	},
	"JavaScript": {
		"kernelspec":    map[string]any{"display_name": "JavaScript (Node.js)", "language": "javascript", "name": "javascript"},
		"language_info": map[string]any{"name": "javascript", "file_extension": ".js"},
	},
	"TypeScript": {
		"kernelspec":    map[string]any{"display_name": "TypeScript", "language": "typescript", "name": "typescript"},
		"language_info": map[string]any{"name": "typescript", "file_extension": ".ts"},
	},
	"Java": {
		"kernelspec":    map[string]any{"display_name": "Java", "language": "java", "name": "java"},
		"language_info": map[string]any{"name": "java", "file_extension": ".java"},
	},
	"Go": {
		"kernelspec":    map[string]any{"display_name": "Go", "language": "go", "name": "go"},
		"language_info": map[string]any{"name": "go", "file_extension": ".go"},
	},
	"Rust": {
		"kernelspec":    map[string]any{"display_name": "Rust", "language": "rust", "name": "rust"},
		"language_info": map[string]any{"name": "rust", "file_extension": ".rs"},
	},
	"Ruby": {
		"kernelspec":    map[string]any{"display_name": "Ruby", "language": "ruby", "name": "ruby"},
		"language_info": map[string]any{"name": "ruby", "file_extension": ".rb"},
	},
}

func applyKernelMetadata(metadata map[string]any, targetLang string) {
	if spec, ok := kernelSpecs[targetLang]; ok {
		for k, v := range spec {
			metadata[k] = v
		}
	}
}

// FromSnippets builds a fresh notebook from code snippets, with optional
// markdown headers interleaved before each code cell.
func FromSnippets(snippets []string, language string, headers []string) *Notebook {
	nb := &Notebook{
		Metadata:      make(map[string]any),
		NBFormat:      4,
		NBFormatMinor: 5,
	}

	for i, code := range snippets {
		if i < len(headers) {
			nb.Cells = append(nb.Cells, Cell{
				CellType: CellMarkdown,
				Source:   []string{fmt.Sprintf("## %s\n", headers[i])},
				Metadata: make(map[string]any),
			})
		}
		nb.Cells = append(nb.Cells, Cell{
			CellType: CellCode,
			Source:   []string{code},
			Metadata: make(map[string]any),
			Outputs:  []map[string]any{},
		})
	}

	applyKernelMetadata(nb.Metadata, language)
	return nb
}
