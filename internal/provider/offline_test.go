package provider

import (
	"context"
	"strings"
	"testing"
)

func newOffline(t *testing.T) Provider {
	t.Helper()
	p, err := NewOfflineProvider(Config{})
	if err != nil {
		t.Fatalf("failed to construct offline provider: %v", err)
	}
	return p
}

func TestOffline_PythonToJavaScriptFunction(t *testing.T) {
	p := newOffline(t)

	code := "def add(a, b):\n    return a + b\n"
	text, confidence, err := p.Translate(context.Background(), code, "Python", "JavaScript", TranslateOptions{})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if !strings.HasPrefix(text, "function add(a, b) {") {
		t.Errorf("expected output to begin with function declaration, got:\n%s", text)
	}
	if !strings.HasSuffix(strings.TrimSpace(text), "}") {
		t.Errorf("expected output to close the block, got:\n%s", text)
	}
	if confidence != 0.7 {
		t.Errorf("expected confidence 0.7, got %f", confidence)
	}
}

func TestOffline_IdentityTranslation(t *testing.T) {
	p := newOffline(t)

	code := "def noop():\n    pass\n"
	text, confidence, err := p.Translate(context.Background(), code, "Python", "Python", TranslateOptions{})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if text != code {
		t.Error("identity translation changed the input")
	}
	if confidence != 1.0 {
		t.Errorf("expected confidence 1.0 for identity, got %f", confidence)
	}
}

func TestOffline_PythonToJavaScriptConstructs(t *testing.T) {
	p := newOffline(t)

	code := strings.Join([]string{
		"def greet(name):",
		"    if name:",
		"        print(name)",
		"    for item in items:",
		"        print(item)",
	}, "\n")

	text, _, err := p.Translate(context.Background(), code, "Python", "JavaScript", TranslateOptions{})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	for _, want := range []string{
		"function greet(name) {",
		"if (name) {",
		"console.log(name)",
		"for (let item of items) {",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestOffline_JavaScriptToPython(t *testing.T) {
	p := newOffline(t)

	code := "function hello(name) {\n  console.log(name);\n}\n"
	text, _, err := p.Translate(context.Background(), code, "JavaScript", "Python", TranslateOptions{})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if !strings.Contains(text, "def hello(name):") {
		t.Errorf("missing def in:\n%s", text)
	}
	if !strings.Contains(text, "print(name)") {
		t.Errorf("missing print in:\n%s", text)
	}
	if strings.Contains(text, "}") {
		t.Errorf("closing braces survived:\n%s", text)
	}
}

func TestOffline_JavaToPython(t *testing.T) {
	p := newOffline(t)

	code := strings.Join([]string{
		"public class Greeter {",
		"    public static void greet(String name) {",
		"        System.out.println(name);",
		"    }",
		"}",
	}, "\n")

	text, _, err := p.Translate(context.Background(), code, "Java", "Python", TranslateOptions{})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if !strings.Contains(text, "class Greeter:") {
		t.Errorf("missing class in:\n%s", text)
	}
	if !strings.Contains(text, "def greet(name):") {
		t.Errorf("missing def in:\n%s", text)
	}
	if !strings.Contains(text, "print(name)") {
		t.Errorf("missing print in:\n%s", text)
	}
}

func TestOffline_UnsupportedPairGetsMarker(t *testing.T) {
	p := newOffline(t)

	text, _, err := p.Translate(context.Background(), "let x = 1", "Swift", "Ruby", TranslateOptions{})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if !strings.Contains(text, "manual adjustments") {
		t.Errorf("expected generic fallback marker, got:\n%s", text)
	}
	if !strings.Contains(text, "let x = 1") {
		t.Error("original code dropped")
	}
}

func TestOffline_TypeMappings(t *testing.T) {
	p := newOffline(t)

	text, _, err := p.Translate(context.Background(), "x = True\ny = None\n", "Python", "JavaScript", TranslateOptions{})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if !strings.Contains(text, "true") || !strings.Contains(text, "null") {
		t.Errorf("type/constant mapping missing:\n%s", text)
	}
}

func TestOffline_ExplainLineByLine(t *testing.T) {
	p := newOffline(t)

	code := "def add(a, b):\n    return a + b"
	text, err := p.Explain(context.Background(), code, "Python", true)
	if err != nil {
		t.Fatalf("explain failed: %v", err)
	}
	if !strings.Contains(text, "# Define function: add") {
		t.Errorf("missing function comment:\n%s", text)
	}
	if !strings.Contains(text, "# Return value") {
		t.Errorf("missing return comment:\n%s", text)
	}
}

func TestOffline_ExplainSummary(t *testing.T) {
	p := newOffline(t)

	code := "def add(a, b):\n    return a + b\n\nclass Calc:\n    pass\n"
	text, err := p.Explain(context.Background(), code, "Python", false)
	if err != nil {
		t.Fatalf("explain failed: %v", err)
	}
	if !strings.Contains(text, "This is Python code.") {
		t.Errorf("missing header:\n%s", text)
	}
	if !strings.Contains(text, "add") || !strings.Contains(text, "Calc") {
		t.Errorf("missing function/class names:\n%s", text)
	}
}

func TestOffline_AlwaysHealthyAndIdempotentInit(t *testing.T) {
	p := newOffline(t)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize failed: %v", err)
	}
	if got := p.HealthProbe(context.Background()); got != StatusHealthy {
		t.Errorf("expected healthy, got %s", got)
	}
}
