package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// GoogleProvider translates code through the Gemini API.
type GoogleProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	initialized bool
}

// GoogleConfig holds configuration for the Google provider.
type GoogleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultGoogleConfig returns sensible defaults.
func DefaultGoogleConfig(apiKey string) GoogleConfig {
	return GoogleConfig{
		APIKey:  apiKey,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-pro",
		Timeout: 120 * time.Second,
	}
}

// NewGoogleProvider creates a Google provider from the generic config.
func NewGoogleProvider(cfg Config) (Provider, error) {
	gc := DefaultGoogleConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		gc.BaseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		gc.Model = cfg.Model
	}
	if cfg.Timeout > 0 {
		gc.Timeout = cfg.Timeout
	}
	return &GoogleProvider{
		apiKey:     gc.APIKey,
		baseURL:    gc.BaseURL,
		model:      gc.Model,
		httpClient: &http.Client{Timeout: gc.Timeout},
	}, nil
}

// Name returns the provider name.
func (p *GoogleProvider) Name() string { return "google" }

// Initialize verifies credentials. Idempotent.
func (p *GoogleProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if p.apiKey == "" {
		return fmt.Errorf("google API key not configured")
	}
	p.initialized = true
	return nil
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (p *GoogleProvider) complete(ctx context.Context, prompt string, opts TranslateOptions) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("google API key not configured")
	}

	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.2
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
		}

		var parsed geminiResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return "", fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		var result strings.Builder
		for _, part := range parsed.Candidates[0].Content.Parts {
			result.WriteString(part.Text)
		}
		return strings.TrimSpace(result.String()), nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Translate converts code between languages.
func (p *GoogleProvider) Translate(ctx context.Context, code, sourceLang, targetLang string, opts TranslateOptions) (string, float64, error) {
	prompt := fmt.Sprintf(`You are an expert code translator. Translate this %s code to %s.

Instructions:
- Preserve the exact functionality
- Use appropriate %s conventions
- Handle language-specific features properly
- Output only code, no explanations

%s code:
%s
`, sourceLang, targetLang, targetLang, sourceLang, code)

	text, err := p.complete(ctx, prompt, opts)
	if err != nil {
		return "", 0, err
	}
	return text, 0.93, nil
}

// Explain produces a plain-English explanation of the code.
func (p *GoogleProvider) Explain(ctx context.Context, code, language string, lineByLine bool) (string, error) {
	var prompt string
	if lineByLine {
		prompt = fmt.Sprintf(`Add inline comments to this %s code explaining each line.
Keep all original code and add explanatory comments.

%s code:
%s
`, language, language, code)
	} else {
		prompt = fmt.Sprintf(`Explain this %s code in detail.
Describe what it does, how it works, and any important patterns.

%s code:
%s
`, language, language, code)
	}
	return p.complete(ctx, prompt, TranslateOptions{Temperature: 0.3})
}

// HealthProbe lists models to verify reachability and the API key.
func (p *GoogleProvider) HealthProbe(ctx context.Context) Status {
	url := fmt.Sprintf("%s/models?key=%s", p.baseURL, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusUnknown
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return StatusUnhealthy
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return StatusHealthy
	case resp.StatusCode == http.StatusTooManyRequests:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// Capabilities reports what the Google provider supports.
func (p *GoogleProvider) Capabilities() Capabilities {
	return Capabilities{
		SupportedModels:   []string{"gemini-pro", "gemini-1.5-pro", "gemini-1.5-flash"},
		MaxTokens:         8192,
		SupportsStreaming: true,
		SupportsFunctions: true,
		SupportsVision:    true,
		RateLimits:        map[string]int{"requests_per_minute": 60, "tokens_per_minute": 120000},
		VersionInfo:       map[string]string{"api_version": "v1beta"},
	}
}

// Close releases the provider.
func (p *GoogleProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
