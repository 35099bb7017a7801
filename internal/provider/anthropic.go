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

// AnthropicProvider translates code through the Anthropic API.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	initialized bool
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.anthropic.com/v1",
		Model:   "claude-3-opus-20240229",
		Timeout: 120 * time.Second,
	}
}

// NewAnthropicProvider creates an Anthropic provider from the generic config.
func NewAnthropicProvider(cfg Config) (Provider, error) {
	ac := DefaultAnthropicConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		ac.BaseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		ac.Model = cfg.Model
	}
	if cfg.Timeout > 0 {
		ac.Timeout = cfg.Timeout
	}
	return &AnthropicProvider{
		apiKey:     ac.APIKey,
		baseURL:    ac.BaseURL,
		model:      ac.Model,
		httpClient: &http.Client{Timeout: ac.Timeout},
	}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Initialize verifies credentials. Idempotent.
func (p *AnthropicProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if p.apiKey == "" {
		return fmt.Errorf("anthropic API key not configured")
	}
	p.initialized = true
	return nil
}

// anthropicRequest is the messages API request body.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the messages API response body.
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *AnthropicProvider) complete(ctx context.Context, systemPrompt, userPrompt string, opts TranslateOptions) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("anthropic API key not configured")
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

	reqBody := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
		Temperature: temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

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

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", p.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

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

		var parsed anthropicResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return "", fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Content) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		var result strings.Builder
		for _, block := range parsed.Content {
			if block.Type == "text" {
				result.WriteString(block.Text)
			}
		}
		return strings.TrimSpace(result.String()), nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Translate converts code between languages.
func (p *AnthropicProvider) Translate(ctx context.Context, code, sourceLang, targetLang string, opts TranslateOptions) (string, float64, error) {
	prompt := fmt.Sprintf(`Translate this %s code to %s.

Requirements:
- Maintain the exact logic and functionality
- Use %s idioms and best practices
- Handle paradigm differences appropriately
- Include necessary imports/headers
- Preserve comments but translate them
- Output only the translated code, no explanations

%s code:
%s
`, sourceLang, targetLang, targetLang, sourceLang, code)

	text, err := p.complete(ctx, "", prompt, opts)
	if err != nil {
		return "", 0, err
	}
	return text, 0.97, nil
}

// Explain produces a plain-English explanation of the code.
func (p *AnthropicProvider) Explain(ctx context.Context, code, language string, lineByLine bool) (string, error) {
	var prompt string
	if lineByLine {
		prompt = fmt.Sprintf(`Add detailed inline comments to this %s code.
For each significant line, add a comment explaining what it does and why.
Preserve the original code structure.

%s code:
%s
`, language, language, code)
	} else {
		prompt = fmt.Sprintf(`Provide a comprehensive explanation of this %s code.

Include:
1. Overall purpose and functionality
2. Description of each function/class
3. Data flow and control flow
4. Key algorithms or patterns used
5. Any potential issues or improvements

%s code:
%s
`, language, language, code)
	}
	return p.complete(ctx, "", prompt, TranslateOptions{Temperature: 0.3})
}

// HealthProbe sends a minimal completion to verify reachability and
// credentials.
func (p *AnthropicProvider) HealthProbe(ctx context.Context) Status {
	reqBody := anthropicRequest{
		Model:     p.model,
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return StatusUnknown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return StatusUnknown
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

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

// Capabilities reports what the Anthropic provider supports.
func (p *AnthropicProvider) Capabilities() Capabilities {
	return Capabilities{
		SupportedModels:   []string{"claude-3-opus-20240229", "claude-3-sonnet-20240229", "claude-3-haiku-20240307"},
		MaxTokens:         4096,
		SupportsStreaming: true,
		SupportsFunctions: false,
		SupportsVision:    true,
		RateLimits:        map[string]int{"requests_per_minute": 50, "tokens_per_minute": 100000},
		VersionInfo:       map[string]string{"api_version": "2023-06-01"},
	}
}

// Close releases the provider.
func (p *AnthropicProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
