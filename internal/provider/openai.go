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

// apiGeneration distinguishes the two OpenAI client call shapes. The older
// generation exposes a flat completions endpoint keyed by engine; the
// current generation uses chat completions keyed by model. Both surface
// through the uniform provider contract identically.
type apiGeneration int

const (
	generationCurrent apiGeneration = iota
	generationLegacy
)

func (g apiGeneration) String() string {
	if g == generationLegacy {
		return "legacy"
	}
	return "current"
}

// OpenAIProvider translates code through the OpenAI API.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	initialized bool
	generation  apiGeneration
	forceLegacy bool
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4",
		Timeout: 120 * time.Second,
	}
}

// NewOpenAIProvider creates an OpenAI provider from the generic config.
func NewOpenAIProvider(cfg Config) (Provider, error) {
	oc := DefaultOpenAIConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		oc.Model = cfg.Model
	}
	if cfg.Timeout > 0 {
		oc.Timeout = cfg.Timeout
	}
	return &OpenAIProvider{
		apiKey:      oc.APIKey,
		baseURL:     oc.BaseURL,
		model:       oc.Model,
		forceLegacy: cfg.LegacyAPI,
		httpClient:  &http.Client{Timeout: oc.Timeout},
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return "openai" }

// Initialize verifies credentials and detects the client generation.
// Calling it again on an initialized provider is a no-op.
func (p *OpenAIProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if p.apiKey == "" {
		return fmt.Errorf("openai API key not configured")
	}

	if p.forceLegacy {
		p.generation = generationLegacy
	} else {
		p.generation = p.detectGeneration(ctx)
	}
	p.initialized = true
	return nil
}

// detectGeneration probes the models endpoint; servers that predate it
// only answer on the engines listing.
func (p *OpenAIProvider) detectGeneration(ctx context.Context) apiGeneration {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return generationCurrent
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return generationCurrent
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return generationLegacy
	}
	return generationCurrent
}

// openAIMessage is one chat message.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIChatRequest is the current-generation request body.
type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

// openAILegacyRequest is the older completions request body. The engine
// field carries what the current generation calls model; unsupported
// parameters are filtered out rather than forwarded.
type openAILegacyRequest struct {
	Engine      string  `json:"engine"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// openAIResponse covers both response shapes; the adapter flattens them to
// a single content string.
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// complete sends a system+user prompt through whichever call shape the
// detected generation requires.
func (p *OpenAIProvider) complete(ctx context.Context, systemPrompt, userPrompt string, opts TranslateOptions) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("openai API key not configured")
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

	p.mu.Lock()
	generation := p.generation
	p.mu.Unlock()

	var path string
	var body any
	if generation == generationLegacy {
		path = "/completions"
		body = openAILegacyRequest{
			Engine:      model,
			Prompt:      systemPrompt + "\n\n" + userPrompt,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		}
	} else {
		path = "/chat/completions"
		body = openAIChatRequest{
			Model: model,
			Messages: []openAIMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			MaxTokens:   maxTokens,
			Temperature: temperature,
		}
	}

	jsonData, err := json.Marshal(body)
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

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.apiKey)

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

		var parsed openAIResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return "", fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		// Flatten both shapes to plain text.
		content := parsed.Choices[0].Message.Content
		if content == "" {
			content = parsed.Choices[0].Text
		}
		return strings.TrimSpace(content), nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Translate converts code between languages.
func (p *OpenAIProvider) Translate(ctx context.Context, code, sourceLang, targetLang string, opts TranslateOptions) (string, float64, error) {
	prompt := fmt.Sprintf(`You are an expert code translator. Translate the following %s code to %s.

Requirements:
- Maintain the exact functionality and logic
- Use idiomatic %s patterns and conventions
- Handle language-specific features appropriately
- Include necessary imports/headers
- Preserve comments but translate them
- Output only the translated code without explanations

%s code:
%s
`, sourceLang, targetLang, targetLang, sourceLang, code)

	text, err := p.complete(ctx, "You are an expert programmer skilled in code translation.", prompt, opts)
	if err != nil {
		return "", 0, err
	}

	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}
	confidence := 0.90
	if strings.HasPrefix(model, "gpt-4") {
		confidence = 0.95
	}
	return text, confidence, nil
}

// Explain produces a plain-English explanation of the code.
func (p *OpenAIProvider) Explain(ctx context.Context, code, language string, lineByLine bool) (string, error) {
	var prompt string
	if lineByLine {
		prompt = fmt.Sprintf(`Add detailed inline comments to this %s code explaining what each line does.
Keep the original code and add comments above or inline with each significant line.

%s code:
%s
`, language, language, code)
	} else {
		prompt = fmt.Sprintf(`Explain this %s code in plain English.
Describe:
1. What the code does overall
2. The main components/functions
3. The flow of execution
4. Any important patterns or techniques used

%s code:
%s
`, language, language, code)
	}
	return p.complete(ctx, "You are an expert code explainer.", prompt, TranslateOptions{Temperature: 0.3})
}

// HealthProbe checks the API with a lightweight models listing.
func (p *OpenAIProvider) HealthProbe(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return StatusUnknown
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
	// Legacy servers have no models listing; reachability is enough.
	case resp.StatusCode == http.StatusNotFound:
		return StatusHealthy
	default:
		return StatusUnhealthy
	}
}

// Capabilities reports what the OpenAI provider supports.
func (p *OpenAIProvider) Capabilities() Capabilities {
	p.mu.Lock()
	generation := p.generation
	p.mu.Unlock()

	return Capabilities{
		SupportedModels:   []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"},
		MaxTokens:         8192,
		SupportsStreaming: true,
		SupportsFunctions: true,
		SupportsVision:    false,
		RateLimits:        map[string]int{"requests_per_minute": 60, "tokens_per_minute": 90000},
		VersionInfo:       map[string]string{"api_generation": generation.String()},
	}
}

// Close releases the provider.
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
