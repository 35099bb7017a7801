// Package translator is the public operation surface: translate, detect,
// explain, analyze, and generate-tests, consumed by the CLI and HTTP
// collaborators. It routes provider work through the fallback chain and
// fronts it with a bounded LRU cache.
package translator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"polyglot/internal/analyzer"
	"polyglot/internal/config"
	"polyglot/internal/faults"
	"polyglot/internal/provider"
	"polyglot/internal/resilience"
)

// Auto requests auto-detection (languages) or auto-selection (providers).
const Auto = "auto"

// CacheProvider is the provider name reported for cache hits.
const CacheProvider = "cache"

// SupportedLanguages is the façade's language set.
var SupportedLanguages = analyzer.SupportedLanguages

// ErrLanguageUndetected is surfaced when auto-detection finds nothing.
var ErrLanguageUndetected = errors.New("could not auto-detect source language")

// UnsupportedLanguageError names the offending language.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language: %s (supported: %s)",
		e.Language, strings.Join(SupportedLanguages, ", "))
}

// Result is a completed translation.
type Result struct {
	Text         string
	Confidence   float64
	SourceLang   string
	TargetLang   string
	ProviderUsed string
}

// Options configures an Engine.
type Options struct {
	Store    *config.Store
	Registry *provider.Registry
	Faults   *faults.Handler
	Logger   *zap.Logger
}

// Engine is the translation façade. It holds the registry by reference,
// owns the LRU cache, and derives per-call deadlines from the
// translation_timeout configuration field.
type Engine struct {
	store    *config.Store
	registry *provider.Registry
	chain    *provider.Chain
	faults   *faults.Handler
	logger   *zap.Logger
	cache    *lruCache
}

// providerPriority is the chain attempt order when no provider is forced.
var providerPriority = []string{"anthropic", "openai", "google", "offline"}

// NewEngine builds the façade. Call SetupProviders before translating.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := opts.Faults
	if handler == nil {
		handler = faults.NewHandler(nil)
	}
	registry := opts.Registry
	if registry == nil {
		registry = provider.NewRegistry(logger)
	}

	cacheSize := DefaultCacheSize
	if opts.Store != nil {
		cacheSize = opts.Store.GetInt("max_cache_size", DefaultCacheSize)
	}

	return &Engine{
		store:    opts.Store,
		registry: registry,
		chain:    provider.NewChain(),
		faults:   handler,
		logger:   logger,
		cache:    newLRUCache(cacheSize),
	}
}

// SetupProviders discovers the built-in providers, creates every one the
// configuration has credentials for (the offline provider always), and
// rebuilds the fallback chain in priority order.
func (e *Engine) SetupProviders(ctx context.Context) {
	e.registry.Discover()

	credentials := map[string]string{
		"openai":    e.configString(config.KeyOpenAIAPIKey),
		"anthropic": e.configString(config.KeyAnthropicAPIKey),
		"google":    e.configString(config.KeyGoogleAPIKey),
	}

	for name, apiKey := range credentials {
		if apiKey == "" {
			continue
		}
		if _, err := e.registry.Create(ctx, name, provider.Config{APIKey: apiKey}); err != nil {
			e.faults.Handle(err,
				faults.WithCategory(faults.CategoryProvider),
				faults.WithComponent("translator"),
				faults.WithOperation("setup_providers"),
				faults.WithMetadata(map[string]string{"provider": name}))
		}
	}

	if _, err := e.registry.Create(ctx, "offline", provider.Config{}); err != nil {
		e.faults.Handle(err,
			faults.WithCategory(faults.CategoryProvider),
			faults.WithComponent("translator"),
			faults.WithOperation("setup_providers"),
			faults.WithMetadata(map[string]string{"provider": "offline"}))
	}

	e.RebuildChain()
}

// RebuildChain recomposes the fallback chain from whatever the registry
// holds, in fixed priority order. Callers that create providers directly
// through the registry call this afterwards.
func (e *Engine) RebuildChain() {
	var instances []*provider.Instance
	for _, name := range providerPriority {
		if inst, ok := e.registry.Get(name); ok {
			instances = append(instances, inst)
		}
	}
	e.chain = provider.NewChain(instances...)
}

// Registry returns the engine's provider registry.
func (e *Engine) Registry() *provider.Registry { return e.registry }

// Chain returns the engine's fallback chain.
func (e *Engine) Chain() *provider.Chain { return e.chain }

// Close shuts the providers down.
func (e *Engine) Close() {
	e.registry.Shutdown()
}

func (e *Engine) configString(key string) string {
	if e.store == nil {
		return ""
	}
	return e.store.GetString(key, "")
}

// timeout returns the per-call deadline from configuration.
func (e *Engine) timeout() time.Duration {
	seconds := 30
	if e.store != nil {
		seconds = e.store.GetInt("translation_timeout", 30)
	}
	return time.Duration(seconds) * time.Second
}

func cacheKey(sourceLang, targetLang, code string) string {
	sum := sha256.Sum256([]byte(code))
	return sourceLang + "|" + targetLang + "|" + hex.EncodeToString(sum[:])
}

// resolveSource validates the source language, auto-detecting when asked.
func (e *Engine) resolveSource(code, sourceLang string) (string, error) {
	if sourceLang == "" || sourceLang == Auto {
		detected := analyzer.Detect(code)
		if detected == "" {
			return "", ErrLanguageUndetected
		}
		return detected, nil
	}
	if !analyzer.IsSupported(sourceLang) {
		return "", &UnsupportedLanguageError{Language: sourceLang}
	}
	return sourceLang, nil
}

// Translate converts code from sourceLang (or auto) to targetLang through
// the chosen provider (or the fallback chain). Cache hits return with
// confidence 1.0. Any non-offline provider failure is retried exactly once
// against the offline provider before the composite fault surfaces.
func (e *Engine) Translate(ctx context.Context, code, sourceLang, targetLang, providerName string) (*Result, error) {
	if !analyzer.IsSupported(targetLang) {
		return nil, &UnsupportedLanguageError{Language: targetLang}
	}
	src, err := e.resolveSource(code, sourceLang)
	if err != nil {
		return nil, err
	}

	key := cacheKey(src, targetLang, code)
	if text, ok := e.cache.Get(key); ok {
		return &Result{
			Text:         text,
			Confidence:   1.0,
			SourceLang:   src,
			TargetLang:   targetLang,
			ProviderUsed: CacheProvider,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	var (
		text       string
		confidence float64
		used       string
	)

	if providerName != "" && providerName != Auto {
		text, confidence, used, err = e.translateWithProvider(ctx, code, src, targetLang, providerName)
	} else {
		text, confidence, used, err = e.chain.Translate(ctx, code, src, targetLang, provider.TranslateOptions{}, resilience.PriorityNormal)
		if err != nil {
			// The chain normally ends at the offline provider; when it was
			// unavailable mid-chain, give the rule engine one last chance.
			text, confidence, used, err = e.retryOffline(ctx, code, src, targetLang, err)
		}
	}
	if err != nil {
		e.faults.Handle(err,
			faults.WithCategory(faults.CategoryProvider),
			faults.WithComponent("translator"),
			faults.WithOperation("translate"))
		return nil, err
	}

	e.cache.Put(key, text)
	return &Result{
		Text:         text,
		Confidence:   confidence,
		SourceLang:   src,
		TargetLang:   targetLang,
		ProviderUsed: used,
	}, nil
}

// translateWithProvider routes to a single named provider, falling back to
// the offline rule engine exactly once on failure.
func (e *Engine) translateWithProvider(ctx context.Context, code, src, targetLang, name string) (string, float64, string, error) {
	inst, ok := e.registry.Get(name)
	if !ok {
		return "", 0, "", fmt.Errorf("unknown provider: %s", name)
	}

	text, confidence, err := inst.Translate(ctx, code, src, targetLang, provider.TranslateOptions{})
	if err == nil {
		return text, confidence, name, nil
	}
	if name == "offline" {
		return "", 0, "", &provider.AllFailedError{
			Failures: []provider.Failure{{Provider: name, Err: err}},
		}
	}

	e.faults.Handle(err,
		faults.WithCategory(faults.CategoryProvider),
		faults.WithComponent("translator"),
		faults.WithOperation("translate"),
		faults.WithMetadata(map[string]string{"provider": name}))

	cause := &provider.AllFailedError{Failures: []provider.Failure{{Provider: name, Err: err}}}
	return e.retryOffline(ctx, code, src, targetLang, cause)
}

// retryOffline makes the single offline retry after a provider failure,
// folding the earlier fault into the composite error when it fails too.
func (e *Engine) retryOffline(ctx context.Context, code, src, targetLang string, cause error) (string, float64, string, error) {
	inst, ok := e.registry.Get("offline")
	if !ok {
		return "", 0, "", cause
	}

	text, confidence, err := inst.Translate(ctx, code, src, targetLang, provider.TranslateOptions{})
	if err == nil {
		return text, confidence, "offline", nil
	}

	failures := []provider.Failure{{Provider: "offline", Err: err}}
	var all *provider.AllFailedError
	if errors.As(cause, &all) {
		failures = append(all.Failures, failures...)
	} else {
		failures = append([]provider.Failure{{Provider: "chain", Err: cause}}, failures...)
	}
	return "", 0, "", &provider.AllFailedError{Failures: failures}
}

// Detect returns the detected language of code, or "" for undetected.
func (e *Engine) Detect(code string) string {
	return analyzer.Detect(code)
}

// Explain produces a plain-English explanation (or line-by-line comments)
// of the code, falling back to the offline rule engine when providers fail.
func (e *Engine) Explain(ctx context.Context, code, language string, lineByLine bool) (string, error) {
	lang := language
	if lang == "" || lang == Auto {
		lang = analyzer.Detect(code)
		if lang == "" {
			lang = "Unknown"
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	text, _, err := e.chain.Explain(ctx, code, lang, lineByLine, resilience.PriorityNormal)
	if err == nil {
		return text, nil
	}

	e.faults.Handle(err,
		faults.WithCategory(faults.CategoryProvider),
		faults.WithComponent("translator"),
		faults.WithOperation("explain"))

	if inst, ok := e.registry.Get("offline"); ok {
		if text, offErr := inst.Explain(ctx, code, lang, lineByLine); offErr == nil {
			return text, nil
		}
	}
	return "", err
}

// Analyze runs the complexity analysis, auto-detecting the language when
// asked.
func (e *Engine) Analyze(code, language string) (*analyzer.CodeAnalysis, error) {
	lang := language
	if lang == "" || lang == Auto {
		lang = analyzer.Detect(code)
		if lang == "" {
			return nil, ErrLanguageUndetected
		}
	} else if !analyzer.IsSupported(lang) {
		return nil, &UnsupportedLanguageError{Language: lang}
	}
	return analyzer.Analyze(code, lang), nil
}

// GenerateTests emits test skeletons for the code, auto-detecting language
// and framework when asked.
func (e *Engine) GenerateTests(code, language, framework string) (string, string, string, error) {
	lang := language
	if lang == "" || lang == Auto {
		lang = analyzer.Detect(code)
		if lang == "" {
			return "", "", "", ErrLanguageUndetected
		}
	} else if !analyzer.IsSupported(lang) {
		return "", "", "", &UnsupportedLanguageError{Language: lang}
	}

	var fw analyzer.TestFramework
	if framework == "" || framework == Auto {
		fw = analyzer.DefaultFramework(lang)
	} else {
		parsed, err := analyzer.ParseFramework(framework)
		if err != nil {
			return "", "", "", err
		}
		fw = parsed
	}

	return analyzer.GenerateTests(code, lang, fw), string(fw), lang, nil
}

// CacheLen reports the number of cached translations.
func (e *Engine) CacheLen() int { return e.cache.Len() }
