// Package web binds the translation façade to the HTTP surface.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"polyglot/internal/analyzer"
	"polyglot/internal/faults"
	"polyglot/internal/notebook"
	"polyglot/internal/provider"
	"polyglot/internal/translator"
)

// Options configures the server.
type Options struct {
	Engine  *translator.Engine
	Faults  *faults.Handler
	Logger  *zap.Logger
	Version string
}

// Server serves the JSON API.
type Server struct {
	engine  *translator.Engine
	faults  *faults.Handler
	logger  *zap.Logger
	version string
}

// New builds a server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := opts.Faults
	if handler == nil {
		handler = faults.NewHandler(nil)
	}
	return &Server{
		engine:  opts.Engine,
		faults:  handler,
		logger:  logger,
		version: opts.Version,
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("POST /api/detect", s.handleDetect)
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("POST /api/explain", s.handleExplain)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/generate-tests", s.handleGenerateTests)
	mux.HandleFunc("POST /api/notebook/translate", s.handleNotebookTranslate)
	return mux
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFault records the error and surfaces its user message plus the
// correlation identifier; raw error text stays in the structured log.
func (s *Server) writeFault(w http.ResponseWriter, status int, err error, operation string) {
	rec := s.faults.Handle(err,
		faults.WithComponent("web"),
		faults.WithOperation(operation))
	writeJSON(w, status, errorResponse{
		Error:         rec.UserMessage,
		CorrelationID: rec.Context.CorrelationID,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var available []string
	for name, inst := range s.engine.Registry().All() {
		if inst.Status() == provider.StatusHealthy {
			available = append(available, name)
		}
	}
	if available == nil {
		available = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"version":             s.version,
		"providers_available": available,
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"languages": translator.SupportedLanguages,
	})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	detected := s.engine.Detect(req.Code)
	resp := map[string]any{
		"detected_language": nil,
		"confidence":        0.0,
	}
	if detected != "" {
		resp["detected_language"] = detected
		resp["confidence"] = 0.85
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string `json:"code"`
		SourceLang string `json:"source_lang"`
		TargetLang string `json:"target_lang"`
		Provider   string `json:"provider"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "missing required field: code")
		return
	}
	if req.TargetLang == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "missing required field: target_lang")
		return
	}

	result, err := s.engine.Translate(r.Context(), req.Code, req.SourceLang, req.TargetLang, req.Provider)
	if err != nil {
		var unsupported *translator.UnsupportedLanguageError
		switch {
		case errors.As(err, &unsupported), errors.Is(err, translator.ErrLanguageUndetected):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeFault(w, http.StatusInternalServerError, fmt.Errorf("translation failed: %w", err), "translate")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"translated_code": result.Text,
		"source_lang":     result.SourceLang,
		"target_lang":     result.TargetLang,
		"confidence":      result.Confidence,
		"provider_used":   result.ProviderUsed,
	})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string `json:"code"`
		Language   string `json:"language"`
		LineByLine bool   `json:"line_by_line"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	lang := req.Language
	if lang == "" {
		lang = s.engine.Detect(req.Code)
		if lang == "" {
			lang = "Unknown"
		}
	}

	explanation, err := s.engine.Explain(r.Context(), req.Code, lang, req.LineByLine)
	if err != nil {
		s.writeFault(w, http.StatusInternalServerError, fmt.Errorf("explanation failed: %w", err), "explain")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"explanation": explanation,
		"language":    lang,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		Language string `json:"language"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	analysis, err := s.engine.Analyze(req.Code, req.Language)
	if err != nil {
		var unsupported *translator.UnsupportedLanguageError
		switch {
		case errors.As(err, &unsupported), errors.Is(err, translator.ErrLanguageUndetected):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeFault(w, http.StatusInternalServerError, fmt.Errorf("analysis failed: %w", err), "analyze")
		}
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleGenerateTests(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code      string `json:"code"`
		Language  string `json:"language"`
		Framework string `json:"framework"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	tests, framework, language, err := s.engine.GenerateTests(req.Code, req.Language, req.Framework)
	if err != nil {
		var unsupported *translator.UnsupportedLanguageError
		switch {
		case errors.As(err, &unsupported),
			errors.Is(err, translator.ErrLanguageUndetected),
			errors.Is(err, analyzer.ErrUnknownFramework):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeFault(w, http.StatusInternalServerError, fmt.Errorf("test generation failed: %w", err), "generate_tests")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tests":     tests,
		"framework": framework,
		"language":  language,
	})
}

func (s *Server) handleNotebookTranslate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NotebookJSON string `json:"notebook_json"`
		SourceLang   string `json:"source_lang"`
		TargetLang   string `json:"target_lang"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	for _, lang := range []string{req.SourceLang, req.TargetLang} {
		if !isSupportedLanguage(lang) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported language: %s", lang))
			return
		}
	}

	nb, err := notebook.Parse([]byte(req.NotebookJSON))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	transformer := notebook.NewTransformer(s.engine)
	translated, stats, err := transformer.Translate(r.Context(), nb, req.SourceLang, req.TargetLang, "")
	if err != nil {
		s.writeFault(w, http.StatusInternalServerError, fmt.Errorf("notebook translation failed: %w", err), "notebook_translate")
		return
	}

	raw, err := translated.ToJSON()
	if err != nil {
		s.writeFault(w, http.StatusInternalServerError, err, "notebook_translate")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notebook": json.RawMessage(raw),
		"stats":    stats,
	})
}

func isSupportedLanguage(lang string) bool {
	for _, l := range translator.SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
