// Package faults classifies, records, and formats errors raised anywhere
// in the translation pipeline. Every surfaced fault carries a correlation
// identifier that threads it through the structured log and the user-visible
// error message.
package faults

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context carries the situational information attached to a fault.
type Context struct {
	CorrelationID string            `json:"correlation_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Component     string            `json:"component,omitempty"`
	Operation     string            `json:"operation,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	RequestID     string            `json:"request_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Record is the complete description of one fault.
type Record struct {
	Err                 error    `json:"-"`
	ErrorKind           string   `json:"error_kind"`
	ErrorMessage        string   `json:"error_message"`
	Category            Category `json:"category"`
	Severity            Severity `json:"severity"`
	Context             Context  `json:"context"`
	UserMessage         string   `json:"user_message"`
	RecoverySuggestions []string `json:"recovery_suggestions,omitempty"`
}

// Error implements error so a Record can travel through error returns.
func (r *Record) Error() string {
	return r.ErrorMessage
}

// Unwrap exposes the underlying error for errors.Is/As.
func (r *Record) Unwrap() error {
	return r.Err
}

// classifierRule pairs a predicate with its classification.
type classifierRule struct {
	match    func(error) bool
	category Category
	severity Severity
}

// Classifier assigns a category and severity to arbitrary errors by
// inspecting their text. Rules run in registration order; first match wins.
type Classifier struct {
	rules []classifierRule
}

// NewClassifier returns a classifier loaded with the default rule set.
func NewClassifier() *Classifier {
	c := &Classifier{}

	contains := func(substrs ...string) func(error) bool {
		return func(err error) bool {
			msg := strings.ToLower(err.Error())
			for _, s := range substrs {
				if strings.Contains(msg, s) {
					return true
				}
			}
			return false
		}
	}

	c.AddRule(contains("timeout", "deadline exceeded"), CategoryNetwork, SeverityMedium)
	c.AddRule(contains("connection", "network", "unreachable", "no such host"), CategoryNetwork, SeverityMedium)
	c.AddRule(contains("unauthorized", "authentication", "401", "403", "api key"), CategoryAuthentication, SeverityHigh)
	c.AddRule(contains("rate limit", "429", "too many requests"), CategoryRateLimit, SeverityLow)
	c.AddRule(contains("config", "setting"), CategoryConfiguration, SeverityHigh)
	c.AddRule(contains("validation", "invalid", "unsupported"), CategoryValidation, SeverityMedium)
	c.AddRule(contains("no space", "permission denied", "out of memory"), CategorySystem, SeverityCritical)

	return c
}

// AddRule appends a classification rule. Later rules only fire when no
// earlier rule matched.
func (c *Classifier) AddRule(match func(error) bool, category Category, severity Severity) {
	c.rules = append(c.rules, classifierRule{match: match, category: category, severity: severity})
}

// Classify returns the category and severity for an error.
func (c *Classifier) Classify(err error) (Category, Severity) {
	for _, rule := range c.rules {
		if rule.match(err) {
			return rule.category, rule.severity
		}
	}
	return CategoryUnknown, SeverityMedium
}

// HandleOption customizes a single Handle call.
type HandleOption func(*handleOptions)

type handleOptions struct {
	category    Category
	severity    Severity
	component   string
	operation   string
	sessionID   string
	requestID   string
	metadata    map[string]string
	suggestions []string
}

// WithCategory forces the fault category instead of classifying.
func WithCategory(c Category) HandleOption {
	return func(o *handleOptions) { o.category = c }
}

// WithSeverity forces the fault severity.
func WithSeverity(s Severity) HandleOption {
	return func(o *handleOptions) { o.severity = s }
}

// WithComponent names the component the fault arose in.
func WithComponent(name string) HandleOption {
	return func(o *handleOptions) { o.component = name }
}

// WithOperation names the operation that failed.
func WithOperation(name string) HandleOption {
	return func(o *handleOptions) { o.operation = name }
}

// WithRequestID attaches a request identifier.
func WithRequestID(id string) HandleOption {
	return func(o *handleOptions) { o.requestID = id }
}

// WithSessionID attaches a session identifier.
func WithSessionID(id string) HandleOption {
	return func(o *handleOptions) { o.sessionID = id }
}

// WithMetadata merges free-form metadata into the fault context.
func WithMetadata(md map[string]string) HandleOption {
	return func(o *handleOptions) {
		if o.metadata == nil {
			o.metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			o.metadata[k] = v
		}
	}
}

// WithSuggestions appends recovery suggestions shown to the user.
func WithSuggestions(s ...string) HandleOption {
	return func(o *handleOptions) { o.suggestions = append(o.suggestions, s...) }
}

// Handler is the fault-handling pipeline: classify, record, log.
// Construct one per application and thread it explicitly; the test harness
// constructs an isolated handler per test.
type Handler struct {
	classifier  *Classifier
	telemetry   *Telemetry
	degradation *Degradation
	logger      *zap.Logger
}

// NewHandler builds a handler. A nil logger disables structured logging.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		classifier:  NewClassifier(),
		telemetry:   NewTelemetry(DefaultTelemetryCapacity),
		degradation: NewDegradation(),
		logger:      logger,
	}
}

// Handle classifies err, records it in telemetry, writes it to the
// structured log, and returns the resulting Record.
func (h *Handler) Handle(err error, opts ...HandleOption) *Record {
	var o handleOptions
	for _, opt := range opts {
		opt(&o)
	}

	category, severity := o.category, o.severity
	if category == "" || severity == 0 {
		autoCat, autoSev := h.classifier.Classify(err)
		if category == "" {
			category = autoCat
		}
		if severity == 0 {
			severity = autoSev
		}
	}

	rec := &Record{
		Err:          err,
		ErrorKind:    errorKind(err),
		ErrorMessage: err.Error(),
		Category:     category,
		Severity:     severity,
		Context: Context{
			CorrelationID: uuid.NewString(),
			Timestamp:     time.Now(),
			Component:     o.component,
			Operation:     o.operation,
			SessionID:     o.sessionID,
			RequestID:     o.requestID,
			Metadata:      o.metadata,
		},
		UserMessage:         UserMessage(category),
		RecoverySuggestions: o.suggestions,
	}

	h.telemetry.Record(rec)
	h.log(rec)

	return rec
}

// log writes the record to the structured log. Critical faults are logged
// at the highest level and flip the named feature into degraded mode when
// the metadata names one.
func (h *Handler) log(rec *Record) {
	fields := []zap.Field{
		zap.String("correlation_id", rec.Context.CorrelationID),
		zap.String("category", string(rec.Category)),
		zap.String("severity", rec.Severity.String()),
		zap.String("error_kind", rec.ErrorKind),
		zap.String("component", rec.Context.Component),
		zap.String("operation", rec.Context.Operation),
	}
	if rec.Context.RequestID != "" {
		fields = append(fields, zap.String("request_id", rec.Context.RequestID))
	}
	for k, v := range rec.Context.Metadata {
		fields = append(fields, zap.String(k, v))
	}

	switch rec.Severity {
	case SeverityCritical:
		h.logger.Error(rec.ErrorMessage, fields...)
		if feature := rec.Context.Metadata["feature"]; feature != "" {
			h.degradation.Degrade(feature, rec.ErrorMessage, rec.Context.Metadata["alternative"])
		}
	case SeverityHigh:
		h.logger.Error(rec.ErrorMessage, fields...)
	case SeverityMedium:
		h.logger.Warn(rec.ErrorMessage, fields...)
	default:
		h.logger.Info(rec.ErrorMessage, fields...)
	}
}

// Telemetry returns the handler's telemetry store.
func (h *Handler) Telemetry() *Telemetry {
	return h.telemetry
}

// Degradation returns the handler's graceful-degradation registry.
func (h *Handler) Degradation() *Degradation {
	return h.degradation
}

// errorKind derives a short kind label from an error. Records produced by
// this package keep their original kind rather than nesting.
func errorKind(err error) string {
	if rec, ok := err.(*Record); ok {
		return rec.ErrorKind
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, ':'); i > 0 && i < 40 {
		return msg[:i]
	}
	if len(msg) > 40 {
		return msg[:40]
	}
	return msg
}
