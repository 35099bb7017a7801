// Package logging builds the zap loggers used across polyglot.
// The CLI gets a console logger on stderr; the fault framework gets a
// JSON logger appended to a per-day file under the config directory.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Level   string // debug, info, warn, error
	Verbose bool   // forces debug level
}

// New builds a console logger writing to stderr. Diagnostics never go to
// stdout; stdout is reserved for primary output.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.Set(opts.Level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// NewStructuredFileLogger builds a JSON logger appending to
// <dir>/structured_YYYYMMDD.jsonl, one file per calendar day.
// The caller owns the returned logger and should Sync it on shutdown.
func NewStructuredFileLogger(dir string) (*zap.Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("structured_%s.jsonl", time.Now().Format("20060102"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "msg"
	encCfg.LevelKey = "lvl"
	encCfg.EncodeTime = zapcore.EpochMillisTimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)
	return zap.New(core), nil
}

// Nop returns a logger that discards everything. Used by tests and as the
// default when a component is constructed without an explicit logger.
func Nop() *zap.Logger {
	return zap.NewNop()
}
