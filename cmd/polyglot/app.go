package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"polyglot/internal/config"
	"polyglot/internal/faults"
	"polyglot/internal/logging"
	"polyglot/internal/translator"
)

// app bundles the components every command needs. It replaces process-wide
// singletons: main builds exactly one and threads it explicitly.
type app struct {
	logger *zap.Logger
	store  *config.Store
	faults *faults.Handler
	engine *translator.Engine
}

// newApp assembles logging, configuration, fault handling, and the
// translation engine.
func newApp(ctx context.Context) (*app, error) {
	logger, err := logging.New(logging.Options{Verbose: verbose})
	if err != nil {
		return nil, err
	}

	dir := configDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = "."
		}
		dir = filepath.Join(base, "polyglot")
	}

	faultLogger, err := logging.NewStructuredFileLogger(filepath.Join(dir, "logs"))
	if err != nil {
		// Fault logging degrades to the console logger rather than
		// blocking startup.
		logger.Warn("structured fault log unavailable", zap.Error(err))
		faultLogger = logger
	}
	handler := faults.NewHandler(faultLogger)

	store, err := config.New(config.Options{
		Dir:    dir,
		Logger: logger,
		Faults: handler,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration: %w", err)
	}
	store.ApplyEnvOverrides()

	engine := translator.NewEngine(translator.Options{
		Store:  store,
		Faults: handler,
		Logger: logger,
	})
	engine.SetupProviders(ctx)

	return &app{
		logger: logger,
		store:  store,
		faults: handler,
		engine: engine,
	}, nil
}

// close releases providers and flushes logs.
func (a *app) close() {
	a.engine.Close()
	a.store.Close()
	a.logger.Sync()
}

// readInput loads the input file, or stdin for "-".
func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// writeOutput sends primary output to stdout, or to the -o file.
func writeOutput(content string) error {
	if outputPath == "" {
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		_, err := os.Stdout.WriteString(content)
		return err
	}
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}
