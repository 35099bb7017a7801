package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"
)

// BackendKind selects the on-disk representation of the configuration.
type BackendKind string

const (
	BackendJSON   BackendKind = "json"
	BackendYAML   BackendKind = "yaml"
	BackendSQLite BackendKind = "sqlite"
)

// Backend loads and saves the raw configuration map. Save is atomic for
// every implementation: file back-ends write a sibling temporary and rename
// it over the target, the database back-end uses its own transaction.
type Backend interface {
	Load(path string) (map[string]any, error)
	Save(path string, data map[string]any) error
	Exists(path string) bool
	Ext() string
}

// NewBackend returns the backend for a kind.
func NewBackend(kind BackendKind) (Backend, error) {
	switch kind {
	case BackendJSON, "":
		return &jsonBackend{}, nil
	case BackendYAML:
		return &yamlBackend{}, nil
	case BackendSQLite:
		return &sqliteBackend{}, nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", kind)
	}
}

// writeAtomic writes data to path via a fsync'd sibling temporary file
// renamed over the target.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

type jsonBackend struct{}

func (b *jsonBackend) Load(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return data, nil
}

func (b *jsonBackend) Save(path string, data map[string]any) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeAtomic(path, append(raw, '\n'))
}

func (b *jsonBackend) Exists(path string) bool { return fileExists(path) }
func (b *jsonBackend) Ext() string             { return ".json" }

type yamlBackend struct{}

func (b *yamlBackend) Load(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if data == nil {
		data = make(map[string]any)
	}
	return data, nil
}

func (b *yamlBackend) Save(path string, data map[string]any) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeAtomic(path, raw)
}

func (b *yamlBackend) Exists(path string) bool { return fileExists(path) }
func (b *yamlBackend) Ext() string             { return ".yaml" }

// sqliteBackend stores fields in a two-column (key, value) table with each
// value serialized as JSON.
type sqliteBackend struct{}

func (b *sqliteBackend) open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create config table: %w", err)
	}
	return db, nil
}

func (b *sqliteBackend) Load(path string) (map[string]any, error) {
	db, err := b.open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT key, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	defer rows.Close()

	data := make(map[string]any)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			// Stored before serialization was introduced; keep the raw text.
			parsed = value
		}
		data[key] = parsed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config rows: %w", err)
	}
	return data, nil
}

func (b *sqliteBackend) Save(path string, data map[string]any) error {
	db, err := b.open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM config`); err != nil {
		return fmt.Errorf("failed to clear config: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range data {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode field %q: %w", key, err)
		}
		if _, err := stmt.Exec(key, string(encoded)); err != nil {
			return fmt.Errorf("failed to store field %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit config: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Exists(path string) bool { return fileExists(path) }
func (b *sqliteBackend) Ext() string             { return ".db" }

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
