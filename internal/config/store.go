// Package config implements the durable configuration store: a validated
// key/value map persisted through interchangeable JSON, YAML, and SQLite
// back-ends with atomic writes, checksum-verified integrity, encrypted
// sensitive fields, and backup-based corruption recovery.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"polyglot/internal/faults"
)

// Reserved keys are set and validated internally and never exposed to
// callers through Get/All/Export.
const (
	reservedSchemaVersion = "_schema_version"
	reservedChecksum      = "_checksum"
)

const (
	keyFileName   = ".encryption_key"
	backupDirName = "backups"
	maxBackups    = 10
	// recoverAttempts bounds how many backups are tried, newest first.
	recoverAttempts = 3
)

// ImportMode selects how Import combines the file with the current state.
type ImportMode string

const (
	// ImportMerge overlays the imported fields onto the current values.
	ImportMerge ImportMode = "merge"
	// ImportReplace discards current values; defaults fill required fields
	// the import omits.
	ImportReplace ImportMode = "replace"
)

// ValidationError lists every schema violation found in one operation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// Options configures a Store.
type Options struct {
	Dir               string
	Backend           BackendKind
	Schema            *Schema
	Passphrase        string
	DisableEncryption bool
	Logger            *zap.Logger
	Faults            *faults.Handler
}

// Store is the configuration store. It owns the on-disk files, the
// encryption key file, and the rotating backup directory. Mutations are
// serialized on a single lock; readers never block writers for long — the
// critical section copies the requested value only.
type Store struct {
	mu        sync.RWMutex
	dir       string
	path      string
	backupDir string
	backend   Backend
	schema    *Schema
	cipher    *Cipher
	logger    *zap.Logger
	faults    *faults.Handler
	data      map[string]any
	// loadedVersion is the schema version read from disk, consumed by the
	// migration check immediately after load.
	loadedVersion string
	watcher       *watcher
}

// New opens (or initializes) the configuration store rooted at opts.Dir.
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("config directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	backend, err := NewBackend(opts.Backend)
	if err != nil {
		return nil, err
	}

	schema := opts.Schema
	if schema == nil {
		schema = DefaultSchema()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := opts.Faults
	if handler == nil {
		handler = faults.NewHandler(nil)
	}

	s := &Store{
		dir:       opts.Dir,
		path:      filepath.Join(opts.Dir, "config"+backend.Ext()),
		backupDir: filepath.Join(opts.Dir, backupDirName),
		backend:   backend,
		schema:    schema,
		logger:    logger,
		faults:    handler,
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	if !opts.DisableEncryption {
		key, err := LoadOrCreateKey(filepath.Join(opts.Dir, keyFileName), opts.Passphrase)
		if err != nil {
			return nil, err
		}
		cipher, err := NewCipher(key)
		if err != nil {
			return nil, err
		}
		s.cipher = cipher
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the live configuration file path.
func (s *Store) Path() string { return s.path }

// Get returns the value for key, or absent. Reserved keys are never exposed.
func (s *Store) Get(key string) (any, bool) {
	if key == reservedChecksum || key == reservedSchemaVersion {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// GetString returns the string value for key, or def when absent or not a
// string.
func (s *Store) GetString(key, def string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// GetInt returns the integer value for key, or def.
func (s *Store) GetInt(key string, def int) int {
	if v, ok := s.Get(key); ok {
		if n, ok := asNumber(v); ok {
			return int(n)
		}
	}
	return def
}

// GetBool returns the boolean value for key, or def.
func (s *Store) GetBool(key string, def bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// All returns a copy of every non-reserved field.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		if k == reservedChecksum || k == reservedSchemaVersion {
			continue
		}
		out[k] = v
	}
	return out
}

// Set validates and stores a single value, persisting atomically.
func (s *Store) Set(key string, value any) error {
	return s.Update(map[string]any{key: value})
}

// Update validates the merged view before any mutation and applies all of
// updates or none of them.
func (s *Store) Update(updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.snapshotLocked()
	for k, v := range updates {
		merged[k] = v
	}
	if problems := s.schema.Validate(merged); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	for k, v := range updates {
		s.data[k] = v
	}
	return s.saveLocked()
}

// Reset restores the built-in defaults and persists.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = Defaults()
	return s.saveLocked()
}

// Validate checks the current state against the schema.
func (s *Store) Validate() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema.Validate(s.data)
}

// Export writes a sanitized snapshot to path. The checksum and schema
// version are always omitted; sensitive fields are omitted unless
// includeSensitive is true. The format follows the file extension
// (.yaml/.yml for YAML, JSON otherwise).
func (s *Store) Export(path string, includeSensitive bool) error {
	s.mu.RLock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		if k == reservedChecksum || k == reservedSchemaVersion {
			continue
		}
		if !includeSensitive && s.schema.Fields[k].Sensitive {
			continue
		}
		out[k] = v
	}
	s.mu.RUnlock()

	backend := backendForPath(path)
	if err := backend.Save(path, out); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return nil
}

// Import loads a snapshot from path and applies it in the given mode,
// validating before any mutation.
func (s *Store) Import(path string, mode ImportMode) error {
	backend := backendForPath(path)
	imported, err := backend.Load(path)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	delete(imported, reservedChecksum)
	delete(imported, reservedSchemaVersion)

	s.mu.Lock()
	defer s.mu.Unlock()

	var next map[string]any
	switch mode {
	case ImportMerge:
		next = s.snapshotLocked()
		for k, v := range imported {
			next[k] = v
		}
	case ImportReplace:
		next = Defaults()
		for k, v := range imported {
			next[k] = v
		}
	default:
		return fmt.Errorf("unsupported import mode: %s", mode)
	}

	if problems := s.schema.Validate(next); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	s.data = next
	return s.saveLocked()
}

// snapshotLocked copies the non-reserved state. Caller holds a lock.
func (s *Store) snapshotLocked() map[string]any {
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		if k == reservedChecksum || k == reservedSchemaVersion {
			continue
		}
		out[k] = v
	}
	return out
}

// load reads the live file, verifying integrity and recovering from
// backups on corruption. A missing file initializes defaults.
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.backend.Exists(s.path) {
		s.data = Defaults()
		return s.saveLocked()
	}

	raw, err := s.backend.Load(s.path)
	if err == nil && s.verifyIntegrity(raw) {
		s.adoptLocked(raw)
		s.migrateLocked()
		return nil
	}

	if err == nil {
		err = fmt.Errorf("configuration integrity check failed for %s", s.path)
	}
	s.logger.Warn("config load failed, attempting recovery", zap.Error(err))

	if s.recoverLocked() {
		s.logger.Info("configuration recovered from backup")
		s.faults.Handle(fmt.Errorf("configuration corrupted, recovered from backup: %w", err),
			faults.WithCategory(faults.CategoryConfiguration),
			faults.WithSeverity(faults.SeverityMedium),
			faults.WithComponent("config"),
			faults.WithOperation("load"))
		return nil
	}

	s.faults.Handle(fmt.Errorf("configuration recovery failed, restoring defaults: %w", err),
		faults.WithCategory(faults.CategoryConfiguration),
		faults.WithComponent("config"),
		faults.WithOperation("load"))
	s.data = Defaults()
	return s.saveLocked()
}

// adoptLocked installs a verified raw map as the in-memory state,
// stripping reserved keys and decrypting sensitive fields. A field that
// fails to decrypt is cleared and reported as a degraded credential; the
// load continues.
func (s *Store) adoptLocked(raw map[string]any) {
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == reservedChecksum || k == reservedSchemaVersion {
			continue
		}
		data[k] = v
	}

	if s.cipher != nil {
		for name, spec := range s.schema.Fields {
			if !spec.Sensitive {
				continue
			}
			enc, ok := data[name].(string)
			if !ok || enc == "" {
				continue
			}
			plain, err := s.cipher.Decrypt(enc)
			if err != nil {
				data[name] = ""
				s.faults.Handle(fmt.Errorf("failed to decrypt field %q: %w", name, err),
					faults.WithCategory(faults.CategoryAuthentication),
					faults.WithSeverity(faults.SeverityMedium),
					faults.WithComponent("config"),
					faults.WithOperation("decrypt"),
					faults.WithSuggestions("Re-enter the credential in settings."))
				continue
			}
			data[name] = plain
		}
	}

	s.data = data
	s.loadedVersion = versionOf(raw)
}

func versionOf(raw map[string]any) string {
	if v, ok := raw[reservedSchemaVersion].(string); ok {
		return v
	}
	return "1.0.0"
}

// migrateLocked runs the registered migration when the on-disk version
// differs from the running schema version. The migration executes inside an
// implicit transaction: backup before, rollback on error. When no migration
// path exists the new version is stamped and the data left unchanged.
func (s *Store) migrateLocked() {
	from := s.loadedVersion
	to := s.schema.Version
	if from == to {
		return
	}

	migration, ok := s.schema.Migrations[from+"->"+to]
	if !ok {
		s.logger.Warn("no migration path, stamping new schema version",
			zap.String("from", from), zap.String("to", to))
		if err := s.saveLocked(); err != nil {
			s.logger.Error("failed to persist version stamp", zap.Error(err))
		}
		return
	}

	s.logger.Info("migrating configuration", zap.String("from", from), zap.String("to", to))
	snapshot := s.snapshotLocked()

	migrated, err := migration.Migrate(s.snapshotLocked())
	if err == nil {
		s.data = migrated
		err = s.saveLocked()
	}
	if err != nil {
		s.data = snapshot
		if migration.Rollback != nil {
			if rolled, rbErr := migration.Rollback(s.snapshotLocked()); rbErr == nil {
				s.data = rolled
			}
		}
		s.faults.Handle(fmt.Errorf("migration %s->%s failed: %w", from, to, err),
			faults.WithCategory(faults.CategoryConfiguration),
			faults.WithComponent("config"),
			faults.WithOperation("migrate"))
	}
}

// recoverLocked walks the backup directory newest-first and promotes the
// first backup that parses and verifies.
func (s *Store) recoverLocked() bool {
	backups := s.listBackups()

	tried := 0
	for _, backup := range backups {
		if tried >= recoverAttempts {
			break
		}
		tried++

		raw, err := s.backend.Load(backup)
		if err != nil || !s.verifyIntegrity(raw) {
			s.logger.Warn("backup unusable", zap.String("backup", filepath.Base(backup)), zap.Error(err))
			continue
		}

		if err := copyFile(backup, s.path); err != nil {
			s.logger.Warn("failed to promote backup", zap.String("backup", filepath.Base(backup)), zap.Error(err))
			continue
		}
		s.adoptLocked(raw)
		s.migrateLocked()
		return true
	}
	return false
}

// listBackups returns backup paths sorted newest first. Backup names embed
// the timestamp, so lexical order is chronological.
func (s *Store) listBackups() []string {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "config_backup_") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(s.backupDir, n)
	}
	return paths
}

// saveLocked persists atomically: backup the current target, encrypt
// sensitive fields, stamp version and checksum, write through the backend.
// Caller holds the write lock.
func (s *Store) saveLocked() error {
	s.backupLocked()

	save := make(map[string]any, len(s.data)+2)
	for k, v := range s.data {
		if k == reservedChecksum || k == reservedSchemaVersion {
			continue
		}
		save[k] = v
	}

	if s.cipher != nil {
		for name, spec := range s.schema.Fields {
			if !spec.Sensitive {
				continue
			}
			plain, ok := save[name].(string)
			if !ok || plain == "" {
				continue
			}
			enc, err := s.cipher.Encrypt(plain)
			if err != nil {
				return fmt.Errorf("failed to encrypt field %q: %w", name, err)
			}
			save[name] = enc
		}
	}

	save[reservedSchemaVersion] = s.schema.Version
	sum, err := checksum(save)
	if err != nil {
		return err
	}
	save[reservedChecksum] = sum

	if err := s.backend.Save(s.path, save); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// backupLocked copies the current target into the backup directory with a
// timestamped name and trims the directory to the most recent entries.
func (s *Store) backupLocked() {
	if !s.backend.Exists(s.path) {
		return
	}

	name := fmt.Sprintf("config_backup_%s%s", time.Now().Format("20060102_150405"), s.backend.Ext())
	if err := copyFile(s.path, filepath.Join(s.backupDir, name)); err != nil {
		s.logger.Warn("failed to create backup", zap.Error(err))
		return
	}

	backups := s.listBackups()
	for i := maxBackups; i < len(backups); i++ {
		os.Remove(backups[i])
	}
}

// verifyIntegrity recomputes the checksum over the non-checksum fields and
// compares it to the stored value. Files written before checksums existed
// (no stored checksum) are accepted.
func (s *Store) verifyIntegrity(raw map[string]any) bool {
	stored, ok := raw[reservedChecksum].(string)
	if !ok || stored == "" {
		return true
	}
	sum, err := checksum(raw)
	if err != nil {
		return false
	}
	return sum == stored
}

// checksum computes SHA-256 over the sorted-key JSON serialization of every
// field except the checksum itself.
func checksum(data map[string]any) (string, error) {
	calc := make(map[string]any, len(data))
	for k, v := range data {
		if k == reservedChecksum {
			continue
		}
		calc[k] = v
	}
	// encoding/json sorts map keys, giving a canonical serialization.
	raw, err := json.Marshal(calc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize for checksum: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func backendForPath(path string) Backend {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return &yamlBackend{}
	default:
		return &jsonBackend{}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
