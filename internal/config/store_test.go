package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_DefaultsOnFirstOpen(t *testing.T) {
	s := newTestStore(t, Options{})

	if theme := s.GetString("theme", ""); theme != "dark" {
		t.Errorf("expected theme=dark, got %s", theme)
	}
	if size := s.GetInt("max_cache_size", 0); size != 100 {
		t.Errorf("expected max_cache_size=100, got %d", size)
	}
	if !s.backend.Exists(s.Path()) {
		t.Error("expected live config file to be created")
	}
}

func TestStore_SetPersists(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Dir: dir})
	require.NoError(t, s.Set("theme", "light"))

	reopened := newTestStore(t, Options{Dir: dir})
	if theme := reopened.GetString("theme", ""); theme != "light" {
		t.Errorf("expected persisted theme=light, got %s", theme)
	}
}

func TestStore_SetRejectsSchemaViolations(t *testing.T) {
	s := newTestStore(t, Options{})

	cases := []struct {
		key   string
		value any
	}{
		{"theme", "neon"},           // outside enum
		{"font_size", 4},            // below min
		{"font_size", 100},          // above max
		{"window_opacity", "high"},  // wrong type
		{"history_limit", 3.5},      // fractional int
	}
	for _, tc := range cases {
		err := s.Set(tc.key, tc.value)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "set %s=%v", tc.key, tc.value)
		require.NotEmpty(t, verr.Problems)
	}

	// A rejected set leaves the value untouched.
	if got := s.GetString("theme", ""); got != "dark" {
		t.Errorf("rejected set mutated the store: theme=%s", got)
	}
}

func TestStore_UpdateAllOrNothing(t *testing.T) {
	s := newTestStore(t, Options{})

	err := s.Update(map[string]any{
		"theme":     "light",
		"font_size": 999, // invalid
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	if got := s.GetString("theme", ""); got != "dark" {
		t.Error("partial update applied despite validation failure")
	}
}

func TestStore_ReservedKeysNeverExposed(t *testing.T) {
	s := newTestStore(t, Options{})

	if _, ok := s.Get("_checksum"); ok {
		t.Error("checksum exposed through Get")
	}
	if _, ok := s.Get("_schema_version"); ok {
		t.Error("schema version exposed through Get")
	}
	all := s.All()
	if _, ok := all["_checksum"]; ok {
		t.Error("checksum exposed through All")
	}
}

func TestStore_ChecksumInvariant(t *testing.T) {
	s := newTestStore(t, Options{})
	require.NoError(t, s.Set("font_size", 14))

	raw, err := s.backend.Load(s.Path())
	require.NoError(t, err)

	stored, ok := raw[reservedChecksum].(string)
	require.True(t, ok, "checksum missing from persisted file")

	recomputed, err := checksum(raw)
	require.NoError(t, err)
	require.Equal(t, stored, recomputed)
}

func TestStore_CorruptionRecoversFromBackup(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Dir: dir})

	// Two saves so the backup directory holds the pre-corruption state.
	require.NoError(t, s.Set("theme", "light"))
	require.NoError(t, s.Set("font_size", 20))
	s.Close()

	// Clobber the live file with invalid bytes.
	require.NoError(t, os.WriteFile(s.Path(), []byte("{ not json"), 0o644))

	recovered := newTestStore(t, Options{Dir: dir})
	// The most recent valid backup holds the state before the last save:
	// theme already light, font_size still at its default.
	if theme := recovered.GetString("theme", ""); theme != "light" {
		t.Errorf("expected recovered theme=light (backup state, not defaults), got %s", theme)
	}
	if size := recovered.GetInt("font_size", 0); size != 11 {
		t.Errorf("expected recovered font_size=11 from backup, got %d", size)
	}
}

func TestStore_RecoveryFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Dir: dir})
	s.Close()

	// No usable backups: corrupt the live file and empty the backup dir.
	require.NoError(t, os.WriteFile(s.Path(), []byte("garbage"), 0o644))
	entries, err := os.ReadDir(filepath.Join(dir, backupDirName))
	require.NoError(t, err)
	for _, e := range entries {
		os.Remove(filepath.Join(dir, backupDirName, e.Name()))
	}

	recovered := newTestStore(t, Options{Dir: dir})
	if theme := recovered.GetString("theme", ""); theme != "dark" {
		t.Errorf("expected defaults after failed recovery, got theme=%s", theme)
	}
}

func TestStore_SensitiveFieldsEncryptedOnDisk(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Dir: dir})
	require.NoError(t, s.Set(KeyOpenAIAPIKey, "sk-test-123"))

	raw, err := s.backend.Load(s.Path())
	require.NoError(t, err)

	onDisk, ok := raw[KeyOpenAIAPIKey].(string)
	require.True(t, ok)
	require.NotEqual(t, "sk-test-123", onDisk, "credential stored in plaintext")

	// On-disk representation is base64(cipher(plaintext)).
	_, err = base64.StdEncoding.DecodeString(onDisk)
	require.NoError(t, err)
	plain, err := s.cipher.Decrypt(onDisk)
	require.NoError(t, err)
	require.Equal(t, "sk-test-123", plain)

	// In memory it is always plaintext, across reopen too.
	reopened := newTestStore(t, Options{Dir: dir})
	require.Equal(t, "sk-test-123", reopened.GetString(KeyOpenAIAPIKey, ""))
}

func TestStore_DecryptFailureClearsFieldOnly(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Dir: dir})
	require.NoError(t, s.Update(map[string]any{
		KeyOpenAIAPIKey: "sk-test-123",
		"theme":         "light",
	}))

	// Tamper with the encrypted field and re-stamp the checksum so only
	// decryption fails.
	raw, err := s.backend.Load(s.Path())
	require.NoError(t, err)
	raw[KeyOpenAIAPIKey] = base64.StdEncoding.EncodeToString([]byte("tampered"))
	delete(raw, reservedChecksum)
	sum, err := checksum(raw)
	require.NoError(t, err)
	raw[reservedChecksum] = sum
	require.NoError(t, s.backend.Save(s.Path(), raw))
	s.Close()

	reopened := newTestStore(t, Options{Dir: dir})
	require.Equal(t, "", reopened.GetString(KeyOpenAIAPIKey, "sentinel"))
	require.Equal(t, "light", reopened.GetString("theme", ""), "load failed instead of degrading")
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Dir: dir})
	require.NoError(t, s.Update(map[string]any{
		"theme":          "light",
		KeyOpenAIAPIKey:  "sk-round-trip",
		"font_size":      16,
	}))

	first := filepath.Join(t.TempDir(), "export1.json")
	require.NoError(t, s.Export(first, true))
	require.NoError(t, s.Import(first, ImportReplace))
	second := filepath.Join(t.TempDir(), "export2.json")
	require.NoError(t, s.Export(second, true))

	b := &jsonBackend{}
	data1, err := b.Load(first)
	require.NoError(t, err)
	data2, err := b.Load(second)
	require.NoError(t, err)
	if diff := cmp.Diff(data1, data2); diff != "" {
		t.Errorf("export/import/export not stable (-first +second):\n%s", diff)
	}
}

func TestStore_ExportOmitsSensitiveByDefault(t *testing.T) {
	s := newTestStore(t, Options{})
	require.NoError(t, s.Set(KeyOpenAIAPIKey, "sk-secret"))

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, s.Export(path, false))

	b := &jsonBackend{}
	data, err := b.Load(path)
	require.NoError(t, err)
	if _, ok := data[KeyOpenAIAPIKey]; ok {
		t.Error("sensitive field present in sanitized export")
	}
	if _, ok := data[reservedChecksum]; ok {
		t.Error("checksum present in export")
	}
}

func TestStore_ImportReplaceFillsRequiredFromDefaults(t *testing.T) {
	s := newTestStore(t, Options{})

	// A partial import omitting the required theme/font_size fields.
	partial := filepath.Join(t.TempDir(), "partial.json")
	b := &jsonBackend{}
	require.NoError(t, b.Save(partial, map[string]any{"word_wrap": true}))

	require.NoError(t, s.Import(partial, ImportReplace))
	require.Equal(t, "dark", s.GetString("theme", ""))
	require.Equal(t, true, s.GetBool("word_wrap", false))
}

func TestStore_ImportMerge(t *testing.T) {
	s := newTestStore(t, Options{})
	require.NoError(t, s.Set("theme", "light"))

	overlay := filepath.Join(t.TempDir(), "overlay.json")
	b := &jsonBackend{}
	require.NoError(t, b.Save(overlay, map[string]any{"font_size": 18}))

	require.NoError(t, s.Import(overlay, ImportMerge))
	require.Equal(t, "light", s.GetString("theme", ""))
	require.Equal(t, 18, s.GetInt("font_size", 0))
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t, Options{})
	require.NoError(t, s.Set("theme", "light"))
	require.NoError(t, s.Reset())
	require.Equal(t, "dark", s.GetString("theme", ""))
}

func TestStore_Transaction(t *testing.T) {
	t.Run("commit applies all", func(t *testing.T) {
		s := newTestStore(t, Options{})
		err := s.WithTransaction(func(tx *Tx) error {
			if err := tx.Set("theme", "light"); err != nil {
				return err
			}
			return tx.Set("font_size", 18)
		})
		require.NoError(t, err)
		require.Equal(t, "light", s.GetString("theme", ""))
		require.Equal(t, 18, s.GetInt("font_size", 0))
	})

	t.Run("error rolls back", func(t *testing.T) {
		s := newTestStore(t, Options{})
		err := s.WithTransaction(func(tx *Tx) error {
			tx.Set("theme", "light")
			return os.ErrInvalid
		})
		require.Error(t, err)
		require.Equal(t, "dark", s.GetString("theme", ""))
	})

	t.Run("invalid staged value fails commit atomically", func(t *testing.T) {
		s := newTestStore(t, Options{})
		err := s.WithTransaction(func(tx *Tx) error {
			tx.Set("theme", "light")
			return tx.Set("font_size", 999)
		})
		require.Error(t, err)
		require.Equal(t, "dark", s.GetString("theme", ""))
	})

	t.Run("completed transaction rejects reuse", func(t *testing.T) {
		s := newTestStore(t, Options{})
		tx := s.Transaction()
		require.NoError(t, tx.Commit())
		require.Error(t, tx.Set("theme", "light"))
	})
}

func TestStore_Migration(t *testing.T) {
	dir := t.TempDir()

	oldSchema := DefaultSchema()
	oldSchema.Version = "1.0.0"
	s := newTestStore(t, Options{Dir: dir, Schema: oldSchema})
	require.NoError(t, s.Set("theme", "light"))
	s.Close()

	newSchema := DefaultSchema()
	newSchema.RegisterMigration(Migration{
		FromVersion: "1.0.0",
		ToVersion:   newSchema.Version,
		Migrate: func(data map[string]any) (map[string]any, error) {
			data["word_wrap"] = true
			return data, nil
		},
	})

	migrated := newTestStore(t, Options{Dir: dir, Schema: newSchema})
	require.Equal(t, true, migrated.GetBool("word_wrap", false), "migration did not run")
	require.Equal(t, "light", migrated.GetString("theme", ""), "migration lost data")

	raw, err := migrated.backend.Load(migrated.Path())
	require.NoError(t, err)
	require.Equal(t, newSchema.Version, raw[reservedSchemaVersion])
}

func TestStore_MigrationMissingPathStampsVersion(t *testing.T) {
	dir := t.TempDir()

	oldSchema := DefaultSchema()
	oldSchema.Version = "1.5.0"
	s := newTestStore(t, Options{Dir: dir, Schema: oldSchema})
	require.NoError(t, s.Set("theme", "light"))
	s.Close()

	migrated := newTestStore(t, Options{Dir: dir, Schema: DefaultSchema()})
	require.Equal(t, "light", migrated.GetString("theme", ""), "data changed without a migration path")

	raw, err := migrated.backend.Load(migrated.Path())
	require.NoError(t, err)
	require.Equal(t, DefaultSchema().Version, raw[reservedSchemaVersion])
}

func TestStore_YAMLBackend(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Dir: dir, Backend: BackendYAML})
	require.NoError(t, s.Set("theme", "light"))
	require.Equal(t, filepath.Join(dir, "config.yaml"), s.Path())

	reopened := newTestStore(t, Options{Dir: dir, Backend: BackendYAML})
	require.Equal(t, "light", reopened.GetString("theme", ""))
}

func TestStore_SQLiteBackend(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Dir: dir, Backend: BackendSQLite})
	require.NoError(t, s.Set("theme", "light"))
	require.Equal(t, filepath.Join(dir, "config.db"), s.Path())

	reopened := newTestStore(t, Options{Dir: dir, Backend: BackendSQLite})
	require.Equal(t, "light", reopened.GetString("theme", ""))
	require.Equal(t, 100, reopened.GetInt("max_cache_size", 0))
}

func TestStore_EnvOverridesNotPersisted(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	dir := t.TempDir()
	s := newTestStore(t, Options{Dir: dir})
	s.ApplyEnvOverrides()
	require.Equal(t, "sk-from-env", s.GetString(KeyOpenAIAPIKey, ""))

	// The on-disk file keeps the stored (empty) credential.
	raw, err := s.backend.Load(s.Path())
	require.NoError(t, err)
	require.Equal(t, "", raw[KeyOpenAIAPIKey])
}
