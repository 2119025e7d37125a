package services

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ourpurple/PDFOptimizer/internal/crypto"
	"github.com/ourpurple/PDFOptimizer/internal/models"
)

func testConfig(name string) *models.APIConfig {
	cfg := models.NewAPIConfig(name, models.ProviderOpenAICompatible)
	cfg.APIKey = "sk-test-key"
	cfg.APIBaseURL = "https://api.example.com/v1"
	cfg.ModelName = "gpt-4o"
	return cfg
}

func TestConfigServicePersistence(t *testing.T) {
	dir := t.TempDir()

	svc, err := NewConfigService(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig("persisted")
	if err := svc.Add(cfg); err != nil {
		t.Fatal(err)
	}

	// A fresh service over the same directory sees the saved config.
	svc2, err := NewConfigService(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := svc2.Get(cfg.ID)
	if !ok {
		t.Fatal("config not found after reload")
	}
	if got.APIKey != "sk-test-key" {
		t.Errorf("API key lost on roundtrip: %q", got.APIKey)
	}
	if active, ok := svc2.Active(); !ok || active.ID != cfg.ID {
		t.Error("first config should be active after reload")
	}
}

func TestConfigServiceRejectsInvalid(t *testing.T) {
	svc, err := NewConfigService(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	bad := models.NewAPIConfig("no key", models.ProviderOpenAICompatible)
	if err := svc.Add(bad); err == nil {
		t.Error("invalid config should be rejected")
	}
	if len(svc.List()) != 0 {
		t.Error("rejected config must not be stored")
	}
}

func TestConfigServiceRemoveFallback(t *testing.T) {
	svc, err := NewConfigService(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	a := testConfig("a")
	b := testConfig("b")
	svc.Add(a)
	svc.Add(b)
	svc.SetActive(b.ID)

	if err := svc.Remove(b.ID); err != nil {
		t.Fatal(err)
	}
	active, ok := svc.Active()
	if !ok || active.ID != a.ID {
		t.Error("removing the active config should fall back to the default")
	}
}

func TestConfigServiceEncryptsKeysAtRest(t *testing.T) {
	dir := t.TempDir()
	key := strings.Repeat("ab", 32)
	enc, err := crypto.NewEncryptionService(key)
	if err != nil {
		t.Fatal(err)
	}

	svc, err := NewConfigService(dir, enc)
	if err != nil {
		t.Fatal(err)
	}
	svc.Add(testConfig("secret"))

	raw, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("sk-test-key")) {
		t.Error("plaintext API key leaked into the config file")
	}
	if !bytes.Contains(raw, []byte(encPrefix)) {
		t.Error("stored key should carry the encrypted prefix")
	}

	// Reload decrypts transparently.
	svc2, err := NewConfigService(dir, enc)
	if err != nil {
		t.Fatal(err)
	}
	cfgs := svc2.List()
	if len(cfgs) != 1 || cfgs[0].APIKey != "sk-test-key" {
		t.Errorf("decryption on load failed: %+v", cfgs)
	}
}

func TestConfigServiceBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewConfigService(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	svc.Add(testConfig("keep me"))
	svc.Add(testConfig("second")) // second save backs up the first state

	backups, _ := filepath.Glob(filepath.Join(dir, backupDirName, backupFilePrefix+"*.json"))
	if len(backups) == 0 {
		t.Fatal("expected at least one backup file")
	}

	// Corrupt the main file; a fresh service restores from backup.
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte("{broken"), 0600); err != nil {
		t.Fatal(err)
	}
	svc2, err := NewConfigService(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(svc2.List()) == 0 {
		t.Error("restore from backup returned no configs")
	}
}

func TestConfigServiceEnvMigration(t *testing.T) {
	dir := t.TempDir()
	env := strings.Join([]string{
		"OCR_API_PROVIDER=OpenAI-Compatible",
		"OPENAI_API_KEY=sk-migrated-key",
		"OCR_API_BASE_URL=https://legacy.example/v1",
		"OPENAI_MODEL_NAME=gpt-4o-mini",
		"OCR_TEMPERATURE=0.5",
		"OCR_SAVE_MODE=merged",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0600); err != nil {
		t.Fatal(err)
	}

	svc, err := NewConfigService(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	cfgs := svc.List()
	if len(cfgs) != 1 {
		t.Fatalf("expected 1 migrated config, got %d", len(cfgs))
	}
	cfg := cfgs[0]
	if cfg.APIKey != "sk-migrated-key" || cfg.ModelName != "gpt-4o-mini" {
		t.Errorf("migrated values wrong: %+v", cfg)
	}
	if cfg.Temperature != 0.5 || cfg.SaveMode != models.SaveModeMerged {
		t.Errorf("migrated tuning wrong: %+v", cfg)
	}
	if !cfg.IsDefault {
		t.Error("migrated config should be the default")
	}

	if _, err := os.Stat(filepath.Join(dir, ".env.migrated")); err != nil {
		t.Error(".env should be renamed to .env.migrated")
	}
	if _, err := os.Stat(filepath.Join(dir, ".env")); !os.IsNotExist(err) {
		t.Error("original .env should be gone")
	}
}

func TestConfigServiceExportImport(t *testing.T) {
	svc, err := NewConfigService(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	svc.Add(testConfig("exported"))

	var buf bytes.Buffer
	if err := svc.Export(&buf, nil); err != nil {
		t.Fatal(err)
	}

	var exported models.ConfigProfile
	if err := json.Unmarshal(buf.Bytes(), &exported); err != nil {
		t.Fatal(err)
	}
	if len(exported.Configs) != 1 {
		t.Fatalf("export produced %d configs", len(exported.Configs))
	}

	// Import into a separate empty store in merge mode.
	other, err := NewConfigService(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	imported, err := other.Import(bytes.NewReader(buf.Bytes()), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(imported) != 1 {
		t.Fatalf("expected 1 imported config, got %d", len(imported))
	}

	// Importing the same file again skips the duplicate name.
	again, err := other.Import(bytes.NewReader(buf.Bytes()), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("duplicate import should be skipped, got %d", len(again))
	}
}

func TestConfigServiceSelectiveExportLeavesProfileIntact(t *testing.T) {
	svc, err := NewConfigService(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	first := testConfig("first")
	second := testConfig("second")
	if err := svc.Add(first); err != nil {
		t.Fatal(err)
	}
	if err := svc.Add(second); err != nil {
		t.Fatal(err)
	}

	// Export only the non-default config.
	var buf bytes.Buffer
	if err := svc.Export(&buf, []string{second.ID}); err != nil {
		t.Fatal(err)
	}

	var exported models.ConfigProfile
	if err := json.Unmarshal(buf.Bytes(), &exported); err != nil {
		t.Fatal(err)
	}
	if len(exported.Configs) != 1 || exported.Configs[0].ID != second.ID {
		t.Fatalf("exported configs = %+v", exported.Configs)
	}

	// The live profile must be untouched: still exactly one default,
	// and it is still the first config.
	defaults := 0
	for _, cfg := range svc.List() {
		if cfg.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Errorf("%d configs flagged default after export, want 1", defaults)
	}
	got, ok := svc.Get(second.ID)
	if !ok {
		t.Fatal("second config missing")
	}
	if got.IsDefault {
		t.Error("exporting a config must not flip its default flag")
	}
	if svc.Profile().DefaultConfigID != first.ID {
		t.Error("default config changed by export")
	}
}
