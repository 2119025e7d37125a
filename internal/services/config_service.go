package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ourpurple/PDFOptimizer/internal/crypto"
	"github.com/ourpurple/PDFOptimizer/internal/models"
)

const (
	configFileName   = "ocr_configs.json"
	backupDirName    = "backups"
	backupFilePrefix = "ocr_configs_backup_"
	maxBackups       = 10

	// Encrypted API keys are stored with this prefix so plaintext
	// files written by older versions still load.
	encPrefix = "enc:"
)

// ConfigService owns the OCR provider configurations: JSON persistence
// with rotating backups, legacy .env migration, import/export, and
// optional at-rest encryption of API keys.
type ConfigService struct {
	mu sync.RWMutex

	configDir  string
	configFile string
	backupDir  string
	envFile    string

	profile *models.ConfigProfile
	enc     *crypto.EncryptionService

	// lastWrite suppresses fsnotify reloads triggered by our own saves.
	lastWrite time.Time

	onReload func(*models.ConfigProfile)
}

// NewConfigService loads (or migrates) the configuration store under
// configDir. enc may be nil to store API keys in plaintext.
func NewConfigService(configDir string, enc *crypto.EncryptionService) (*ConfigService, error) {
	s := &ConfigService{
		configDir:  configDir,
		configFile: filepath.Join(configDir, configFileName),
		backupDir:  filepath.Join(configDir, backupDirName),
		envFile:    filepath.Join(configDir, ".env"),
		enc:        enc,
	}

	if err := os.MkdirAll(s.backupDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	profile, err := s.load()
	if err != nil {
		return nil, err
	}
	s.profile = profile

	return s, nil
}

// OnReload registers a callback invoked after an external change to the
// config file is picked up.
func (s *ConfigService) OnReload(fn func(*models.ConfigProfile)) {
	s.mu.Lock()
	s.onReload = fn
	s.mu.Unlock()
}

// Profile returns a snapshot of the current configuration profile.
func (s *ConfigService) Profile() *models.ConfigProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// List returns all configurations.
func (s *ConfigService) List() []*models.APIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.APIConfig, len(s.profile.Configs))
	copy(out, s.profile.Configs)
	return out
}

// Get returns a configuration by ID.
func (s *ConfigService) Get(configID string) (*models.APIConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.profile.Get(configID)
	return cfg, cfg != nil
}

// Active returns the configuration selected for new OCR jobs.
func (s *ConfigService) Active() (*models.APIConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.profile.Active()
	return cfg, cfg != nil
}

// Add validates and stores a new configuration.
func (s *ConfigService) Add(cfg *models.APIConfig) error {
	if result := cfg.Validate(); !result.IsValid {
		return fmt.Errorf("invalid config: %s", strings.Join(result.Errors, "; "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.profile.Add(cfg) {
		return fmt.Errorf("config name already exists: %s", cfg.Name)
	}
	return s.saveLocked(true)
}

// Update replaces an existing configuration.
func (s *ConfigService) Update(configID string, cfg *models.APIConfig) error {
	if result := cfg.Validate(); !result.IsValid {
		return fmt.Errorf("invalid config: %s", strings.Join(result.Errors, "; "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.profile.Update(configID, cfg) {
		return fmt.Errorf("config not found: %s", configID)
	}
	return s.saveLocked(true)
}

// Remove deletes a configuration. Active and default selections fall
// back per the profile rules.
func (s *ConfigService) Remove(configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.profile.Remove(configID) {
		return fmt.Errorf("config not found: %s", configID)
	}
	return s.saveLocked(true)
}

// SetActive selects the configuration used for new OCR jobs.
func (s *ConfigService) SetActive(configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.profile.SetActive(configID) {
		return fmt.Errorf("config not found: %s", configID)
	}
	return s.saveLocked(true)
}

// SetDefault marks a configuration as the default.
func (s *ConfigService) SetDefault(configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.profile.SetDefault(configID) {
		return fmt.Errorf("config not found: %s", configID)
	}
	return s.saveLocked(true)
}

// Export writes configurations to w as JSON. When configIDs is empty
// the whole profile is exported; otherwise only the named configs.
// Exported API keys are always plaintext so the file is portable.
func (s *ConfigService) Export(w io.Writer, configIDs []string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile := s.profile
	if len(configIDs) > 0 {
		// Copy the selected configs instead of adding the live pointers
		// to a fresh profile: Add rewrites default flags on its
		// argument, which would corrupt the stored profile.
		exported := models.NewConfigProfile()
		for _, id := range configIDs {
			if cfg := s.profile.Get(id); cfg != nil {
				copied := *cfg
				exported.Configs = append(exported.Configs, &copied)
			}
		}
		profile = exported
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(profile)
}

// Import reads configurations from r. In merge mode, configs whose
// names already exist are skipped and the rest get fresh IDs; otherwise
// the imported profile replaces the current one. Returns the configs
// actually imported.
func (s *ConfigService) Import(r io.Reader, merge bool) ([]*models.APIConfig, error) {
	var imported models.ConfigProfile
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added []*models.APIConfig
	if merge {
		for _, cfg := range imported.Configs {
			exists := false
			for _, existing := range s.profile.Configs {
				if existing.Name == cfg.Name {
					exists = true
					break
				}
			}
			if exists {
				continue
			}
			cfg.ID = uuid.New().String()
			if s.profile.Add(cfg) {
				added = append(added, cfg)
			}
		}
	} else {
		s.profile = &imported
		added = imported.Configs
	}

	if err := s.saveLocked(true); err != nil {
		return nil, err
	}
	return added, nil
}

// Watch reloads the profile when the config file changes on disk, e.g.
// when edited by hand or synced from another machine. Blocks until the
// done channel closes.
func (s *ConfigService) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.configDir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.mu.Lock()
			if time.Since(s.lastWrite) < time.Second {
				s.mu.Unlock()
				continue
			}
			profile, err := s.load()
			if err != nil {
				s.mu.Unlock()
				log.Printf("⚠️  [CONFIG] Reload after external change failed: %v", err)
				continue
			}
			s.profile = profile
			fn := s.onReload
			s.mu.Unlock()
			log.Printf("🔄 [CONFIG] Reloaded configs after external change (%d configs)", len(profile.Configs))
			if fn != nil {
				fn(profile)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("⚠️  [CONFIG] Watcher error: %v", err)
		}
	}
}

func (s *ConfigService) load() (*models.ConfigProfile, error) {
	if _, err := os.Stat(s.configFile); os.IsNotExist(err) {
		return s.migrateFromEnv()
	}

	data, err := os.ReadFile(s.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var profile models.ConfigProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		log.Printf("⚠️  [CONFIG] Config file corrupt, restoring from backup: %v", err)
		return s.restoreFromBackup()
	}

	s.decryptKeys(&profile)
	return &profile, nil
}

// saveLocked persists the profile. Callers hold s.mu.
func (s *ConfigService) saveLocked(createBackup bool) error {
	return s.writeProfile(s.profile, createBackup)
}

func (s *ConfigService) writeProfile(profile *models.ConfigProfile, createBackup bool) error {
	if createBackup {
		if _, err := os.Stat(s.configFile); err == nil {
			s.createBackup()
		}
	}

	// Encrypt a copy so in-memory configs keep plaintext keys.
	stored := *profile
	stored.Configs = make([]*models.APIConfig, len(profile.Configs))
	for i, cfg := range profile.Configs {
		c := *cfg
		c.APIKey = s.encryptKey(cfg.APIKey)
		stored.Configs[i] = &c
	}

	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configs: %w", err)
	}

	s.lastWrite = time.Now()
	if err := os.WriteFile(s.configFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (s *ConfigService) encryptKey(key string) string {
	if s.enc == nil || key == "" {
		return key
	}
	enc, err := s.enc.Encrypt(key)
	if err != nil {
		log.Printf("⚠️  [CONFIG] Failed to encrypt API key, storing plaintext: %v", err)
		return key
	}
	return encPrefix + enc
}

func (s *ConfigService) decryptKeys(profile *models.ConfigProfile) {
	for _, cfg := range profile.Configs {
		if !strings.HasPrefix(cfg.APIKey, encPrefix) {
			continue
		}
		if s.enc == nil {
			log.Printf("⚠️  [CONFIG] Config %q has an encrypted key but no master key is set", cfg.Name)
			continue
		}
		plain, err := s.enc.Decrypt(strings.TrimPrefix(cfg.APIKey, encPrefix))
		if err != nil {
			log.Printf("⚠️  [CONFIG] Failed to decrypt API key for %q: %v", cfg.Name, err)
			continue
		}
		cfg.APIKey = plain
	}
}

func (s *ConfigService) createBackup() {
	timestamp := time.Now().Format("20060102_150405")
	backupFile := filepath.Join(s.backupDir, backupFilePrefix+timestamp+".json")

	data, err := os.ReadFile(s.configFile)
	if err != nil {
		log.Printf("⚠️  [CONFIG] Failed to read config for backup: %v", err)
		return
	}
	if err := os.WriteFile(backupFile, data, 0600); err != nil {
		log.Printf("⚠️  [CONFIG] Failed to write backup: %v", err)
		return
	}

	s.pruneBackups()
}

// pruneBackups keeps only the newest maxBackups backup files.
func (s *ConfigService) pruneBackups() {
	backups, err := filepath.Glob(filepath.Join(s.backupDir, backupFilePrefix+"*.json"))
	if err != nil || len(backups) <= maxBackups {
		return
	}
	sort.Strings(backups)
	for _, old := range backups[:len(backups)-maxBackups] {
		if err := os.Remove(old); err != nil {
			log.Printf("⚠️  [CONFIG] Failed to prune backup %s: %v", old, err)
		}
	}
}

func (s *ConfigService) restoreFromBackup() (*models.ConfigProfile, error) {
	backups, err := filepath.Glob(filepath.Join(s.backupDir, backupFilePrefix+"*.json"))
	if err != nil || len(backups) == 0 {
		return models.NewConfigProfile(), nil
	}
	sort.Strings(backups)

	latest := backups[len(backups)-1]
	data, err := os.ReadFile(latest)
	if err != nil {
		return models.NewConfigProfile(), nil
	}

	var profile models.ConfigProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return models.NewConfigProfile(), nil
	}

	log.Printf("✅ [CONFIG] Restored configs from backup %s", filepath.Base(latest))
	s.decryptKeys(&profile)
	return &profile, nil
}

// migrateFromEnv imports a legacy .env configuration the first time the
// service runs without a JSON store. The .env file is renamed to
// .env.migrated on success so migration happens once.
func (s *ConfigService) migrateFromEnv() (*models.ConfigProfile, error) {
	profile := models.NewConfigProfile()

	if _, err := os.Stat(s.envFile); os.IsNotExist(err) {
		return profile, nil
	}

	env, err := godotenv.Read(s.envFile)
	if err != nil {
		log.Printf("⚠️  [CONFIG] Failed to read legacy .env: %v", err)
		return profile, nil
	}

	provider := envOr(env, "OCR_API_PROVIDER", models.ProviderOpenAICompatible)

	keyVar, modelVar, defaultModel := "OPENAI_API_KEY", "OPENAI_MODEL_NAME", "gpt-4o"
	if provider == models.ProviderMistral {
		keyVar, modelVar, defaultModel = "MISTRAL_API_KEY", "MISTRAL_MODEL_NAME", "mistral-ocr-latest"
	}

	apiKey := env[keyVar]
	if apiKey == "" {
		return profile, nil
	}

	cfg := models.NewAPIConfig("Migrated "+provider+" config", provider)
	cfg.APIKey = apiKey
	cfg.APIBaseURL = envOr(env, "OCR_API_BASE_URL", "https://api.openai.com/v1")
	cfg.ModelName = envOr(env, modelVar, defaultModel)
	cfg.SaveMode = envOr(env, "OCR_SAVE_MODE", models.SaveModePerPage)
	cfg.IsDefault = true
	if prompt := env["OCR_PROMPT"]; prompt != "" {
		cfg.Prompt = prompt
	}
	if t, err := strconv.ParseFloat(env["OCR_TEMPERATURE"], 64); err == nil {
		cfg.Temperature = t
	}

	profile.Add(cfg)
	if err := s.writeProfile(profile, false); err != nil {
		return nil, err
	}

	migrated := filepath.Join(s.configDir, ".env.migrated")
	if _, err := os.Stat(migrated); os.IsNotExist(err) {
		if err := os.Rename(s.envFile, migrated); err != nil {
			log.Printf("⚠️  [CONFIG] Failed to rename migrated .env: %v", err)
		}
	}

	log.Printf("✅ [CONFIG] Migrated legacy .env config: %s", cfg.Name)
	return profile, nil
}

func envOr(env map[string]string, key, fallback string) string {
	if v := env[key]; v != "" {
		return v
	}
	return fallback
}
