package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for catsync.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Log        LogConfig        `toml:"log"`
	Database   DatabaseConfig   `toml:"database"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Safety     SafetyConfig     `toml:"safety"`
	Encryption EncryptionConfig `toml:"encryption"`
	Restore    RestoreConfig    `toml:"restore"`
}

// LogConfig controls the log file and its rotation.
type LogConfig struct {
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Level      string `toml:"level"` // "debug", "info", "warn" or "error"
}

// DatabaseConfig represents configuration for the local dataset database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// VaultConfig represents configuration for a snapshot vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible services

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// SafetyConfig selects where pre-restore safety snapshots are kept.
type SafetyConfig struct {
	Type      string `toml:"type"`          // "database", "filesystem" or "memory"
	Dir       string `toml:"dir,omitempty"` // only used for type=filesystem
	Retention int    `toml:"retention"`     // snapshots kept after a successful restore
}

// EncryptionConfig holds paths to the age key pair used for snapshot encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "none" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// RestoreConfig holds the restore engine defaults.
type RestoreConfig struct {
	DefaultStrategy          string   `toml:"default_strategy"`
	RequiredSettingsSections []string `toml:"required_settings_sections"`
	LegacyCollisions         string   `toml:"legacy_collisions"` // "skip" or "priority"
	CommitAttempts           uint     `toml:"commit_attempts"`
	Compress                 bool     `toml:"compress"` // gzip exported snapshots
}

// NewConfig creates a Config rooted at baseDir with every section filled in.
func NewConfig(hostID, baseDir string) *Config {
	cfg := &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "catsync.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "catsync.key"),
		},
		Restore: RestoreConfig{Compress: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in every unset field that has a default.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Safety.Type == "" {
		c.Safety.Type = "database"
	}
	if c.Safety.Retention == 0 {
		c.Safety.Retention = 5
	}
	if c.Encryption.Type == "" {
		c.Encryption.Type = "age"
	}
	if c.Restore.DefaultStrategy == "" {
		c.Restore.DefaultStrategy = "smart"
	}
	if c.Restore.RequiredSettingsSections == nil {
		c.Restore.RequiredSettingsSections = []string{"display", "sync", "actorSync"}
	}
	if c.Restore.LegacyCollisions == "" {
		c.Restore.LegacyCollisions = "skip"
	}
	if c.Restore.CommitAttempts == 0 {
		c.Restore.CommitAttempts = 3
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes a new config file at path. It fails if the file already exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("initializing config at %s: %w", path, err)
	}
	return nil
}
