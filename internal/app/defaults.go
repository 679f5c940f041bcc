package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CATSYNC_HOME: base directory for catsync data (default: ~/.local/share/catsync)
//   - CATSYNC_CONFIG_PATH: config file location (default: ~/.config/catsync.toml)
//
// A .env file in the base directory is loaded before the config path is
// resolved. Variables already set in the environment take precedence over it.
func GetDefaults() (map[string]string, error) {
	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	if err := loadEnvFile(filepath.Join(baseDir, ".env")); err != nil {
		return nil, err
	}

	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// loadEnvFile loads path into the environment if it exists.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// getConfigPath returns the config file path, checking CATSYNC_CONFIG_PATH env var first,
// then falling back to the default ~/.config/catsync.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CATSYNC_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "catsync.toml"), nil
}

// getBaseDir returns the base directory for catsync data, checking CATSYNC_HOME env var first,
// then falling back to the XDG default ~/.local/share/catsync.
func getBaseDir() (string, error) {
	if path := os.Getenv("CATSYNC_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "catsync"), nil
}
