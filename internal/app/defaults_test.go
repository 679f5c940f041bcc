package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("CATSYNC_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("CATSYNC_HOME", "/custom/catsync")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/catsync" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/catsync")
		}
		if defaults["log_dir"] != "/custom/catsync/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/catsync/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("CATSYNC_CONFIG_PATH", "")
		t.Setenv("CATSYNC_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "catsync.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "catsync")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}

		wantLog := filepath.Join(wantBase, "log")
		if defaults["log_dir"] != wantLog {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], wantLog)
		}
	})

	t.Run("reads .env from the base dir", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("CATSYNC_HOME", dir)
		t.Setenv("CATSYNC_CONFIG_PATH", "")
		os.Unsetenv("CATSYNC_CONFIG_PATH")

		env := "CATSYNC_CONFIG_PATH=" + filepath.Join(dir, "from-env.toml") + "\n"
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
			t.Fatal(err)
		}

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		if want := filepath.Join(dir, "from-env.toml"); defaults["config_path"] != want {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], want)
		}
	})

	t.Run("environment wins over .env", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("CATSYNC_HOME", dir)
		t.Setenv("CATSYNC_CONFIG_PATH", "/explicit.toml")

		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CATSYNC_CONFIG_PATH=/ignored.toml\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		if defaults["config_path"] != "/explicit.toml" {
			t.Errorf("config_path = %q, want /explicit.toml", defaults["config_path"])
		}
	})
}
