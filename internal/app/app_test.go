package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"catsync-go/internal/catsync"
	"catsync-go/internal/config"
	"catsync-go/internal/model"
	"catsync-go/internal/testutil"
)

func testConfig(t *testing.T, encryption string) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig("test-host", base)
	cfg.Encryption = config.EncryptionConfig{Type: encryption}
	cfg.Vaults = []config.VaultConfig{{Type: "filesystem", Name: "test", FSVaultRoot: filepath.Join(base, "vault")}}
	return cfg
}

func openApp(t *testing.T, cfg *config.Config, operation string) *CatsyncApp {
	t.Helper()
	a, err := NewCatsyncApp(context.Background(), cfg, operation, nil)
	if err != nil {
		t.Fatalf("NewCatsyncApp() error = %v", err)
	}
	return a
}

func closeApp(t *testing.T, a *CatsyncApp) {
	t.Helper()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func anyPassphrase() (string, error) { return "secret", nil }

func TestCatsyncApp_BackupRestoreRollback(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "test")

	a := openApp(t, cfg, "Backup")
	testutil.Seed(t, a.db, &model.Dataset{
		Videos: map[string]model.VideoRecord{
			"ABC-1": testutil.Video("ABC-1", model.StatusViewed, 1000),
			"ABC-2": testutil.Video("ABC-2", model.StatusWant, 1000),
		},
		Settings: testutil.Settings(),
	})
	name, err := a.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if !strings.HasSuffix(name, ".json.gz.age") {
		t.Errorf("Backup() name = %q, want compressed and encrypted extension", name)
	}
	closeApp(t, a)

	// A local edit made after the backup.
	a = openApp(t, cfg, "Restore")
	local := testutil.Load(t, a.db)
	local.Videos["ABC-1"] = testutil.Video("ABC-1", model.StatusBrowsed, 2000)
	testutil.Seed(t, a.db, local)

	snaps, err := a.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(snaps) != 1 || snaps[0].Name != name {
		t.Fatalf("ListSnapshots() = %+v, want [%s]", snaps, name)
	}

	s, err := a.PreviewRestore(ctx, name, RestoreOptions{Strategy: "remote"}, anyPassphrase)
	if err != nil {
		t.Fatalf("PreviewRestore() error = %v", err)
	}
	if got := s.Diff().Videos.Len(); got != 2 {
		t.Errorf("diff covers %d video keys, want 2", got)
	}
	result, err := a.ApplyRestore(ctx, s)
	if err != nil {
		t.Fatalf("ApplyRestore() error = %v", err)
	}
	if !result.Success || result.SafetySnapshotID == "" {
		t.Fatalf("ApplyRestore() result = %+v", result)
	}
	if got := testutil.Load(t, a.db).Videos["ABC-1"].Status; got != model.StatusViewed {
		t.Errorf("after restore ABC-1 status = %s, want viewed", got)
	}
	closeApp(t, a)

	a = openApp(t, cfg, "Rollback")
	snap, err := a.Rollback(ctx, "")
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if snap.ID != result.SafetySnapshotID {
		t.Errorf("Rollback() used snapshot %s, want newest %s", snap.ID, result.SafetySnapshotID)
	}
	if got := testutil.Load(t, a.db).Videos["ABC-1"].Status; got != model.StatusBrowsed {
		t.Errorf("after rollback ABC-1 status = %s, want browsed", got)
	}
	closeApp(t, a)

	a = openApp(t, cfg, "History")
	defer closeApp(t, a)
	ops, err := a.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	want := []string{"Rollback", "Restore", "Backup"}
	if len(ops) != len(want) {
		t.Fatalf("History() returned %d operations, want %d", len(ops), len(want))
	}
	for i, op := range ops {
		if op.Operation != want[i] || op.Status != "success" || !op.FinishedAt.Valid {
			t.Errorf("ops[%d] = %s/%s finished=%v, want %s/success finished", i, op.Operation, op.Status, op.FinishedAt.Valid, want[i])
		}
	}
	if !strings.Contains(ops[1].Parameters, "strategy=remote") {
		t.Errorf("restore parameters = %q, want strategy=remote", ops[1].Parameters)
	}
}

func TestCatsyncApp_RestoreFailureRecordsError(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "none")

	a := openApp(t, cfg, "Backup")
	testutil.Seed(t, a.db, &model.Dataset{
		Videos:   map[string]model.VideoRecord{"ABC-1": testutil.Video("ABC-1", model.StatusViewed, 1000)},
		Settings: testutil.Settings(),
	})
	name, err := a.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if !strings.HasSuffix(name, ".json.gz") {
		t.Errorf("Backup() name = %q, want unencrypted extension", name)
	}
	closeApp(t, a)

	a = openApp(t, cfg, "Restore")
	local := testutil.Load(t, a.db)
	local.Videos["ABC-1"] = testutil.Video("ABC-1", model.StatusWant, 2000)
	testutil.Seed(t, a.db, local)

	// Plain snapshots never ask for a passphrase.
	s, err := a.PreviewRestore(ctx, name, RestoreOptions{Strategy: "manual"}, nil)
	if err != nil {
		t.Fatalf("PreviewRestore() error = %v", err)
	}
	if _, err := a.ApplyRestore(ctx, s); !errors.Is(err, catsync.ErrMissingOverride) {
		t.Fatalf("ApplyRestore() error = %v, want missing override", err)
	}
	closeApp(t, a)

	a = openApp(t, cfg, "History")
	defer closeApp(t, a)
	ops, err := a.History(ctx, 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Operation != "Restore" || ops[0].Status != "error" {
		t.Fatalf("History() = %+v, want one failed Restore", ops)
	}
}

func TestCatsyncApp_Overrides(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "none")

	a := openApp(t, cfg, "Restore")
	defer closeApp(t, a)
	testutil.Seed(t, a.db, &model.Dataset{
		Videos:   map[string]model.VideoRecord{"ABC-1": testutil.Video("ABC-1", model.StatusViewed, 1000)},
		Settings: testutil.Settings(),
	})
	name, err := a.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	local := testutil.Load(t, a.db)
	local.Videos["ABC-1"] = testutil.Video("ABC-1", model.StatusWant, 2000)
	testutil.Seed(t, a.db, local)

	s, err := a.PreviewRestore(ctx, name, RestoreOptions{
		Strategy:  "manual",
		Only:      []string{"videoRecords"},
		Overrides: []string{"videoRecords:ABC-1=remote"},
	}, nil)
	if err != nil {
		t.Fatalf("PreviewRestore() error = %v", err)
	}
	if _, err := a.ApplyRestore(ctx, s); err != nil {
		t.Fatalf("ApplyRestore() error = %v", err)
	}
	if got := testutil.Load(t, a.db).Videos["ABC-1"].Status; got != model.StatusViewed {
		t.Errorf("ABC-1 status = %s, want viewed", got)
	}
}

func TestCatsyncApp_PreviewRestoreErrors(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "test")

	a := openApp(t, cfg, "Backup")
	defer closeApp(t, a)
	testutil.Seed(t, a.db, &model.Dataset{Settings: testutil.Settings()})
	name, err := a.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	tests := []struct {
		name       string
		snapshot   string
		opts       RestoreOptions
		passphrase func() (string, error)
	}{
		{name: "unknown strategy", snapshot: name, opts: RestoreOptions{Strategy: "newest"}, passphrase: anyPassphrase},
		{name: "unknown domain", snapshot: name, opts: RestoreOptions{Only: []string{"bookmarks"}}, passphrase: anyPassphrase},
		{name: "bad override", snapshot: name, opts: RestoreOptions{Overrides: []string{"videoRecords"}}, passphrase: anyPassphrase},
		{name: "missing snapshot", snapshot: "catsync-20000101T000000Z.json", passphrase: anyPassphrase},
		{name: "encrypted without passphrase", snapshot: name},
		{
			name:       "passphrase prompt fails",
			snapshot:   name,
			passphrase: func() (string, error) { return "", errors.New("no terminal") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.PreviewRestore(ctx, tt.snapshot, tt.opts, tt.passphrase); err == nil {
				t.Fatal("PreviewRestore() error = nil, want error")
			}
		})
	}
}

func TestCatsyncApp_BackupRequiresKeys(t *testing.T) {
	cfg := testConfig(t, "age")
	cfg.Encryption.PublicKeyPath = filepath.Join(cfg.BaseDir, "keys", "catsync.pub")
	cfg.Encryption.PrivateKeyPath = filepath.Join(cfg.BaseDir, "keys", "catsync.key")

	a := openApp(t, cfg, "Backup")
	defer closeApp(t, a)

	if _, err := a.Backup(context.Background()); err == nil {
		t.Fatal("Backup() error = nil, want missing keys error")
	}
	if a.op.Persisted() {
		t.Error("operation persisted for a backup that never started")
	}
}

func TestCatsyncApp_RollbackWithoutSnapshots(t *testing.T) {
	a := openApp(t, testConfig(t, "none"), "Rollback")
	defer closeApp(t, a)

	if _, err := a.Rollback(context.Background(), ""); err == nil {
		t.Fatal("Rollback() error = nil, want error")
	}
	if _, err := a.Rollback(context.Background(), "missing"); !errors.Is(err, catsync.ErrSnapshotNotFound) {
		t.Fatalf("Rollback(missing) error = %v, want snapshot not found", err)
	}
}

func TestCatsyncApp_PruneSafety(t *testing.T) {
	cfg := testConfig(t, "none")
	cfg.Safety = config.SafetyConfig{Type: "memory", Retention: 5}

	a := openApp(t, cfg, "PruneSafety")
	defer closeApp(t, a)

	n, err := a.PruneSafety(context.Background())
	if err != nil {
		t.Fatalf("PruneSafety() error = %v", err)
	}
	if n != 0 {
		t.Errorf("PruneSafety() = %d, want 0", n)
	}
	if err := a.ValidateVault(context.Background()); err != nil {
		t.Errorf("ValidateVault() error = %v", err)
	}
}

func TestNewCatsyncApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{name: "no vaults", modify: func(c *config.Config) { c.Vaults = nil }},
		{name: "unknown vault", modify: func(c *config.Config) { c.Vaults[0].Type = "ftp" }},
		{name: "unknown encryption", modify: func(c *config.Config) { c.Encryption.Type = "rot13" }},
		{name: "unknown collision policy", modify: func(c *config.Config) { c.Restore.LegacyCollisions = "coin-flip" }},
		{name: "unknown database", modify: func(c *config.Config) { c.Database.Type = "postgres" }},
		{name: "unknown safety store", modify: func(c *config.Config) { c.Safety.Type = "tape" }},
		{name: "bad log level", modify: func(c *config.Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "none")
			tt.modify(cfg)
			if _, err := NewCatsyncApp(context.Background(), cfg, "Backup", nil); err == nil {
				t.Fatal("NewCatsyncApp() error = nil, want error")
			}
		})
	}
}
