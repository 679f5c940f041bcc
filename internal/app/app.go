package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"catsync-go/internal/catsync"
	"catsync-go/internal/codec"
	"catsync-go/internal/config"
	"catsync-go/internal/database"
	"catsync-go/internal/encryption"
	"catsync-go/internal/safety"
	"catsync-go/internal/vault"
)

// CatsyncApp is the application layer between the CLI and the catsync engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI arguments, and records mutating commands in the
// operation history on Close.
type CatsyncApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	vault     catsync.Vault
	encryptor catsync.Encryptor
	codecOpts codec.Options
	engine    *catsync.Engine
	exporter  *catsync.Exporter
	logger    *slog.Logger
	clock     catsync.Clock
	op        *Operation
	logCloser io.Closer
}

// RestoreOptions are the raw restore arguments given on the command line.
type RestoreOptions struct {
	// Strategy names the merge strategy. Empty means the configured default.
	Strategy string
	// Only lists the domains to restore. Empty means every domain.
	Only []string
	// Overrides are per-record resolutions in domain:key=resolution form.
	Overrides       []string
	RemoteExclusive bool
}

// NewCatsyncApp creates a fully wired CatsyncApp from the given config.
// operation identifies the CLI command being run (e.g. "Backup", "Restore").
// Log records go to the rotating log file and, when console is non-nil, to console.
// The caller must call Close when done.
func NewCatsyncApp(ctx context.Context, cfg *config.Config, operation string, console io.Writer) (*CatsyncApp, error) {
	if len(cfg.Vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	collisions, err := catsync.ParseCollisionPolicy(cfg.Restore.LegacyCollisions)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	safetyStore, err := safety.NewSafetyStoreFromConfig(cfg.Safety, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating safety store: %w", err)
	}

	clock := catsync.RealClock{}
	opID := clock.Now().UTC().Format("20060102T150405Z")
	logger, logCloser, err := newLogger(cfg.LogDir, cfg.Log, opID, console)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	idgen := catsync.UUIDGenerator{}
	mgr := catsync.NewSafetyManager(safetyStore, db, cfg.Safety.Retention, adapter, clock, idgen)
	engine := catsync.NewEngine(db, mgr, catsync.EngineConfig{
		RequiredSettings: cfg.Restore.RequiredSettingsSections,
		LegacyCollisions: collisions,
		CommitAttempts:   cfg.Restore.CommitAttempts,
		CommitDelay:      100 * time.Millisecond,
	}, adapter, clock, idgen)

	opts := codec.Options{Compress: cfg.Restore.Compress}
	if cfg.Encryption.Type != "none" {
		opts.Encryptor = enc
	}

	return &CatsyncApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		encryptor: enc,
		codecOpts: opts,
		engine:    engine,
		exporter:  catsync.NewExporter(db, clock, adapter),
		logger:    logger,
		clock:     clock,
		op:        NewOperation(operation, ""),
		logCloser: logCloser,
	}, nil
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for commands that change local or remote state.
func (a *CatsyncApp) persistOperation(ctx context.Context, parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateOperation(ctx, a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// ValidateVault checks that the configured vault is reachable.
func (a *CatsyncApp) ValidateVault(ctx context.Context) error {
	return a.vault.ValidateSetup(ctx)
}

// Backup exports the local dataset, encodes it and uploads it to the vault.
// It returns the name of the stored snapshot.
func (a *CatsyncApp) Backup(ctx context.Context) (string, error) {
	if a.codecOpts.Encryptor != nil && !a.encryptor.IsConfigured() {
		return "", fmt.Errorf("encryption keys are not set up: run `catsync config init` or set encryption type to none")
	}

	now := a.clock.Now()
	name := catsync.SnapshotName(now, a.codecOpts.Extension())
	if err := a.persistOperation(ctx, name); err != nil {
		return "", err
	}

	snap, err := a.exporter.Export(ctx)
	if err != nil {
		return "", a.op.Fail(err)
	}
	data, err := codec.Encode(snap, a.codecOpts)
	if err != nil {
		return "", a.op.Fail(err)
	}
	if err := a.vault.PutSnapshot(ctx, name, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", a.op.Fail(fmt.Errorf("uploading snapshot: %w", err))
	}

	a.logger.Info("snapshot uploaded", "name", name, "size", len(data))
	return name, nil
}

// ListSnapshots returns the snapshots stored in the vault, newest first.
func (a *CatsyncApp) ListSnapshots(ctx context.Context) ([]catsync.SnapshotInfo, error) {
	infos, err := a.vault.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	out := infos[:0]
	for _, info := range infos {
		if catsync.IsSnapshotName(info.Name) {
			out = append(out, info)
		}
	}
	return out, nil
}

// PreviewRestore downloads the named snapshot and starts a restore session
// without writing anything. passphrase is asked for only when the snapshot
// is encrypted; it may be nil when no encrypted snapshot is expected.
func (a *CatsyncApp) PreviewRestore(ctx context.Context, name string, ro RestoreOptions, passphrase func() (string, error)) (*catsync.Session, error) {
	opts, err := a.mergeOptions(ro)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := a.vault.GetSnapshot(ctx, name, &buf); err != nil {
		return nil, fmt.Errorf("downloading snapshot %s: %w", name, err)
	}

	var unlock func() (catsync.DecryptionContext, error)
	if passphrase != nil {
		unlock = func() (catsync.DecryptionContext, error) {
			p, err := passphrase()
			if err != nil {
				return nil, err
			}
			return a.encryptor.Unlock(p)
		}
	}
	raw, err := codec.Decode(buf.Bytes(), unlock)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", name, err)
	}

	s, err := a.engine.Preview(ctx, raw, opts)
	if err != nil {
		return nil, err
	}
	a.logger.Info("restore previewed", "name", name, "session", s.ID, "strategy", opts.Strategy)
	return s, nil
}

func (a *CatsyncApp) mergeOptions(ro RestoreOptions) (catsync.MergeOptions, error) {
	name := ro.Strategy
	if name == "" {
		name = a.cfg.Restore.DefaultStrategy
	}
	strategy, err := catsync.ParseStrategy(name)
	if err != nil {
		return catsync.MergeOptions{}, err
	}

	opts := catsync.MergeOptions{Strategy: strategy, RemoteExclusive: ro.RemoteExclusive}
	if len(ro.Only) > 0 {
		if opts.Domains, err = catsync.ParseDomains(ro.Only); err != nil {
			return catsync.MergeOptions{}, err
		}
	}
	for _, o := range ro.Overrides {
		d, key, r, err := catsync.ParseOverride(o)
		if err != nil {
			return catsync.MergeOptions{}, err
		}
		if opts.Overrides == nil {
			opts.Overrides = make(catsync.Overrides)
		}
		opts.Overrides.Set(d, key, r)
	}
	return opts, nil
}

// ApplyRestore commits a previewed session. The returned result is non-nil
// whenever the session got past its state check, even on failure.
func (a *CatsyncApp) ApplyRestore(ctx context.Context, s *catsync.Session) (*catsync.MergeResult, error) {
	if err := a.persistOperation(ctx, restoreParameters(s)); err != nil {
		return nil, err
	}
	result, err := s.Apply(ctx)
	return result, a.op.Fail(err)
}

func restoreParameters(s *catsync.Session) string {
	opts := s.Options()
	params := []string{"session=" + s.ID, "strategy=" + opts.Strategy.String()}
	if opts.Domains != nil {
		names := make([]string, len(opts.Domains))
		for i, d := range opts.Domains {
			names[i] = string(d)
		}
		params = append(params, "only="+strings.Join(names, ","))
	}
	if opts.RemoteExclusive {
		params = append(params, "remote-exclusive")
	}
	return strings.Join(params, " ")
}

// Rollback restores the local dataset from a safety snapshot. An empty id
// selects the newest snapshot.
func (a *CatsyncApp) Rollback(ctx context.Context, id string) (*catsync.SafetySnapshot, error) {
	if id == "" {
		snaps, err := a.engine.SafetySnapshots(ctx)
		if err != nil {
			return nil, err
		}
		if len(snaps) == 0 {
			return nil, errors.New("no safety snapshots to roll back to")
		}
		id = snaps[0].ID
	}

	if err := a.persistOperation(ctx, id); err != nil {
		return nil, err
	}
	snap, err := a.engine.Rollback(ctx, id)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	return snap, nil
}

// SafetySnapshots returns the stored safety snapshots, newest first.
func (a *CatsyncApp) SafetySnapshots(ctx context.Context) ([]*catsync.SafetySnapshot, error) {
	return a.engine.SafetySnapshots(ctx)
}

// PruneSafety deletes safety snapshots beyond the configured retention.
func (a *CatsyncApp) PruneSafety(ctx context.Context) (int, error) {
	if err := a.persistOperation(ctx, fmt.Sprintf("retention=%d", a.cfg.Safety.Retention)); err != nil {
		return 0, err
	}
	n, err := a.engine.Prune(ctx)
	return n, a.op.Fail(err)
}

// History returns the most recent recorded operations.
func (a *CatsyncApp) History(ctx context.Context, limit int) ([]*database.Operation, error) {
	return a.db.ListOperations(ctx, limit)
}

// Close finalizes the operation record and closes all resources.
func (a *CatsyncApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(context.Background(), a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return firstErr
}
