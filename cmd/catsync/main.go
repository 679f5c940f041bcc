package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"catsync-go/internal/app"
	"catsync-go/internal/config"
	"catsync-go/internal/encryption"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a CatsyncApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Backup", "Restore").
func newApp(ctx context.Context, operation string) (*app.CatsyncApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewCatsyncApp(ctx, cfg, operation, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads a passphrase from the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("a passphrase is required but stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "catsync",
	Short:        "Back up and restore the video catalogue",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])

		return setupKeys(cfg)
	},
}

// setupKeys generates the age key pair unless it already exists.
func setupKeys(cfg *config.Config) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return err
	}
	if enc.IsConfigured() {
		fmt.Println("Encryption keys already present.")
		return nil
	}

	passphrase, err := readPassphrase("Passphrase for the snapshot key: ")
	if err != nil {
		return err
	}
	confirm, err := readPassphrase("Repeat passphrase: ")
	if err != nil {
		return err
	}
	if passphrase != confirm {
		return errors.New("passphrases do not match")
	}

	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up encryption: %w", err)
	}
	if age, ok := enc.(*encryption.AgeEncryptor); ok {
		if pub, err := age.PublicKey(); err == nil {
			fmt.Printf("Public key: %s\n", pub)
		}
	}
	return nil
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		fmt.Printf("Safety:     %s, keep %d\n", cfg.Safety.Type, cfg.Safety.Retention)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		fmt.Printf("Strategy:   %s\n", cfg.Restore.DefaultStrategy)
		return nil
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vault",
}

var configVaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify vault access",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ValidateVault")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ValidateVault(cmd.Context()); err != nil {
			return fmt.Errorf("vault check failed: %w", err)
		}
		fmt.Println("Vault OK")
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export the local dataset to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		name, err := a.Backup(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Stored snapshot %s\n", name)
		return nil
	},
}

// snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshots in the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListSnapshots")
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.ListSnapshots(cmd.Context())
		if err != nil {
			return err
		}

		if len(infos) == 0 {
			fmt.Println("No snapshots stored.")
			return nil
		}

		for _, info := range infos {
			fmt.Printf("%s  %s  %d\n", info.ModifiedAt.Local().Format("2006-01-02 15:04:05"), info.Name, info.Size)
		}
		return nil
	},
}

// rollback command
var rollbackCmd = &cobra.Command{
	Use:   "rollback [ID]",
	Short: "Restore the local dataset from a safety snapshot (newest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Rollback")
		if err != nil {
			return err
		}
		defer a.Close()

		id := ""
		if len(args) > 0 {
			id = args[0]
		}

		snap, err := a.Rollback(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}

		fmt.Printf("Rolled back to safety snapshot %s from %s\n", snap.ID, snap.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

// safety command
var safetyCmd = &cobra.Command{
	Use:   "safety",
	Short: "Manage pre-restore safety snapshots",
}

var safetyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List safety snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListSafety")
		if err != nil {
			return err
		}
		defer a.Close()

		snaps, err := a.SafetySnapshots(cmd.Context())
		if err != nil {
			return err
		}

		if len(snaps) == 0 {
			fmt.Println("No safety snapshots.")
			return nil
		}

		for _, s := range snaps {
			fmt.Printf("%s  %s  session:%s  %d domains  %d bytes\n",
				s.ID,
				s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				s.SessionID,
				len(s.Domains),
				s.Size(),
			)
		}
		return nil
	},
}

var safetyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete safety snapshots beyond the retention count",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "PruneSafety")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.PruneSafety(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %d safety snapshot(s)\n", n)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configVaultCmd)
	configVaultCmd.AddCommand(configVaultCheckCmd)

	// safety subcommands
	safetyCmd.AddCommand(safetyListCmd)
	safetyCmd.AddCommand(safetyPruneCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringP("strategy", "s", "", "Merge strategy: smart, local, remote or manual (default from config)")
	restoreCmd.Flags().StringSlice("only", nil, "Restore only these domains (e.g. videoRecords,settings,newWorks)")
	restoreCmd.Flags().StringArrayP("override", "o", nil, "Per-record resolution, domain:key=local|remote|merge (repeatable)")
	restoreCmd.Flags().Bool("remote-exclusive", false, "With the remote strategy, drop local records missing from the snapshot")
	restoreCmd.Flags().Bool("diff", false, "Show a unified diff of every conflict")
	restoreCmd.Flags().Bool("apply", false, "Apply the restore after the preview")
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(safetyCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
