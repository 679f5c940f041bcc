package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"catsync-go/internal/app"
	"catsync-go/internal/catsync"

	"github.com/spf13/cobra"
)

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore SNAPSHOT",
	Short: "Preview, and with --apply perform, a restore from a vault snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		strategy, _ := flags.GetString("strategy")
		only, _ := flags.GetStringSlice("only")
		overrides, _ := flags.GetStringArray("override")
		remoteExclusive, _ := flags.GetBool("remote-exclusive")
		showDiff, _ := flags.GetBool("diff")
		apply, _ := flags.GetBool("apply")

		a, err := newApp(cmd.Context(), "Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.PreviewRestore(cmd.Context(), args[0], app.RestoreOptions{
			Strategy:        strategy,
			Only:            only,
			Overrides:       overrides,
			RemoteExclusive: remoteExclusive,
		}, func() (string, error) {
			return readPassphrase("Passphrase: ")
		})
		if err != nil {
			return explain(os.Stderr, err)
		}

		report, err := s.Report()
		if err != nil {
			return err
		}
		if err := printReport(os.Stdout, report, showDiff); err != nil {
			return err
		}

		if !apply {
			s.Discard()
			fmt.Println("\nPreview only. Run again with --apply to restore.")
			return nil
		}

		result, err := a.ApplyRestore(cmd.Context(), s)
		if err != nil {
			return explain(os.Stderr, err)
		}
		printResult(os.Stdout, result)
		return nil
	},
}

func printReport(w io.Writer, r *catsync.PreviewReport, showDiff bool) error {
	fmt.Fprintf(w, "Snapshot schema: %s\n", r.Version)
	fmt.Fprintf(w, "Strategy:        %s\n", r.Strategy)
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %v\n", warn)
	}

	fmt.Fprintf(w, "\n%-24s %10s %11s %9s %9s\n", "DOMAIN", "LOCAL ONLY", "REMOTE ONLY", "IDENTICAL", "CONFLICTS")
	for _, d := range r.Domains {
		fmt.Fprintf(w, "%-24s %10d %11d %9d %9d\n", d.Domain, d.LocalOnly, d.RemoteOnly, d.Identical, len(d.Conflicts))
	}

	for _, d := range r.Domains {
		for _, c := range d.Conflicts {
			fmt.Fprintf(w, "\nconflict %s:%s (recommended: %s)\n", c.Domain, c.Key, c.Recommended)
			if !showDiff {
				continue
			}
			diff, err := catsync.RenderConflict(c)
			if err != nil {
				return err
			}
			fmt.Fprint(w, diff)
		}
	}
	return nil
}

func printResult(w io.Writer, result *catsync.MergeResult) {
	fmt.Fprintf(w, "\nRestore complete. Safety snapshot: %s\n", result.SafetySnapshotID)
	for _, d := range result.Written {
		s := result.Summary[d]
		fmt.Fprintf(w, "  %-24s added %d, updated %d, kept %d, removed %d\n", d, s.Added, s.Updated, s.Kept, s.Removed)
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning: %v\n", warn)
	}
}

// explain prints the details of an engine error that its message leaves out
// and returns err unchanged.
func explain(w io.Writer, err error) error {
	var e *catsync.Error
	if !errors.As(err, &e) {
		return err
	}
	switch e.Kind {
	case catsync.KindValidation:
		for _, v := range e.Violations {
			fmt.Fprintf(w, "  %s\n", v)
		}
	case catsync.KindMissingOverride:
		fmt.Fprintln(w, "Conflicts without an override:")
		for _, k := range e.Missing {
			fmt.Fprintf(w, "  --override %s:%s=local|remote|merge\n", k.Domain, k.Key)
		}
	case catsync.KindCommitPartial:
		fmt.Fprintf(w, "Written: %v\nFailed:  %v\n", e.Written, e.Failed)
		fmt.Fprintf(w, "Run `catsync rollback %s` to undo the written domains.\n", e.SafetySnapshotID)
	case catsync.KindLocalChanged, catsync.KindConcurrentSession:
		fmt.Fprintln(w, "Run the restore again.")
	}
	return err
}
