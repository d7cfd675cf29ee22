package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paneward/paneward/internal/model"
	"github.com/paneward/paneward/internal/redact"
	"github.com/paneward/paneward/internal/snapshot"
)

var (
	flagSnapDescription string
	flagSnapIncremental bool
	flagRestoreDryRun   bool
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Aliases: []string{"snap"},
	Short:   "Capture, restore, and compare session snapshots",
}

func newEngine(a *app) (*snapshot.Engine, error) {
	redactor, err := redact.New(a.cfg.RedactPatterns)
	if err != nil {
		return nil, err
	}
	return snapshot.NewEngine(a.store, a.mux, redactor, snapshot.EngineOptions{
		Parallelism: a.cfg.Parallelism,
		Git:         snapshot.GitInfo,
		Log:         a.log,
	}), nil
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Capture the current session",
	Long: `Create captures the session's tabs and panes: positions, geometry,
working directories, running commands (secrets redacted), and git state.
With --incremental the snapshot parents on the session's latest snapshot
and stores only per-pane fields that changed; topology is always complete.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		eng, err := newEngine(a)
		if err != nil {
			return err
		}
		snap, err := eng.Capture(cmd.Context(), snapshot.CaptureRequest{
			Name:        args[0],
			Session:     a.session,
			Description: flagSnapDescription,
			Incremental: flagSnapIncremental,
		})
		if err != nil {
			return err
		}
		a.events.SnapshotCreated(cmd.Context(), snap)
		a.metrics().RecordSnapshot(cmd.Context(), snap.ParentID != "")

		return emit(snap, func() {
			kind := "full"
			if snap.ParentID != "" {
				kind = "incremental"
			}
			fmt.Printf("captured %s snapshot %q: %d tabs, %d panes\n",
				kind, snap.Name, len(snap.Tabs), snap.PaneCount)
		})
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the session's snapshots, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		infos, err := a.store.ListSnapshots(cmd.Context(), a.session)
		if err != nil {
			return err
		}
		latest, err := a.store.LatestSnapshotName(cmd.Context(), a.session)
		if err != nil {
			return err
		}

		return emit(infos, func() {
			if len(infos) == 0 {
				fmt.Println("no snapshots")
				return
			}
			for _, info := range infos {
				marker := " "
				if info.Name == latest {
					marker = "*"
				}
				kind := "full"
				if info.ParentID != "" {
					kind = "incr"
				}
				fmt.Printf("%s %-20s %s  %d tabs, %d panes  %s\n",
					marker, info.Name, kind, info.TabCount, info.PaneCount,
					info.CreatedAt.Format("2006-01-02 15:04:05"))
			}
		})
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Recreate a snapshot's tabs and panes",
	Long: `Restore replays a snapshot into the current session. Without a name
the session's latest snapshot is used. Existing tabs are left untouched;
missing directories fall back to $HOME and vanished executables leave the
pane at a shell, both reported as warnings. A warnings-only restore is a
success. --dry-run prints the plan and warnings without changing anything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		snap, err := resolveSnapshot(cmd.Context(), a, args)
		if err != nil {
			return err
		}
		eng, err := newEngine(a)
		if err != nil {
			return err
		}
		full, err := eng.Materialize(cmd.Context(), snap)
		if err != nil {
			return err
		}

		restorer := snapshot.NewRestorer(a.mux, a.store, a.log)
		report, err := restorer.Restore(cmd.Context(), full, snapshot.RestoreOptions{
			DryRun: flagRestoreDryRun,
		})
		if err != nil {
			return err
		}
		if !report.DryRun {
			a.events.SnapshotRestored(cmd.Context(), report)
		}
		a.metrics().RecordRestore(cmd.Context(), report)

		emitErr := emit(report, func() { printReport(report) })
		if emitErr != nil {
			return emitErr
		}
		if report.Status == model.RestoreFailed {
			return fmt.Errorf("restore of %q finished with %d errors", report.SnapshotName, len(report.Errors))
		}
		return nil
	},
}

func resolveSnapshot(ctx context.Context, a *app, args []string) (*model.SessionSnapshot, error) {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		latest, err := a.store.LatestSnapshotName(ctx, a.session)
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return nil, fmt.Errorf("session %q has no snapshots: %w", a.session, errNotFound)
		}
		name = latest
	}
	snap, err := a.store.GetSnapshot(ctx, a.session, name)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot %q: %w", name, errNotFound)
	}
	return snap, nil
}

func printReport(report *model.RestoreReport) {
	verb := "restored"
	if report.DryRun {
		verb = "would restore"
	}
	fmt.Printf("%s %q: %d tabs, %d panes (%d skipped)\n",
		verb, report.SnapshotName, report.TabsRestored, report.PanesRestored, report.PanesSkipped)
	for _, w := range report.Warnings {
		loc := w.Tab
		if w.Pane != "" {
			loc += "/" + w.Pane
		}
		fmt.Printf("  warning [%s] %s: %s\n", w.Kind, loc, w.Message)
	}
	for _, e := range report.Errors {
		loc := e.Tab
		if e.Pane != "" {
			loc += "/" + e.Pane
		}
		fmt.Printf("  error %s: %s\n", loc, e.Message)
	}
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		removed, err := a.store.DeleteSnapshot(cmd.Context(), a.session, args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("snapshot %q: %w", args[0], errNotFound)
		}
		fmt.Printf("deleted snapshot %q\n", args[0])
		return nil
	},
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "diff <from> <to>",
	Short: "Compare two snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		eng, err := newEngine(a)
		if err != nil {
			return err
		}
		var sides [2]*model.SessionSnapshot
		for i, name := range args {
			snap, err := a.store.GetSnapshot(cmd.Context(), a.session, name)
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("snapshot %q: %w", name, errNotFound)
			}
			if sides[i], err = eng.Materialize(cmd.Context(), snap); err != nil {
				return err
			}
		}

		d := snapshot.Diff(sides[0], sides[1])
		return emit(d, func() {
			if d.Empty() {
				fmt.Println("snapshots are identical")
				return
			}
			for _, t := range d.TabsAdded {
				fmt.Printf("+ tab %s\n", t)
			}
			for _, t := range d.TabsRemoved {
				fmt.Printf("- tab %s\n", t)
			}
			for _, p := range d.PanesAdded {
				fmt.Printf("+ pane %s\n", p)
			}
			for _, p := range d.PanesRemoved {
				fmt.Printf("- pane %s\n", p)
			}
			for _, c := range d.Changes {
				fmt.Printf("~ %s/%s %s: %q -> %q\n", c.Tab, c.Pane, c.Field, c.From, c.To)
			}
		})
	},
}

func init() {
	snapshotCreateCmd.Flags().StringVar(&flagSnapDescription, "description", "", "free-form snapshot description")
	snapshotCreateCmd.Flags().BoolVar(&flagSnapIncremental, "incremental", false, "parent on the session's latest snapshot")
	snapshotRestoreCmd.Flags().BoolVar(&flagRestoreDryRun, "dry-run", false, "report the plan without changing anything")

	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotListCmd, snapshotRestoreCmd, snapshotDeleteCmd, snapshotDiffCmd)
	rootCmd.AddCommand(snapshotCmd)
}
