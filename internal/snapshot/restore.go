package snapshot

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paneward/paneward/internal/model"
	"github.com/paneward/paneward/internal/mux"
)

// RecordWriter is the store slice a restore uses to re-register what it
// recreated.
type RecordWriter interface {
	PutPane(ctx context.Context, rec model.PaneRecord) error
	PutTab(ctx context.Context, rec model.TabRecord) error
}

// Restorer replays a materialized snapshot into the live multiplexer.
type Restorer struct {
	mux     mux.Multiplexer
	records RecordWriter
	log     *zap.Logger

	// injectable for tests
	lookPath func(string) (string, error)
	dirOK    func(string) bool
	home     string
}

func NewRestorer(m mux.Multiplexer, records RecordWriter, log *zap.Logger) *Restorer {
	if log == nil {
		log = zap.NewNop()
	}
	home, _ := os.UserHomeDir()
	return &Restorer{
		mux:      m,
		records:  records,
		log:      log,
		lookPath: exec.LookPath,
		dirOK:    dirExists,
		home:     home,
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// RestoreOptions tunes a restore run.
type RestoreOptions struct {
	// DryRun evaluates the plan and reports would-be warnings without
	// touching the multiplexer or the store.
	DryRun bool
}

// Restore recreates the snapshot's tabs and panes. Tabs that already exist
// are skipped with a warning; per-pane failures are recorded and do not
// abort sibling panes. A warnings-only run is a success.
func (r *Restorer) Restore(ctx context.Context, snap *model.SessionSnapshot, opts RestoreOptions) (*model.RestoreReport, error) {
	start := time.Now()
	report := &model.RestoreReport{
		SnapshotID:   snap.ID,
		SnapshotName: snap.Name,
		Session:      snap.Session,
		DryRun:       opts.DryRun,
		Status:       model.RestoreSucceeded,
	}

	if !opts.DryRun {
		if err := r.mux.CheckVersion(ctx); err != nil {
			return nil, err
		}
	}
	existingNames, err := r.mux.TabNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tabs: %w", err)
	}
	existing := map[string]bool{}
	for _, n := range existingNames {
		existing[n] = true
	}

	tabs := cloneSnapshot(snap).Tabs
	sort.SliceStable(tabs, func(i, j int) bool { return tabs[i].Position < tabs[j].Position })

	for ti := range tabs {
		tab := &tabs[ti]
		if existing[tab.Name] {
			report.Warn(model.RestoreWarning{
				Tab:     tab.Name,
				Kind:    model.WarnTabExists,
				Message: fmt.Sprintf("tab %q already exists, leaving it untouched", tab.Name),
			})
			report.PanesSkipped += len(tab.Panes)
			continue
		}
		r.restoreTab(ctx, report, snap.Session, tab, opts.DryRun)
	}

	if !opts.DryRun {
		r.restoreFocus(ctx, tabs)
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (r *Restorer) restoreTab(ctx context.Context, report *model.RestoreReport, session string, tab *model.TabSnapshot, dry bool) {
	if !dry {
		if _, err := r.mux.EnsureTab(ctx, tab.Name); err != nil {
			report.Fail(model.RestoreError{
				Tab:     tab.Name,
				Message: fmt.Sprintf("creating tab: %v", err),
			})
			return
		}
		if r.records != nil {
			rec := model.NewTabRecord(tab.Name, session)
			rec.CorrelationID = tab.CorrelationID
			if err := r.records.PutTab(ctx, rec); err != nil {
				r.log.Warn("tab restored but record write failed",
					zap.String("tab", tab.Name), zap.Error(err))
			}
		}
	}
	report.TabsRestored++

	sort.SliceStable(tab.Panes, func(i, j int) bool { return tab.Panes[i].Position < tab.Panes[j].Position })
	for pi := range tab.Panes {
		pane := &tab.Panes[pi]
		cwd := r.resolveCwd(report, tab.Name, pane)
		command := r.resolveCommand(report, tab.Name, pane)
		if pane.Name == model.UnnamedPane {
			report.Warn(model.RestoreWarning{
				Tab:     tab.Name,
				Pane:    pane.Name,
				Kind:    model.WarnUnnamedPane,
				Message: "pane had no name at capture time; restored without a record",
			})
		}
		if dry {
			report.PanesRestored++
			continue
		}
		if err := r.restorePane(ctx, session, tab.Name, pane, pi, cwd, command); err != nil {
			report.Fail(model.RestoreError{
				Tab:     tab.Name,
				Pane:    pane.Name,
				Message: err.Error(),
			})
			continue
		}
		report.PanesRestored++
	}
}

// restorePane places one pane. A fresh tab already holds its first pane, so
// index 0 reuses it; later panes split, alternating right and down to keep
// the layout roughly balanced.
func (r *Restorer) restorePane(ctx context.Context, session, tabName string, pane *model.PaneSnapshot, index int, cwd, command string) error {
	position := 0
	if index > 0 {
		dir := mux.SplitRight
		if index%2 == 0 {
			dir = mux.SplitDown
		}
		var err error
		position, err = r.mux.CreatePane(ctx, dir, cwd)
		if err != nil {
			return fmt.Errorf("creating pane: %w", err)
		}
	} else if cwd != "" {
		// The tab's initial pane cannot be given a directory up front.
		if err := r.mux.WriteChars(ctx, "cd "+shellQuote(cwd)+"\n"); err != nil {
			return fmt.Errorf("setting directory: %w", err)
		}
	}

	if pane.Name != model.UnnamedPane {
		if err := r.mux.RenamePane(ctx, pane.Name); err != nil {
			return fmt.Errorf("renaming pane: %w", err)
		}
	}
	if command != "" {
		if err := r.mux.WriteChars(ctx, command+"\n"); err != nil {
			return fmt.Errorf("starting command: %w", err)
		}
	}
	if pane.Scroll != nil && *pane.Scroll > 0 {
		if err := r.mux.ScrollUp(ctx, *pane.Scroll); err != nil {
			r.log.Debug("scroll restore failed", zap.String("pane", pane.Name), zap.Error(err))
		}
	}

	if r.records != nil && pane.Name != model.UnnamedPane {
		rec := model.NewPaneRecord(pane.Name, session, tabName, position, nil)
		if err := r.records.PutPane(ctx, rec); err != nil {
			r.log.Warn("pane restored but record write failed",
				zap.String("pane", pane.Name), zap.Error(err))
		}
	}
	return nil
}

// resolveCwd returns the directory to restore into, falling back to the
// home directory when the captured one no longer exists.
func (r *Restorer) resolveCwd(report *model.RestoreReport, tabName string, pane *model.PaneSnapshot) string {
	if pane.Cwd == nil || *pane.Cwd == "" {
		return ""
	}
	if r.dirOK(*pane.Cwd) {
		return *pane.Cwd
	}
	report.Warn(model.RestoreWarning{
		Tab:      tabName,
		Pane:     pane.Name,
		Kind:     model.WarnCwdMissing,
		Fallback: r.home,
		Message:  fmt.Sprintf("directory %q no longer exists", *pane.Cwd),
	})
	return r.home
}

// resolveCommand returns the command to relaunch, or "" when its executable
// is no longer on PATH.
func (r *Restorer) resolveCommand(report *model.RestoreReport, tabName string, pane *model.PaneSnapshot) string {
	if pane.Command == nil || *pane.Command == "" {
		return ""
	}
	fields := strings.Fields(*pane.Command)
	if len(fields) == 0 {
		return ""
	}
	argv0 := fields[0]
	if _, err := r.lookPath(argv0); err != nil {
		report.Warn(model.RestoreWarning{
			Tab:      tabName,
			Pane:     pane.Name,
			Kind:     model.WarnCommandUnavailable,
			Fallback: "shell only",
			Message:  fmt.Sprintf("executable %q not found, pane left at the shell", argv0),
		})
		return ""
	}
	return *pane.Command
}

// restoreFocus moves focus to the pane that was focused at capture time.
// Best effort: focus is cosmetic and never fails a restore.
func (r *Restorer) restoreFocus(ctx context.Context, tabs []model.TabSnapshot) {
	for ti := range tabs {
		for pi := range tabs[ti].Panes {
			pane := &tabs[ti].Panes[pi]
			if pane.Focused == nil || !*pane.Focused {
				continue
			}
			if err := r.mux.SwitchTab(ctx, tabs[ti].Name); err != nil {
				r.log.Debug("focus restore failed", zap.Error(err))
				return
			}
			if err := r.mux.FocusPaneAt(ctx, pi); err != nil {
				r.log.Debug("focus restore failed", zap.Error(err))
			}
			return
		}
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
