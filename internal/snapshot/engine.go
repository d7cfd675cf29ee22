// Package snapshot captures session topology into durable snapshots and
// restores them into a live multiplexer.
//
// A full snapshot is self-contained. An incremental snapshot names a parent
// and always carries the complete topology (tab and pane names plus
// positions); only per-pane detail fields are elided when unchanged, so a
// materialized view is a single walk up the parent chain.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paneward/paneward/internal/model"
	"github.com/paneward/paneward/internal/mux"
	"github.com/paneward/paneward/internal/redact"
)

// Store is the snapshot persistence slice the engine needs.
type Store interface {
	SaveSnapshot(ctx context.Context, snap *model.SessionSnapshot) error
	GetSnapshot(ctx context.Context, session, name string) (*model.SessionSnapshot, error)
	GetSnapshotByID(ctx context.Context, session, id string) (*model.SessionSnapshot, error)
	LatestSnapshotName(ctx context.Context, session string) (string, error)
}

// maxParentDepth bounds the materialization walk. Chains this deep indicate
// corrupted parent pointers, not real usage.
const maxParentDepth = 32

const defaultParallelism = 4

type Engine struct {
	store       Store
	mux         mux.Multiplexer
	redactor    *redact.Redactor
	git         GitProbe
	parallelism int
	log         *zap.Logger
}

// EngineOptions tunes capture behavior. Zero values get defaults; a nil Git
// probe disables git detection.
type EngineOptions struct {
	Parallelism int
	Git         GitProbe
	Log         *zap.Logger
}

func NewEngine(store Store, m mux.Multiplexer, redactor *redact.Redactor, opts EngineOptions) *Engine {
	e := &Engine{
		store:       store,
		mux:         m,
		redactor:    redactor,
		git:         opts.Git,
		parallelism: opts.Parallelism,
		log:         opts.Log,
	}
	if e.parallelism <= 0 {
		e.parallelism = defaultParallelism
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// CaptureRequest describes one snapshot to take.
type CaptureRequest struct {
	Name        string
	Session     string
	Description string
	// Incremental parents the snapshot on the session's latest snapshot
	// when one exists; otherwise the capture is full.
	Incremental bool
}

// Capture introspects the live session and persists a snapshot of it.
func (e *Engine) Capture(ctx context.Context, req CaptureRequest) (*model.SessionSnapshot, error) {
	tree, err := e.mux.DumpLayout(ctx)
	if err != nil {
		return nil, fmt.Errorf("dumping layout: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("%s does not support layout introspection; cannot snapshot", e.mux.Name())
	}

	snap := model.NewSessionSnapshot(req.Name, req.Session)
	snap.Description = req.Description
	snap.Tabs = tabsFromLayout(tree)

	if err := e.capturePaneDetails(ctx, &snap); err != nil {
		return nil, err
	}
	e.redactCommands(&snap)
	snap.PaneCount = snap.CountPanes()

	if req.Incremental {
		if err := e.parentOnLatest(ctx, &snap); err != nil {
			return nil, err
		}
	}

	if err := e.store.SaveSnapshot(ctx, &snap); err != nil {
		return nil, err
	}
	e.log.Info("snapshot captured",
		zap.String("name", snap.Name),
		zap.String("session", snap.Session),
		zap.Int("tabs", len(snap.Tabs)),
		zap.Int("panes", snap.PaneCount),
		zap.Bool("incremental", snap.ParentID != ""))
	return &snap, nil
}

func tabsFromLayout(tree *mux.LayoutTree) []model.TabSnapshot {
	tabs := make([]model.TabSnapshot, 0, len(tree.Tabs))
	for ti, lt := range tree.Tabs {
		tab := model.TabSnapshot{
			Name:     lt.Name,
			Position: ti,
			Active:   lt.Focused,
			Layout:   lt.Layout,
		}
		for pi, lp := range lt.Panes {
			pane := model.PaneSnapshot{
				Name:     lp.Name,
				Position: pi,
			}
			if pane.Name == "" {
				pane.Name = model.UnnamedPane
			}
			if lp.Width > 0 || lp.Height > 0 {
				pane.Geometry = &model.Geometry{Width: lp.Width, Height: lp.Height}
			}
			if lp.Cwd != "" {
				pane.Cwd = ptr(lp.Cwd)
			}
			if lp.Command != "" {
				pane.Command = ptr(lp.Command)
			}
			if lp.Focused {
				pane.Focused = ptr(true)
			}
			tab.Panes = append(tab.Panes, pane)
		}
		tabs = append(tabs, tab)
	}
	return tabs
}

// capturePaneDetails refreshes per-pane context for named panes with a
// bounded fan-out, then probes git state for every pane with a working
// directory. Each goroutine owns exactly one pane, so no locking is needed.
func (e *Engine) capturePaneDetails(ctx context.Context, snap *model.SessionSnapshot) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for ti := range snap.Tabs {
		for pi := range snap.Tabs[ti].Panes {
			pane := &snap.Tabs[ti].Panes[pi]
			g.Go(func() error {
				if pane.Name != model.UnnamedPane {
					pc, err := e.mux.CapturePaneContext(gctx, pane.Name)
					switch {
					case errors.Is(err, mux.ErrNotFound):
						// Pane closed between dump and capture; keep
						// the layout-derived fields.
					case err != nil:
						return fmt.Errorf("capturing pane %q: %w", pane.Name, err)
					default:
						if pc.Cwd != "" {
							pane.Cwd = ptr(pc.Cwd)
						}
						if pc.Command != "" {
							pane.Command = ptr(pc.Command)
						}
						if pc.Scroll > 0 {
							pane.Scroll = ptr(pc.Scroll)
						}
					}
				}
				if e.git != nil && pane.Cwd != nil {
					if branch, worktree := e.git(gctx, *pane.Cwd); branch != "" {
						pane.Branch = ptr(branch)
						if worktree != "" {
							pane.Worktree = ptr(worktree)
						}
					}
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func (e *Engine) redactCommands(snap *model.SessionSnapshot) {
	if e.redactor == nil {
		return
	}
	total := 0
	for ti := range snap.Tabs {
		for pi := range snap.Tabs[ti].Panes {
			pane := &snap.Tabs[ti].Panes[pi]
			if pane.Command == nil {
				continue
			}
			clean, n := e.redactor.Redact(*pane.Command)
			if n > 0 {
				pane.Command = &clean
				total += n
			}
		}
	}
	if total > 0 {
		e.log.Info("redacted secrets from captured commands", zap.Int("count", total))
	}
}

// parentOnLatest links the snapshot to the session's latest snapshot and
// elides per-pane fields that match the materialized parent. Topology is
// never elided.
func (e *Engine) parentOnLatest(ctx context.Context, snap *model.SessionSnapshot) error {
	latest, err := e.store.LatestSnapshotName(ctx, snap.Session)
	if err != nil {
		return err
	}
	if latest == "" {
		e.log.Debug("no parent snapshot, capturing full", zap.String("session", snap.Session))
		return nil
	}
	parent, err := e.store.GetSnapshot(ctx, snap.Session, latest)
	if err != nil {
		return err
	}
	if parent == nil {
		return nil
	}
	parent, err = e.Materialize(ctx, parent)
	if err != nil {
		return fmt.Errorf("materializing parent %q: %w", latest, err)
	}

	snap.ParentID = parent.ID
	for ti := range snap.Tabs {
		ptab := findTab(parent, snap.Tabs[ti].Name)
		if ptab == nil {
			continue
		}
		for pi := range snap.Tabs[ti].Panes {
			pane := &snap.Tabs[ti].Panes[pi]
			ppane := findPane(ptab, pane.Name)
			if ppane == nil {
				continue
			}
			elideEqual(pane, ppane)
		}
	}
	return nil
}

// Materialize resolves a snapshot's parent chain, filling every elided
// field from the nearest ancestor that carries it. Full snapshots pass
// through unchanged.
func (e *Engine) Materialize(ctx context.Context, snap *model.SessionSnapshot) (*model.SessionSnapshot, error) {
	out := cloneSnapshot(snap)
	seen := map[string]bool{snap.ID: true}

	cur := snap
	for depth := 0; cur.ParentID != ""; depth++ {
		if depth >= maxParentDepth {
			return nil, fmt.Errorf("parent chain deeper than %d, refusing", maxParentDepth)
		}
		if seen[cur.ParentID] {
			return nil, fmt.Errorf("parent chain cycle at snapshot id %s", cur.ParentID)
		}
		parent, err := e.store.GetSnapshotByID(ctx, snap.Session, cur.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, fmt.Errorf("parent snapshot id %s not found; chain is broken", cur.ParentID)
		}
		seen[parent.ID] = true

		for ti := range out.Tabs {
			ptab := findTab(parent, out.Tabs[ti].Name)
			if ptab == nil {
				continue
			}
			for pi := range out.Tabs[ti].Panes {
				fillMissing(&out.Tabs[ti].Panes[pi], findPane(ptab, out.Tabs[ti].Panes[pi].Name))
			}
		}
		cur = parent
	}
	return out, nil
}

func cloneSnapshot(snap *model.SessionSnapshot) *model.SessionSnapshot {
	out := *snap
	out.Tabs = make([]model.TabSnapshot, len(snap.Tabs))
	copy(out.Tabs, snap.Tabs)
	for ti := range out.Tabs {
		panes := make([]model.PaneSnapshot, len(snap.Tabs[ti].Panes))
		copy(panes, snap.Tabs[ti].Panes)
		out.Tabs[ti].Panes = panes
	}
	return &out
}

func findTab(snap *model.SessionSnapshot, name string) *model.TabSnapshot {
	for i := range snap.Tabs {
		if snap.Tabs[i].Name == name {
			return &snap.Tabs[i]
		}
	}
	return nil
}

func findPane(tab *model.TabSnapshot, name string) *model.PaneSnapshot {
	for i := range tab.Panes {
		if tab.Panes[i].Name == name {
			return &tab.Panes[i]
		}
	}
	return nil
}

// elideEqual clears child fields equal to the parent's.
func elideEqual(pane, parent *model.PaneSnapshot) {
	if strPtrEq(pane.Cwd, parent.Cwd) {
		pane.Cwd = nil
	}
	if strPtrEq(pane.Command, parent.Command) {
		pane.Command = nil
	}
	if strPtrEq(pane.Branch, parent.Branch) {
		pane.Branch = nil
	}
	if strPtrEq(pane.Worktree, parent.Worktree) {
		pane.Worktree = nil
	}
	if pane.Geometry != nil && parent.Geometry != nil && *pane.Geometry == *parent.Geometry {
		pane.Geometry = nil
	}
	if pane.Scroll != nil && parent.Scroll != nil && *pane.Scroll == *parent.Scroll {
		pane.Scroll = nil
	}
	if pane.Focused != nil && parent.Focused != nil && *pane.Focused == *parent.Focused {
		pane.Focused = nil
	}
}

// fillMissing copies parent fields into nil child fields.
func fillMissing(pane, parent *model.PaneSnapshot) {
	if parent == nil {
		return
	}
	if pane.Cwd == nil && parent.Cwd != nil {
		pane.Cwd = ptr(*parent.Cwd)
	}
	if pane.Command == nil && parent.Command != nil {
		pane.Command = ptr(*parent.Command)
	}
	if pane.Branch == nil && parent.Branch != nil {
		pane.Branch = ptr(*parent.Branch)
	}
	if pane.Worktree == nil && parent.Worktree != nil {
		pane.Worktree = ptr(*parent.Worktree)
	}
	if pane.Geometry == nil && parent.Geometry != nil {
		g := *parent.Geometry
		pane.Geometry = &g
	}
	if pane.Scroll == nil && parent.Scroll != nil {
		pane.Scroll = ptr(*parent.Scroll)
	}
	if pane.Focused == nil && parent.Focused != nil {
		pane.Focused = ptr(*parent.Focused)
	}
}

func strPtrEq(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func ptr[T any](v T) *T { return &v }
