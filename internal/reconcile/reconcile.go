// Package reconcile drifts the shadow state back toward reality: stored
// pane records are checked against the live multiplexer layout and flagged
// stale when their pane is gone. Records are never deleted, and the live
// layout is never mutated.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/paneward/paneward/internal/model"
	"github.com/paneward/paneward/internal/mux"
)

// Records is the slice of the store the reconciler needs.
type Records interface {
	ListPanes(ctx context.Context, session string) ([]model.PaneRecord, error)
	MarkSeen(ctx context.Context, name string) error
	MarkStale(ctx context.Context, name string) error
}

// Layout is the slice of the multiplexer the reconciler needs.
type Layout interface {
	DumpLayout(ctx context.Context) (*mux.LayoutTree, error)
}

type Reconciler struct {
	store Records
	mux   Layout
	log   *zap.Logger
}

func New(store Records, m Layout, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, mux: m, log: log}
}

// Run checks every stored pane record for the session against the live
// layout. A record whose pane is present is confirmed (last-seen refreshed,
// staleness cleared); a record whose pane is absent is marked stale. Records
// belonging to other sessions are counted as skipped and left alone. When
// the multiplexer cannot report its layout every record is skipped and
// nothing is marked, so introspection gaps never masquerade as dead panes.
func (r *Reconciler) Run(ctx context.Context, session string) (model.ReconcileResult, error) {
	result := model.ReconcileResult{Session: session}

	all, err := r.store.ListPanes(ctx, "")
	if err != nil {
		return result, fmt.Errorf("listing pane records: %w", err)
	}
	var records []model.PaneRecord
	for _, rec := range all {
		if rec.Session != session {
			result.Skipped++
			continue
		}
		records = append(records, rec)
	}
	result.Checked = len(records)
	if len(records) == 0 {
		return result, nil
	}

	tree, err := r.mux.DumpLayout(ctx)
	if err != nil {
		return result, fmt.Errorf("dumping layout: %w", err)
	}
	if tree == nil {
		result.Skipped += len(records)
		result.LayoutUnavailable = true
		r.log.Warn("layout unavailable, skipping reconcile",
			zap.String("session", session),
			zap.Int("skipped", result.Skipped))
		return result, nil
	}

	live := tree.PaneNames()
	for _, rec := range records {
		if live[rec.Name] {
			if err := r.store.MarkSeen(ctx, rec.Name); err != nil {
				return result, fmt.Errorf("confirming %q: %w", rec.Name, err)
			}
			result.Confirmed++
			continue
		}
		if err := r.store.MarkStale(ctx, rec.Name); err != nil {
			return result, fmt.Errorf("flagging %q: %w", rec.Name, err)
		}
		if !rec.Stale {
			r.log.Info("pane gone, marked stale",
				zap.String("pane", rec.Name),
				zap.String("tab", rec.Tab))
		}
		result.Stale++
	}
	return result, nil
}
