// Package workspace implements named-pane navigation: the open-or-create
// flow that makes pane names durable addresses.
//
// The store is the authority; the multiplexer is a render target that is
// re-driven toward the stored intent. A stored pane whose tab is gone is
// marked stale and recreated rather than trusted.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/paneward/paneward/internal/events"
	"github.com/paneward/paneward/internal/model"
	"github.com/paneward/paneward/internal/mux"
	"github.com/paneward/paneward/internal/store"
)

// Records is the store slice navigation needs.
type Records interface {
	GetPane(ctx context.Context, name string) (*model.PaneRecord, error)
	PutPane(ctx context.Context, rec model.PaneRecord) error
	TouchPane(ctx context.Context, name string, meta map[string]string) error
	MarkStale(ctx context.Context, name string) error
	GetTab(ctx context.Context, name string) (*model.TabRecord, error)
	PutTab(ctx context.Context, rec model.TabRecord) error
	TouchTab(ctx context.Context, name string) error
}

type Navigator struct {
	store  Records
	mux    mux.Multiplexer
	events *events.Publisher
	log    *zap.Logger
}

func NewNavigator(store Records, m mux.Multiplexer, pub *events.Publisher, log *zap.Logger) *Navigator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Navigator{store: store, mux: m, events: pub, log: log}
}

// OpenRequest names a pane to open or create.
type OpenRequest struct {
	Name    string
	Session string
	// Tab is where the pane is created when no live record exists. Empty
	// means the currently active tab.
	Tab string
	Cwd string
	// Meta is merged into the record on every open.
	Meta map[string]string
}

// OpenResult reports what Open did.
type OpenResult struct {
	Record  model.PaneRecord `json:"record"`
	Created bool             `json:"created"`
	// Recovered is set when a stored record existed but its pane was gone
	// and had to be recreated.
	Recovered bool `json:"recovered,omitempty"`
}

// Open focuses the named pane, creating it when it does not exist. A record
// whose tab no longer exists is marked stale and the pane is recreated; the
// original record's creation time survives recreation.
func (n *Navigator) Open(ctx context.Context, req OpenRequest) (*OpenResult, error) {
	if req.Name == "" {
		return nil, errors.New("pane name is required")
	}
	if err := model.ValidateMetaKeys(req.Meta); err != nil {
		return nil, err
	}
	if err := n.mux.CheckVersion(ctx); err != nil {
		return nil, err
	}

	rec, err := n.store.GetPane(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	if rec != nil && !rec.Stale {
		res, err := n.focusExisting(ctx, req, rec)
		if err == nil || !errors.Is(err, mux.ErrNotFound) {
			return res, err
		}
		// The stored tab is gone; flag the record and fall through to
		// recreate the pane.
		n.log.Info("stored pane unreachable, recreating",
			zap.String("pane", req.Name), zap.String("tab", rec.Tab))
		if err := n.store.MarkStale(ctx, req.Name); err != nil {
			return nil, err
		}
	}
	return n.create(ctx, req, rec)
}

func (n *Navigator) focusExisting(ctx context.Context, req OpenRequest, rec *model.PaneRecord) (*OpenResult, error) {
	if rec.Tab != model.CurrentTab {
		if err := n.mux.SwitchTab(ctx, rec.Tab); err != nil {
			return nil, err
		}
	}
	if err := n.mux.FocusPaneAt(ctx, rec.Position); err != nil && !errors.Is(err, mux.ErrNotFound) {
		return nil, err
	}
	if err := n.store.TouchPane(ctx, req.Name, req.Meta); err != nil {
		return nil, err
	}
	out, err := n.store.GetPane(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	n.events.PaneOpened(ctx, *out)
	return &OpenResult{Record: *out}, nil
}

func (n *Navigator) create(ctx context.Context, req OpenRequest, prev *model.PaneRecord) (*OpenResult, error) {
	tab := req.Tab
	if tab == "" && prev != nil {
		tab = prev.Tab
	}

	var position int
	if tab == "" || tab == model.CurrentTab {
		// No target tab: split in whatever tab is active. The record
		// keeps position 0, so opening it later never walks focus.
		tab = model.CurrentTab
		if _, err := n.mux.CreatePane(ctx, mux.SplitRight, req.Cwd); err != nil {
			return nil, fmt.Errorf("creating pane %q: %w", req.Name, err)
		}
	} else {
		tabCreated, err := n.mux.EnsureTab(ctx, tab)
		if err != nil {
			return nil, fmt.Errorf("ensuring tab %q: %w", tab, err)
		}
		if tabCreated {
			// A fresh tab already holds one pane; rename it instead of
			// splitting, so the tab does not start with an orphan.
			if err := n.registerTab(ctx, model.NewTabRecord(tab, req.Session)); err != nil {
				return nil, err
			}
		} else {
			position, err = n.mux.CreatePane(ctx, mux.SplitRight, req.Cwd)
			if err != nil {
				return nil, fmt.Errorf("creating pane %q: %w", req.Name, err)
			}
		}
	}
	if err := n.mux.RenamePane(ctx, req.Name); err != nil {
		return nil, fmt.Errorf("naming pane %q: %w", req.Name, err)
	}

	rec := model.NewPaneRecord(req.Name, req.Session, tab, position, req.Meta)
	if prev != nil {
		rec.CreatedAt = prev.CreatedAt
		for k, v := range prev.Meta {
			if _, ok := rec.Meta[k]; !ok {
				if rec.Meta == nil {
					rec.Meta = map[string]string{}
				}
				rec.Meta[k] = v
			}
		}
	}
	if err := n.store.PutPane(ctx, rec); err != nil {
		return nil, err
	}
	n.events.PaneCreated(ctx, rec)
	n.log.Info("pane created",
		zap.String("pane", req.Name),
		zap.String("tab", tab),
		zap.Int("position", position))
	return &OpenResult{Record: rec, Created: true, Recovered: prev != nil}, nil
}

// Info returns the stored record for a pane, or nil when untracked.
func (n *Navigator) Info(ctx context.Context, name string) (*model.PaneRecord, error) {
	return n.store.GetPane(ctx, name)
}

// TabRequest names a tab to create or focus.
type TabRequest struct {
	Name    string
	Session string
	// CorrelationID, when set, is appended to the tab name so parallel
	// workflows with the same logical tab stay distinct.
	CorrelationID string
	Meta          map[string]string
}

// TabResult reports what CreateTab did.
type TabResult struct {
	Record  model.TabRecord `json:"record"`
	Created bool            `json:"created"`
}

// CreateTab ensures the tab exists and is focused, registering it in the
// store under its effective (correlation-suffixed) name.
func (n *Navigator) CreateTab(ctx context.Context, req TabRequest) (*TabResult, error) {
	if req.Name == "" {
		return nil, errors.New("tab name is required")
	}
	if err := model.ValidateMetaKeys(req.Meta); err != nil {
		return nil, err
	}
	if err := n.mux.CheckVersion(ctx); err != nil {
		return nil, err
	}

	rec := model.NewTabRecord(req.Name, req.Session)
	rec.CorrelationID = req.CorrelationID
	rec.Meta = req.Meta
	effective := rec.EffectiveName()
	rec.Name = effective

	created, err := n.mux.EnsureTab(ctx, effective)
	if err != nil {
		return nil, fmt.Errorf("ensuring tab %q: %w", effective, err)
	}
	if !created {
		if err := n.store.TouchTab(ctx, effective); err != nil {
			return nil, err
		}
		existing, err := n.store.GetTab(ctx, effective)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &TabResult{Record: *existing}, nil
		}
		// Live tab with no record: adopt it.
	}
	if err := n.registerTab(ctx, rec); err != nil {
		return nil, err
	}
	return &TabResult{Record: rec, Created: created}, nil
}

func (n *Navigator) registerTab(ctx context.Context, rec model.TabRecord) error {
	if err := n.store.PutTab(ctx, rec); err != nil {
		return err
	}
	n.events.TabCreated(ctx, rec)
	return nil
}

// BatchItem is one pane in a batch open.
type BatchItem struct {
	Name string `yaml:"name" json:"name"`
	Tab  string `yaml:"tab,omitempty" json:"tab,omitempty"`
	Cwd  string `yaml:"cwd,omitempty" json:"cwd,omitempty"`
}

// BatchResult pairs one batch item with its outcome.
type BatchResult struct {
	Name    string      `json:"name"`
	Result  *OpenResult `json:"result,omitempty"`
	Err     error       `json:"-"`
	Message string      `json:"error,omitempty"`
}

// Batch opens panes sequentially. Per-item failures are collected rather
// than aborting the rest, except store unavailability, which is fatal.
func (n *Navigator) Batch(ctx context.Context, session string, items []BatchItem) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(items))
	for _, item := range items {
		res, err := n.Open(ctx, OpenRequest{
			Name:    item.Name,
			Session: session,
			Tab:     item.Tab,
			Cwd:     item.Cwd,
		})
		br := BatchResult{Name: item.Name, Result: res, Err: err}
		if err != nil {
			br.Message = err.Error()
		}
		results = append(results, br)
		if errors.Is(err, store.ErrUnavailable) {
			return results, err
		}
	}
	return results, nil
}
