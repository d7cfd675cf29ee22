// Package mux is the stateless command boundary to the terminal multiplexer.
//
// Every call is a synchronous round trip to the external process; nothing is
// cached here. The multiplexer is an untrusted render target: it may drift
// from the shadow store and exposes no stable pane-addressing scheme, so
// focus-by-index is implemented as repeated relative movement.
package mux

import (
	"context"
	"errors"
)

// ErrNotFound reports a command the multiplexer rejected because its target
// does not exist (unknown pane, tab, or session). It is a distinct outcome
// from a transport failure and callers are expected to branch on it.
var ErrNotFound = errors.New("mux: target not found")

// Direction is a pane split direction.
type Direction string

const (
	SplitRight Direction = "right"
	SplitDown  Direction = "down"
)

// PaneContext is the per-pane state captured for snapshots. Fields the
// multiplexer cannot report are zero; Scroll in particular is best-effort
// and unsupported by current zellij introspection.
type PaneContext struct {
	Cwd     string
	Command string
	Scroll  int
}

// LayoutPane is a leaf pane in a layout dump. Width and Height are fractions
// of the tab area.
type LayoutPane struct {
	Name    string
	Cwd     string
	Command string
	Focused bool
	Width   float64
	Height  float64
}

// LayoutTab is one tab in a layout dump, panes in visual order.
type LayoutTab struct {
	Name    string
	Focused bool
	Layout  string
	Panes   []LayoutPane
}

// LayoutTree is a full introspection dump of the current session.
type LayoutTree struct {
	Tabs []LayoutTab
}

// PaneNames returns the set of named panes in the tree.
func (l *LayoutTree) PaneNames() map[string]bool {
	names := make(map[string]bool)
	for _, tab := range l.Tabs {
		for _, p := range tab.Panes {
			if p.Name != "" {
				names[p.Name] = true
			}
		}
	}
	return names
}

// Tab returns the named tab, or nil.
func (l *LayoutTree) Tab(name string) *LayoutTab {
	for i := range l.Tabs {
		if l.Tabs[i].Name == name {
			return &l.Tabs[i]
		}
	}
	return nil
}

// FocusedTab returns the focused tab, or the first tab, or nil.
func (l *LayoutTree) FocusedTab() *LayoutTab {
	for i := range l.Tabs {
		if l.Tabs[i].Focused {
			return &l.Tabs[i]
		}
	}
	if len(l.Tabs) > 0 {
		return &l.Tabs[0]
	}
	return nil
}

// Multiplexer abstracts the multiplexer command set the core needs.
type Multiplexer interface {
	// Name returns the multiplexer name (e.g., "zellij").
	Name() string

	// ActiveSession returns the session this process runs inside, if any.
	ActiveSession() (string, bool)

	// CheckVersion verifies the installed multiplexer meets the minimum
	// supported version. The result is cached for the process lifetime.
	CheckVersion(ctx context.Context) error

	// TabNames lists the tab names of the current session.
	TabNames(ctx context.Context) ([]string, error)

	// EnsureTab switches to the named tab, creating it first if absent.
	// Returns true when the tab was created. An "already exists" rejection
	// from the multiplexer is treated as success.
	EnsureTab(ctx context.Context, name string) (created bool, err error)

	// SwitchTab focuses the named tab. Returns ErrNotFound for unknown tabs.
	SwitchTab(ctx context.Context, name string) error

	// CreatePane splits the focused tab and returns the new pane's index at
	// creation time: the pane count of the focused tab before the split.
	// The index is a best-effort hint, 0 when introspection is unavailable.
	CreatePane(ctx context.Context, dir Direction, cwd string) (int, error)

	// RenamePane renames the focused pane.
	RenamePane(ctx context.Context, name string) error

	// FocusPaneAt moves focus to the pane at the given index by issuing
	// index sequential "focus next pane" commands; the multiplexer has no
	// absolute focus-by-index operation.
	FocusPaneAt(ctx context.Context, index int) error

	// DumpLayout introspects the current session. It returns (nil, nil)
	// when introspection is unavailable (older multiplexer versions);
	// callers must distinguish unavailable from an empty tree.
	DumpLayout(ctx context.Context) (*LayoutTree, error)

	// CapturePaneContext captures the named pane's working directory,
	// running command, and scroll offset where supported. Returns
	// ErrNotFound when the pane is not in the live layout.
	CapturePaneContext(ctx context.Context, pane string) (*PaneContext, error)

	// WriteChars types text into the focused pane.
	WriteChars(ctx context.Context, text string) error

	// ScrollUp scrolls the focused pane up by the given number of lines.
	ScrollUp(ctx context.Context, lines int) error
}
