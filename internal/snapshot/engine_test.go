package snapshot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/paneward/paneward/internal/model"
	"github.com/paneward/paneward/internal/mux"
	"github.com/paneward/paneward/internal/redact"
)

// fakeMux scripts multiplexer behavior for engine and restore tests.
type fakeMux struct {
	tree     *mux.LayoutTree
	contexts map[string]*mux.PaneContext

	versionErr error
	tabNames   []string
	tabsMade   []string
	panesMade  []string
	renames    []string
	written    []string
	switched   []string
	focused    []int
	scrolled   int
}

func (f *fakeMux) Name() string                  { return "fake" }
func (f *fakeMux) ActiveSession() (string, bool) { return "main", true }

func (f *fakeMux) CheckVersion(ctx context.Context) error { return f.versionErr }

func (f *fakeMux) TabNames(ctx context.Context) ([]string, error) { return f.tabNames, nil }

func (f *fakeMux) EnsureTab(ctx context.Context, name string) (bool, error) {
	f.tabsMade = append(f.tabsMade, name)
	return true, nil
}

func (f *fakeMux) SwitchTab(ctx context.Context, name string) error {
	f.switched = append(f.switched, name)
	return nil
}

func (f *fakeMux) CreatePane(ctx context.Context, dir mux.Direction, cwd string) (int, error) {
	f.panesMade = append(f.panesMade, fmt.Sprintf("%s:%s", dir, cwd))
	return len(f.panesMade), nil
}

func (f *fakeMux) RenamePane(ctx context.Context, name string) error {
	f.renames = append(f.renames, name)
	return nil
}

func (f *fakeMux) FocusPaneAt(ctx context.Context, index int) error {
	f.focused = append(f.focused, index)
	return nil
}

func (f *fakeMux) DumpLayout(ctx context.Context) (*mux.LayoutTree, error) { return f.tree, nil }

func (f *fakeMux) CapturePaneContext(ctx context.Context, pane string) (*mux.PaneContext, error) {
	if pc, ok := f.contexts[pane]; ok {
		return pc, nil
	}
	return nil, mux.ErrNotFound
}

func (f *fakeMux) WriteChars(ctx context.Context, text string) error {
	f.written = append(f.written, text)
	return nil
}

func (f *fakeMux) ScrollUp(ctx context.Context, lines int) error {
	f.scrolled += lines
	return nil
}

// fakeSnapStore keeps snapshots in memory in save order.
type fakeSnapStore struct {
	snaps []*model.SessionSnapshot
}

func (f *fakeSnapStore) SaveSnapshot(ctx context.Context, snap *model.SessionSnapshot) error {
	f.snaps = append(f.snaps, cloneSnapshot(snap))
	return nil
}

func (f *fakeSnapStore) GetSnapshot(ctx context.Context, session, name string) (*model.SessionSnapshot, error) {
	for i := len(f.snaps) - 1; i >= 0; i-- {
		if f.snaps[i].Session == session && f.snaps[i].Name == name {
			return cloneSnapshot(f.snaps[i]), nil
		}
	}
	return nil, nil
}

func (f *fakeSnapStore) GetSnapshotByID(ctx context.Context, session, id string) (*model.SessionSnapshot, error) {
	for _, s := range f.snaps {
		if s.Session == session && s.ID == id {
			return cloneSnapshot(s), nil
		}
	}
	return nil, nil
}

func (f *fakeSnapStore) LatestSnapshotName(ctx context.Context, session string) (string, error) {
	for i := len(f.snaps) - 1; i >= 0; i-- {
		if f.snaps[i].Session == session {
			return f.snaps[i].Name, nil
		}
	}
	return "", nil
}

func devLayout() *mux.LayoutTree {
	return &mux.LayoutTree{Tabs: []mux.LayoutTab{
		{
			Name:    "dev",
			Focused: true,
			Panes: []mux.LayoutPane{
				{Name: "editor", Focused: true, Width: 0.6, Height: 1},
				{Name: "build", Width: 0.4, Height: 0.5},
				{Width: 0.4, Height: 0.5},
			},
		},
		{
			Name:  "logs",
			Panes: []mux.LayoutPane{{Name: "tail", Width: 1, Height: 1}},
		},
	}}
}

func devContexts() map[string]*mux.PaneContext {
	return map[string]*mux.PaneContext{
		"editor": {Cwd: "/home/dev/api", Command: "nvim ."},
		"build":  {Cwd: "/home/dev/api", Command: "make watch"},
		"tail":   {Cwd: "/var/log", Command: "tail -f app.log"},
	}
}

func newTestEngine(t *testing.T, m *fakeMux, store *fakeSnapStore, git GitProbe) *Engine {
	t.Helper()
	red, err := redact.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(store, m, red, EngineOptions{Parallelism: 2, Git: git})
}

func TestCaptureFull(t *testing.T) {
	m := &fakeMux{tree: devLayout(), contexts: devContexts()}
	store := &fakeSnapStore{}
	git := func(ctx context.Context, dir string) (string, string) {
		if dir == "/home/dev/api" {
			return "main", "/home/dev/api"
		}
		return "", ""
	}
	e := newTestEngine(t, m, store, git)

	snap, err := e.Capture(context.Background(), CaptureRequest{Name: "baseline", Session: "main"})
	if err != nil {
		t.Fatal(err)
	}
	if snap.ParentID != "" {
		t.Fatalf("full capture must not have a parent: %q", snap.ParentID)
	}
	if len(snap.Tabs) != 2 || snap.PaneCount != 4 {
		t.Fatalf("topology: %d tabs, %d panes", len(snap.Tabs), snap.PaneCount)
	}

	dev := snap.Tabs[0]
	if !dev.Active || dev.Name != "dev" {
		t.Fatalf("focused tab lost: %+v", dev)
	}
	editor := dev.Panes[0]
	if editor.Cwd == nil || *editor.Cwd != "/home/dev/api" {
		t.Fatalf("editor cwd: %+v", editor.Cwd)
	}
	if editor.Command == nil || *editor.Command != "nvim ." {
		t.Fatalf("editor command: %+v", editor.Command)
	}
	if editor.Branch == nil || *editor.Branch != "main" {
		t.Fatalf("editor branch: %+v", editor.Branch)
	}
	if editor.Focused == nil || !*editor.Focused {
		t.Fatal("focused flag lost")
	}
	if editor.Geometry == nil || editor.Geometry.Width != 0.6 {
		t.Fatalf("geometry: %+v", editor.Geometry)
	}
	if dev.Panes[2].Name != model.UnnamedPane {
		t.Fatalf("nameless pane should capture as %q, got %q", model.UnnamedPane, dev.Panes[2].Name)
	}
	if len(store.snaps) != 1 {
		t.Fatal("snapshot not persisted")
	}
}

func TestCaptureRedactsCommands(t *testing.T) {
	tree := &mux.LayoutTree{Tabs: []mux.LayoutTab{{
		Name:  "dev",
		Panes: []mux.LayoutPane{{Name: "deploy", Width: 1, Height: 1}},
	}}}
	m := &fakeMux{tree: tree, contexts: map[string]*mux.PaneContext{
		"deploy": {Command: `deploy --api_key="sk-abc123def456ghi789jkl"`},
	}}
	store := &fakeSnapStore{}
	e := newTestEngine(t, m, store, nil)

	snap, err := e.Capture(context.Background(), CaptureRequest{Name: "x", Session: "main"})
	if err != nil {
		t.Fatal(err)
	}
	cmd := *snap.Tabs[0].Panes[0].Command
	if !strings.Contains(cmd, "[REDACTED]") || strings.Contains(cmd, "sk-abc123") {
		t.Fatalf("secret survived capture: %q", cmd)
	}
}

func TestCaptureLayoutUnavailable(t *testing.T) {
	e := newTestEngine(t, &fakeMux{tree: nil}, &fakeSnapStore{}, nil)
	if _, err := e.Capture(context.Background(), CaptureRequest{Name: "x", Session: "main"}); err == nil {
		t.Fatal("expected error when introspection is unavailable")
	}
}

func TestCaptureIncrementalElidesUnchanged(t *testing.T) {
	m := &fakeMux{tree: devLayout(), contexts: devContexts()}
	store := &fakeSnapStore{}
	e := newTestEngine(t, m, store, nil)
	ctx := context.Background()

	base, err := e.Capture(ctx, CaptureRequest{Name: "base", Session: "main"})
	if err != nil {
		t.Fatal(err)
	}

	// Only the build pane changes command.
	m.contexts["build"] = &mux.PaneContext{Cwd: "/home/dev/api", Command: "make test"}
	inc, err := e.Capture(ctx, CaptureRequest{Name: "after", Session: "main", Incremental: true})
	if err != nil {
		t.Fatal(err)
	}
	if inc.ParentID != base.ID {
		t.Fatalf("parent id: got %q, want %q", inc.ParentID, base.ID)
	}
	// Topology always survives elision.
	if len(inc.Tabs) != 2 || inc.PaneCount != 4 {
		t.Fatalf("incremental must keep full topology: %+v", inc)
	}
	editor := inc.Tabs[0].Panes[0]
	if editor.Cwd != nil || editor.Command != nil || editor.Geometry != nil {
		t.Fatalf("unchanged fields must be elided: %+v", editor)
	}
	build := inc.Tabs[0].Panes[1]
	if build.Command == nil || *build.Command != "make test" {
		t.Fatalf("changed field must be kept: %+v", build.Command)
	}
	if build.Cwd != nil {
		t.Fatalf("unchanged cwd must be elided: %+v", build.Cwd)
	}
}

func TestMaterializeWalksChain(t *testing.T) {
	m := &fakeMux{tree: devLayout(), contexts: devContexts()}
	store := &fakeSnapStore{}
	e := newTestEngine(t, m, store, nil)
	ctx := context.Background()

	if _, err := e.Capture(ctx, CaptureRequest{Name: "base", Session: "main"}); err != nil {
		t.Fatal(err)
	}
	m.contexts["build"] = &mux.PaneContext{Cwd: "/home/dev/api", Command: "make test"}
	inc, err := e.Capture(ctx, CaptureRequest{Name: "after", Session: "main", Incremental: true})
	if err != nil {
		t.Fatal(err)
	}

	full, err := e.Materialize(ctx, inc)
	if err != nil {
		t.Fatal(err)
	}
	editor := full.Tabs[0].Panes[0]
	if editor.Cwd == nil || *editor.Cwd != "/home/dev/api" {
		t.Fatalf("materialize must fill elided cwd: %+v", editor)
	}
	if editor.Command == nil || *editor.Command != "nvim ." {
		t.Fatalf("materialize must fill elided command: %+v", editor)
	}
	build := full.Tabs[0].Panes[1]
	if build.Command == nil || *build.Command != "make test" {
		t.Fatalf("child value must win: %+v", build)
	}
}

func TestMaterializeBrokenChain(t *testing.T) {
	store := &fakeSnapStore{}
	e := NewEngine(store, &fakeMux{}, nil, EngineOptions{})

	snap := model.NewSessionSnapshot("orphan", "main")
	snap.ParentID = "no-such-id"
	if _, err := e.Materialize(context.Background(), &snap); err == nil {
		t.Fatal("expected error for missing parent")
	}
}

func TestMaterializeCycle(t *testing.T) {
	a := model.NewSessionSnapshot("a", "main")
	b := model.NewSessionSnapshot("b", "main")
	a.ParentID = b.ID
	b.ParentID = a.ID
	store := &fakeSnapStore{snaps: []*model.SessionSnapshot{&a, &b}}
	e := NewEngine(store, &fakeMux{}, nil, EngineOptions{})

	if _, err := e.Materialize(context.Background(), &a); err == nil {
		t.Fatal("expected cycle detection")
	}
}

func TestMaterializeEqualsFullCapture(t *testing.T) {
	m := &fakeMux{tree: devLayout(), contexts: devContexts()}
	store := &fakeSnapStore{}
	e := newTestEngine(t, m, store, nil)
	ctx := context.Background()

	if _, err := e.Capture(ctx, CaptureRequest{Name: "base", Session: "main"}); err != nil {
		t.Fatal(err)
	}
	m.contexts["build"] = &mux.PaneContext{Cwd: "/home/dev/api", Command: "make test"}
	inc, err := e.Capture(ctx, CaptureRequest{Name: "after", Session: "main", Incremental: true})
	if err != nil {
		t.Fatal(err)
	}
	materialized, err := e.Materialize(ctx, inc)
	if err != nil {
		t.Fatal(err)
	}
	full, err := e.Capture(ctx, CaptureRequest{Name: "plain", Session: "main"})
	if err != nil {
		t.Fatal(err)
	}

	// Identity and lineage differ between the two captures; everything
	// the restore path consumes must not.
	normalize := func(s *model.SessionSnapshot) *model.SessionSnapshot {
		out := cloneSnapshot(s)
		out.ID, out.Name, out.ParentID = "", "", ""
		out.CreatedAt = time.Time{}
		return out
	}
	if diff := cmp.Diff(normalize(full), normalize(materialized)); diff != "" {
		t.Fatalf("materialized incremental drifts from a full capture (-full +materialized):\n%s", diff)
	}
}

func TestMaterializeFullPassesThrough(t *testing.T) {
	m := &fakeMux{tree: devLayout(), contexts: devContexts()}
	store := &fakeSnapStore{}
	e := newTestEngine(t, m, store, nil)
	ctx := context.Background()

	snap, err := e.Capture(ctx, CaptureRequest{Name: "base", Session: "main"})
	if err != nil {
		t.Fatal(err)
	}
	full, err := e.Materialize(ctx, snap)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(snap, full); diff != "" {
		t.Fatalf("full snapshot must materialize unchanged:\n%s", diff)
	}
}
