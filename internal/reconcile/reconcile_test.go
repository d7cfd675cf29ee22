package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/paneward/paneward/internal/model"
	"github.com/paneward/paneward/internal/mux"
)

type fakeRecords struct {
	panes   []model.PaneRecord
	seen    []string
	stale   []string
	listErr error
}

func (f *fakeRecords) ListPanes(ctx context.Context, session string) ([]model.PaneRecord, error) {
	return f.panes, f.listErr
}

func (f *fakeRecords) MarkSeen(ctx context.Context, name string) error {
	f.seen = append(f.seen, name)
	return nil
}

func (f *fakeRecords) MarkStale(ctx context.Context, name string) error {
	f.stale = append(f.stale, name)
	return nil
}

type fakeLayout struct {
	tree *mux.LayoutTree
	err  error
}

func (f *fakeLayout) DumpLayout(ctx context.Context) (*mux.LayoutTree, error) {
	return f.tree, f.err
}

func layoutWith(panes ...string) *mux.LayoutTree {
	tab := mux.LayoutTab{Name: "dev"}
	for _, p := range panes {
		tab.Panes = append(tab.Panes, mux.LayoutPane{Name: p})
	}
	return &mux.LayoutTree{Tabs: []mux.LayoutTab{tab}}
}

func records(names ...string) []model.PaneRecord {
	var recs []model.PaneRecord
	for i, n := range names {
		recs = append(recs, model.NewPaneRecord(n, "main", "dev", i, nil))
	}
	return recs
}

func TestRunConfirmsAndFlags(t *testing.T) {
	store := &fakeRecords{panes: records("editor", "build", "logs")}
	r := New(store, &fakeLayout{tree: layoutWith("editor", "logs")}, nil)

	res, err := r.Run(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}
	want := model.ReconcileResult{Session: "main", Checked: 3, Confirmed: 2, Stale: 1}
	if res != want {
		t.Fatalf("got %+v, want %+v", res, want)
	}
	if len(store.seen) != 2 || len(store.stale) != 1 || store.stale[0] != "build" {
		t.Fatalf("store calls: seen=%v stale=%v", store.seen, store.stale)
	}
}

func TestRunSkipsOtherSessions(t *testing.T) {
	recs := records("editor", "build")
	recs = append(recs, model.NewPaneRecord("scratch", "side", "misc", 0, nil))
	store := &fakeRecords{panes: recs}
	r := New(store, &fakeLayout{tree: layoutWith("editor", "build")}, nil)

	res, err := r.Run(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}
	want := model.ReconcileResult{Session: "main", Checked: 2, Confirmed: 2, Skipped: 1}
	if res != want {
		t.Fatalf("got %+v, want %+v", res, want)
	}
	for _, n := range append(store.seen, store.stale...) {
		if n == "scratch" {
			t.Fatal("other-session record must not be touched")
		}
	}
}

func TestRunUnavailableLayoutSkipsAll(t *testing.T) {
	store := &fakeRecords{panes: records("editor", "build")}
	r := New(store, &fakeLayout{tree: nil}, nil)

	res, err := r.Run(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 2 || res.Stale != 0 || res.Confirmed != 0 || !res.LayoutUnavailable {
		t.Fatalf("unavailable layout must skip everything: %+v", res)
	}
	if len(store.seen) != 0 || len(store.stale) != 0 {
		t.Fatal("no record may be touched when the layout is unavailable")
	}
}

func TestRunRevivesStaleRecord(t *testing.T) {
	recs := records("editor")
	recs[0].Stale = true
	store := &fakeRecords{panes: recs}
	r := New(store, &fakeLayout{tree: layoutWith("editor")}, nil)

	res, err := r.Run(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if res.Confirmed != 1 || res.Stale != 0 {
		t.Fatalf("reappeared pane must be confirmed: %+v", res)
	}
	if len(store.seen) != 1 {
		t.Fatalf("expected mark seen, got %v", store.seen)
	}
}

func TestRunEmptyStore(t *testing.T) {
	r := New(&fakeRecords{}, &fakeLayout{tree: layoutWith("editor")}, nil)
	res, err := r.Run(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if res.Checked != 0 {
		t.Fatalf("got %+v", res)
	}
}

func TestRunPropagatesErrors(t *testing.T) {
	listErr := errors.New("boom")
	r := New(&fakeRecords{listErr: listErr}, &fakeLayout{}, nil)
	if _, err := r.Run(context.Background(), "main"); !errors.Is(err, listErr) {
		t.Fatalf("want list error, got %v", err)
	}

	dumpErr := errors.New("zellij exploded")
	r = New(&fakeRecords{panes: records("editor")}, &fakeLayout{err: dumpErr}, nil)
	if _, err := r.Run(context.Background(), "main"); !errors.Is(err, dumpErr) {
		t.Fatalf("want dump error, got %v", err)
	}
}
