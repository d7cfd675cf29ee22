package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/paneward/paneward/internal/model"
)

func testStore(t *testing.T, opts Options) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	opts.URL = "redis://" + mr.Addr()
	s, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPaneRecordRoundTrip(t *testing.T) {
	s := testStore(t, Options{})
	ctx := context.Background()

	rec := model.NewPaneRecord("build", "main", "dev", 2, map[string]string{"project": "api"})
	if err := s.PutPane(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPane(ctx, "build")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.Session != "main" || got.Tab != "dev" || got.Position != 2 || got.Stale {
		t.Fatalf("record mismatch: %+v", got)
	}
	if got.Meta["project"] != "api" {
		t.Fatalf("meta not round-tripped: %v", got.Meta)
	}
	if got.CreatedAt.IsZero() || got.LastSeen.IsZero() {
		t.Fatalf("timestamps not round-tripped: %+v", got)
	}
}

func TestGetPaneMissingIsNil(t *testing.T) {
	s := testStore(t, Options{})
	got, err := s.GetPane(context.Background(), "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("missing pane should be nil, got %+v", got)
	}
}

func TestPutPaneIdempotent(t *testing.T) {
	s := testStore(t, Options{})
	ctx := context.Background()

	rec := model.NewPaneRecord("build", "main", "dev", 0, nil)
	for i := 0; i < 3; i++ {
		if err := s.PutPane(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	names, err := s.ListPaneNames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 {
		t.Fatalf("repeated puts must yield one record, got %v", names)
	}
}

func TestStaleLifecycle(t *testing.T) {
	s := testStore(t, Options{})
	ctx := context.Background()

	rec := model.NewPaneRecord("build", "main", "dev", 0, nil)
	if err := s.PutPane(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkStale(ctx, "build"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetPane(ctx, "build")
	if got == nil || !got.Stale {
		t.Fatalf("expected stale record, got %+v", got)
	}

	if err := s.MarkSeen(ctx, "build"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetPane(ctx, "build")
	if got == nil || got.Stale {
		t.Fatalf("mark seen must clear staleness: %+v", got)
	}
}

func TestTouchPaneMergesMeta(t *testing.T) {
	s := testStore(t, Options{})
	ctx := context.Background()

	rec := model.NewPaneRecord("build", "main", "dev", 0, map[string]string{"a": "1"})
	if err := s.PutPane(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.TouchPane(ctx, "build", map[string]string{"b": "2"}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetPane(ctx, "build")
	if got.Meta["a"] != "1" || got.Meta["b"] != "2" {
		t.Fatalf("touch must merge, not replace: %v", got.Meta)
	}
}

func TestListPanesSessionFilter(t *testing.T) {
	s := testStore(t, Options{})
	ctx := context.Background()

	for i, sess := range []string{"main", "main", "other"} {
		rec := model.NewPaneRecord(fmt.Sprintf("p%d", i), sess, "dev", i, nil)
		if err := s.PutPane(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := s.ListPanes(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("session filter: got %d records, want 2", len(recs))
	}
	all, err := s.ListPanes(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("unfiltered: got %d records, want 3", len(all))
	}
}

func TestTabRecordRoundTrip(t *testing.T) {
	s := testStore(t, Options{})
	ctx := context.Background()

	rec := model.NewTabRecord("monitoring", "main")
	rec.CorrelationID = "pr-42"
	rec.Meta = map[string]string{"priority": "high"}
	if err := s.PutTab(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetTab(ctx, "monitoring")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Session != "main" || got.CorrelationID != "pr-42" {
		t.Fatalf("tab mismatch: %+v", got)
	}
	if got.Meta["priority"] != "high" {
		t.Fatalf("tab meta: %v", got.Meta)
	}
}

func sampleSnapshot(name, session string) *model.SessionSnapshot {
	snap := model.NewSessionSnapshot(name, session)
	cwd := "/home/dev/project"
	cmd := "make watch"
	snap.Tabs = []model.TabSnapshot{{
		Name:     "dev",
		Position: 0,
		Active:   true,
		Panes: []model.PaneSnapshot{
			{Name: "editor", Position: 0, Cwd: &cwd},
			{Name: "watch", Position: 1, Cwd: &cwd, Command: &cmd},
		},
	}}
	snap.PaneCount = snap.CountPanes()
	return &snap
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := testStore(t, Options{})
	ctx := context.Background()

	snap := sampleSnapshot("pre-refactor", "main")
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSnapshot(ctx, "main", "pre-refactor")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != snap.ID || len(got.Tabs) != 1 || got.PaneCount != 2 {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
	if *got.Tabs[0].Panes[1].Command != "make watch" {
		t.Fatalf("pane command lost: %+v", got.Tabs[0].Panes[1])
	}

	latest, err := s.LatestSnapshotName(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if latest != "pre-refactor" {
		t.Fatalf("latest pointer: got %q", latest)
	}
}

func TestSnapshotCompression(t *testing.T) {
	// Force compression with a tiny threshold.
	s := testStore(t, Options{CompressAt: 10})
	ctx := context.Background()

	snap := sampleSnapshot("big", "main")
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatal(err)
	}
	infos, err := s.ListSnapshots(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || !infos[0].Compressed {
		t.Fatalf("expected compressed snapshot metadata, got %+v", infos)
	}
	got, err := s.GetSnapshot(ctx, "main", "big")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != snap.ID {
		t.Fatalf("compressed round trip failed: %+v", got)
	}
}

func TestSnapshotRetentionPrunesOldest(t *testing.T) {
	s := testStore(t, Options{Retention: 2})
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three"} {
		if err := s.SaveSnapshot(ctx, sampleSnapshot(name, "main")); err != nil {
			t.Fatal(err)
		}
	}
	infos, err := s.ListSnapshots(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("retention: got %d snapshots, want 2", len(infos))
	}
	if infos[0].Name != "two" || infos[1].Name != "three" {
		t.Fatalf("oldest must be pruned first: %+v", infos)
	}
	if got, _ := s.GetSnapshot(ctx, "main", "one"); got != nil {
		t.Fatal("pruned snapshot body should be gone")
	}
}

func TestSnapshotReservedNames(t *testing.T) {
	s := testStore(t, Options{})
	for _, name := range []string{"index", "latest", ""} {
		snap := sampleSnapshot("x", "main")
		snap.Name = name
		if err := s.SaveSnapshot(context.Background(), snap); err == nil {
			t.Errorf("expected rejection for reserved name %q", name)
		}
	}
}

func TestDeleteSnapshotRepointsLatest(t *testing.T) {
	s := testStore(t, Options{})
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, sampleSnapshot("one", "main")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot(ctx, sampleSnapshot("two", "main")); err != nil {
		t.Fatal(err)
	}

	removed, err := s.DeleteSnapshot(ctx, "main", "two")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("expected deletion")
	}
	latest, _ := s.LatestSnapshotName(ctx, "main")
	if latest != "one" {
		t.Fatalf("latest should repoint to %q, got %q", "one", latest)
	}

	if _, err := s.DeleteSnapshot(ctx, "main", "one"); err != nil {
		t.Fatal(err)
	}
	latest, _ = s.LatestSnapshotName(ctx, "main")
	if latest != "" {
		t.Fatalf("latest should clear when no snapshots remain, got %q", latest)
	}
}

func TestGetSnapshotByID(t *testing.T) {
	s := testStore(t, Options{})
	ctx := context.Background()

	snap := sampleSnapshot("one", "main")
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSnapshotByID(ctx, "main", snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "one" {
		t.Fatalf("lookup by id: %+v", got)
	}
	missing, err := s.GetSnapshotByID(ctx, "main", "no-such-id")
	if err != nil || missing != nil {
		t.Fatalf("unknown id should be nil, got %+v err %v", missing, err)
	}
}

func TestStoreUnreachableIsFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(Options{URL: "redis://" + mr.Addr(), Timeout: 500 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	mr.Close()

	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping failure against closed store")
	}
	_, err = s.GetPane(context.Background(), "build")
	if err == nil {
		t.Fatal("expected unavailable error")
	}
}
