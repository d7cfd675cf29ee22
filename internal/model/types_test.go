package model

import (
	"encoding/json"
	"testing"
)

func TestValidateMetaKeys(t *testing.T) {
	tests := []struct {
		name    string
		meta    map[string]string
		wantErr bool
	}{
		{name: "nil meta", meta: nil, wantErr: false},
		{name: "plain key", meta: map[string]string{"project": "api"}, wantErr: false},
		{name: "dotted key", meta: map[string]string{"ci.run": "42"}, wantErr: false},
		{name: "reserved key", meta: map[string]string{"session": "x"}, wantErr: true},
		{name: "reserved stale", meta: map[string]string{"stale": "true"}, wantErr: true},
		{name: "uppercase", meta: map[string]string{"Project": "api"}, wantErr: true},
		{name: "leading dash", meta: map[string]string{"-x": "y"}, wantErr: true},
		{name: "empty key", meta: map[string]string{"": "y"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetaKeys(tt.meta)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMetaKeys(%v) = %v, wantErr=%v", tt.meta, err, tt.wantErr)
			}
		})
	}
}

func TestTabRecordEffectiveName(t *testing.T) {
	tab := NewTabRecord("myapp(fixes)", "main")
	if got := tab.EffectiveName(); got != "myapp(fixes)" {
		t.Fatalf("effective name without correlation: got %q", got)
	}
	tab.CorrelationID = "pr-42"
	if got := tab.EffectiveName(); got != "myapp(fixes)-pr-42" {
		t.Fatalf("effective name with correlation: got %q", got)
	}
}

func TestPaneSnapshotOmitsNilFields(t *testing.T) {
	p := PaneSnapshot{Name: "minimal", Position: 0}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"cwd", "command", "geometry", "scroll", "focused", "branch", "worktree"} {
		if containsField(data, field) {
			t.Errorf("nil field %q should be omitted, got %s", field, data)
		}
	}
}

func containsField(data []byte, field string) bool {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	_, ok := m[field]
	return ok
}

func TestRestoreReportFailIsTerminal(t *testing.T) {
	r := RestoreReport{Status: RestoreSucceeded}

	r.Warn(RestoreWarning{Pane: "build", Kind: WarnCwdMissing})
	if r.Status != RestoreSucceeded {
		t.Fatalf("warnings must not fail a restore, got %s", r.Status)
	}

	r.Fail(RestoreError{Pane: "logs", Message: "pane creation rejected"})
	if r.Status != RestoreFailed {
		t.Fatalf("expected failed after fatal error, got %s", r.Status)
	}
	if len(r.Warnings) != 1 || len(r.Errors) != 1 {
		t.Fatalf("expected 1 warning and 1 error, got %d/%d", len(r.Warnings), len(r.Errors))
	}
}

func TestSessionSnapshotCountPanes(t *testing.T) {
	s := NewSessionSnapshot("pre-refactor", "main")
	s.Tabs = []TabSnapshot{
		{Name: "dev", Panes: []PaneSnapshot{{Name: "editor"}, {Name: "shell"}}},
		{Name: "monitoring", Panes: []PaneSnapshot{{Name: "logs"}}},
	}
	if got := s.CountPanes(); got != 3 {
		t.Fatalf("CountPanes: got %d, want 3", got)
	}
	if s.ID == "" || s.SchemaVersion != SchemaVersion {
		t.Fatalf("snapshot missing id or schema version: %+v", s)
	}
}
