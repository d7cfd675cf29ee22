// Package model defines the shadow-state records and snapshot types shared
// by the store, the reconciler, and the snapshot engine.
//
// Records are the durable authority for workspace structure. They are never
// auto-deleted: a record whose pane no longer appears live is marked stale
// and kept for forensic use.
package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion identifies the persisted snapshot schema.
const SchemaVersion = "1.0.0"

// UnnamedPane is the placeholder for panes the multiplexer reports without
// a name.
const UnnamedPane = "unnamed"

// CurrentTab marks a pane record created without a target tab: the pane
// lives in whatever tab was active at creation. Opening such a record never
// switches tabs.
const CurrentTab = "current"

// PaneRecord tracks a single named pane. Name is unique per session.
// Position is a creation-time hint (the pane count in the target tab when
// the pane was created), not a stable multiplexer identifier: it does not
// survive manual layout edits.
type PaneRecord struct {
	Name         string            `json:"name"`
	Session      string            `json:"session"`
	Tab          string            `json:"tab"`
	Position     int               `json:"position"`
	CreatedAt    time.Time         `json:"created_at"`
	LastSeen     time.Time         `json:"last_seen"`
	LastAccessed time.Time         `json:"last_accessed"`
	Stale        bool              `json:"stale"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// NewPaneRecord creates a record with all timestamps set to now.
func NewPaneRecord(name, session, tab string, position int, meta map[string]string) PaneRecord {
	now := time.Now().UTC()
	return PaneRecord{
		Name:         name,
		Session:      session,
		Tab:          tab,
		Position:     position,
		CreatedAt:    now,
		LastSeen:     now,
		LastAccessed: now,
		Meta:         meta,
	}
}

// TabRecord tracks a tab, optionally carrying a correlation identifier for
// event traceability.
type TabRecord struct {
	Name          string            `json:"name"`
	Session       string            `json:"session"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastAccessed  time.Time         `json:"last_accessed"`
	Meta          map[string]string `json:"meta,omitempty"`
}

// NewTabRecord creates a tab record with timestamps set to now.
func NewTabRecord(name, session string) TabRecord {
	now := time.Now().UTC()
	return TabRecord{
		Name:         name,
		Session:      session,
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// EffectiveName returns the tab name with the correlation ID suffix applied.
func (t TabRecord) EffectiveName() string {
	if t.CorrelationID == "" {
		return t.Name
	}
	return t.Name + "-" + t.CorrelationID
}

// reservedMetaKeys are hash field names the store uses for scalar record
// fields. User metadata may not collide with them.
var reservedMetaKeys = map[string]bool{
	"name": true, "session": true, "tab": true, "position": true,
	"created_at": true, "last_seen": true, "last_accessed": true,
	"stale": true, "correlation_id": true,
}

var metaKeyRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// ValidateMetaKeys rejects metadata keys that would collide with reserved
// record fields or that fall outside the allowed key format.
func ValidateMetaKeys(meta map[string]string) error {
	for k := range meta {
		if reservedMetaKeys[k] {
			return fmt.Errorf("metadata key %q is reserved", k)
		}
		if !metaKeyRe.MatchString(k) {
			return fmt.Errorf("invalid metadata key %q (want %s)", k, metaKeyRe.String())
		}
	}
	return nil
}

// Geometry is a pane's footprint as fractions of the tab area, so a snapshot
// restores faithfully across terminal sizes.
type Geometry struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PaneSnapshot captures one pane for restoration. All diffable fields are
// pointers: in an incremental snapshot a nil field means "unchanged from the
// parent snapshot".
type PaneSnapshot struct {
	Name     string    `json:"name"`
	Position int       `json:"position"`
	Geometry *Geometry `json:"geometry,omitempty"`
	Cwd      *string   `json:"cwd,omitempty"`
	Command  *string   `json:"command,omitempty"`
	Scroll   *int      `json:"scroll,omitempty"`
	Focused  *bool     `json:"focused,omitempty"`
	Branch   *string   `json:"branch,omitempty"`
	Worktree *string   `json:"worktree,omitempty"`
}

// TabSnapshot captures one tab and its panes in position order.
type TabSnapshot struct {
	Name          string         `json:"name"`
	Position      int            `json:"position"`
	Active        bool           `json:"active,omitempty"`
	Layout        string         `json:"layout,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Panes         []PaneSnapshot `json:"panes"`
}

// SessionSnapshot is the top-level capture of a session. ParentID is set iff
// the snapshot is incremental; children always enumerate the full topology
// (tab and pane names plus positions) and elide only per-pane fields, so
// materializing is a single forward walk of the parent chain.
type SessionSnapshot struct {
	SchemaVersion string        `json:"schema_version"`
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Session       string        `json:"session"`
	CreatedAt     time.Time     `json:"created_at"`
	Description   string        `json:"description,omitempty"`
	ParentID      string        `json:"parent_id,omitempty"`
	Tabs          []TabSnapshot `json:"tabs"`
	PaneCount     int           `json:"pane_count"`
}

// NewSessionSnapshot creates an empty snapshot with a fresh ID.
func NewSessionSnapshot(name, session string) SessionSnapshot {
	return SessionSnapshot{
		SchemaVersion: SchemaVersion,
		ID:            uuid.NewString(),
		Name:          name,
		Session:       session,
		CreatedAt:     time.Now().UTC(),
	}
}

// CountPanes recomputes PaneCount from the tab list.
func (s *SessionSnapshot) CountPanes() int {
	n := 0
	for _, t := range s.Tabs {
		n += len(t.Panes)
	}
	return n
}

// Restore warning kinds. Warnings report fidelity loss; they never fail a
// restore.
const (
	WarnCwdMissing         = "cwd_missing"
	WarnCommandUnavailable = "command_unavailable"
	WarnNameCollision      = "name_collision"
	WarnTabExists          = "tab_exists"
	WarnUnnamedPane        = "unnamed_pane"
)

// RestoreWarning records one fidelity loss: which pane, what kind of issue,
// and the fallback that was taken.
type RestoreWarning struct {
	Tab      string `json:"tab,omitempty"`
	Pane     string `json:"pane,omitempty"`
	Kind     string `json:"kind"`
	Fallback string `json:"fallback,omitempty"`
	Message  string `json:"message"`
}

// RestoreError records one tab or pane that could not be restored at all.
// Errors accumulate; they never abort sibling restores.
type RestoreError struct {
	Tab     string `json:"tab,omitempty"`
	Pane    string `json:"pane,omitempty"`
	Message string `json:"message"`
}

// RestoreStatus is a terminal state of a restore run.
type RestoreStatus string

const (
	RestoreSucceeded RestoreStatus = "succeeded"
	RestoreFailed    RestoreStatus = "failed"
)

// RestoreReport is the outcome of a restore (or dry run). A warnings-only
// outcome is a successful restore.
type RestoreReport struct {
	SnapshotID    string           `json:"snapshot_id"`
	SnapshotName  string           `json:"snapshot_name"`
	Session       string           `json:"session"`
	DryRun        bool             `json:"dry_run,omitempty"`
	Status        RestoreStatus    `json:"status"`
	TabsRestored  int              `json:"tabs_restored"`
	PanesRestored int              `json:"panes_restored"`
	PanesSkipped  int              `json:"panes_skipped"`
	Warnings      []RestoreWarning `json:"warnings,omitempty"`
	Errors        []RestoreError   `json:"errors,omitempty"`
	Duration      time.Duration    `json:"duration_ns"`
}

// Warn appends a fidelity warning.
func (r *RestoreReport) Warn(w RestoreWarning) {
	r.Warnings = append(r.Warnings, w)
}

// Fail appends a fatal per-item error and marks the report failed.
func (r *RestoreReport) Fail(e RestoreError) {
	r.Errors = append(r.Errors, e)
	r.Status = RestoreFailed
}

// ReconcileResult summarizes one reconciliation run. LayoutUnavailable is
// set when the multiplexer could not report its layout and the session's
// records were skipped wholesale.
type ReconcileResult struct {
	Session           string `json:"session"`
	Checked           int    `json:"checked"`
	Confirmed         int    `json:"confirmed"`
	Stale             int    `json:"stale"`
	Skipped           int    `json:"skipped"`
	LayoutUnavailable bool   `json:"layout_unavailable,omitempty"`
}
