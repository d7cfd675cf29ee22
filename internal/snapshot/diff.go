package snapshot

import (
	"fmt"

	"github.com/paneward/paneward/internal/model"
)

// FieldChange is one per-pane field that differs between two snapshots.
type FieldChange struct {
	Tab   string `json:"tab"`
	Pane  string `json:"pane"`
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// DiffReport lists the structural and per-pane differences between two
// snapshots. Both inputs must be materialized first.
type DiffReport struct {
	From         string        `json:"from"`
	To           string        `json:"to"`
	TabsAdded    []string      `json:"tabs_added,omitempty"`
	TabsRemoved  []string      `json:"tabs_removed,omitempty"`
	PanesAdded   []string      `json:"panes_added,omitempty"`
	PanesRemoved []string      `json:"panes_removed,omitempty"`
	Changes      []FieldChange `json:"changes,omitempty"`
}

// Empty reports whether the two snapshots describe the same workspace.
func (d *DiffReport) Empty() bool {
	return len(d.TabsAdded) == 0 && len(d.TabsRemoved) == 0 &&
		len(d.PanesAdded) == 0 && len(d.PanesRemoved) == 0 &&
		len(d.Changes) == 0
}

// Diff compares two materialized snapshots, from older to newer.
func Diff(from, to *model.SessionSnapshot) *DiffReport {
	report := &DiffReport{From: from.Name, To: to.Name}

	for ti := range to.Tabs {
		toTab := &to.Tabs[ti]
		fromTab := findTab(from, toTab.Name)
		if fromTab == nil {
			report.TabsAdded = append(report.TabsAdded, toTab.Name)
			for _, p := range toTab.Panes {
				report.PanesAdded = append(report.PanesAdded, paneRef(toTab.Name, p.Name))
			}
			continue
		}
		diffTab(report, fromTab, toTab)
	}
	for ti := range from.Tabs {
		fromTab := &from.Tabs[ti]
		if findTab(to, fromTab.Name) != nil {
			continue
		}
		report.TabsRemoved = append(report.TabsRemoved, fromTab.Name)
		for _, p := range fromTab.Panes {
			report.PanesRemoved = append(report.PanesRemoved, paneRef(fromTab.Name, p.Name))
		}
	}
	return report
}

func diffTab(report *DiffReport, fromTab, toTab *model.TabSnapshot) {
	for pi := range toTab.Panes {
		toPane := &toTab.Panes[pi]
		fromPane := findPane(fromTab, toPane.Name)
		if fromPane == nil {
			report.PanesAdded = append(report.PanesAdded, paneRef(toTab.Name, toPane.Name))
			continue
		}
		diffPane(report, toTab.Name, fromPane, toPane)
	}
	for pi := range fromTab.Panes {
		if findPane(toTab, fromTab.Panes[pi].Name) == nil {
			report.PanesRemoved = append(report.PanesRemoved, paneRef(fromTab.Name, fromTab.Panes[pi].Name))
		}
	}
}

func diffPane(report *DiffReport, tab string, from, to *model.PaneSnapshot) {
	change := func(field, a, b string) {
		if a != b {
			report.Changes = append(report.Changes, FieldChange{
				Tab: tab, Pane: to.Name, Field: field, From: a, To: b,
			})
		}
	}
	change("position", fmt.Sprint(from.Position), fmt.Sprint(to.Position))
	change("cwd", strOr(from.Cwd), strOr(to.Cwd))
	change("command", strOr(from.Command), strOr(to.Command))
	change("branch", strOr(from.Branch), strOr(to.Branch))
	change("worktree", strOr(from.Worktree), strOr(to.Worktree))
	change("geometry", geomOr(from.Geometry), geomOr(to.Geometry))
	change("scroll", intOr(from.Scroll), intOr(to.Scroll))
}

func paneRef(tab, pane string) string { return tab + "/" + pane }

func strOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func intOr(p *int) string {
	if p == nil {
		return ""
	}
	return fmt.Sprint(*p)
}

func geomOr(g *model.Geometry) string {
	if g == nil {
		return ""
	}
	return fmt.Sprintf("%.2fx%.2f", g.Width, g.Height)
}
