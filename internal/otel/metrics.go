package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/paneward/paneward/internal/model"
)

const meterName = "paneward"

// Metrics holds all OTEL metric instruments for paneward.
// All counters are cumulative (monotonic) and safe for concurrent use.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Navigation counters (partitioned by outcome: opened, created, recovered)
	PaneOpens metric.Int64Counter
	TabOpens  metric.Int64Counter

	// Reconciliation counters
	ReconcileRuns    metric.Int64Counter
	ReconcileChecked metric.Int64Counter
	ReconcileStale   metric.Int64Counter
	ReconcileSkipped metric.Int64Counter

	// Snapshot counters
	SnapshotsCreated  metric.Int64Counter
	SnapshotsRestored metric.Int64Counter
	RestoreWarnings   metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PaneOpens, err = meter.Int64Counter("panes.opens",
		metric.WithDescription("Pane open operations partitioned by outcome (opened, created, recovered)"))
	if err != nil {
		return nil, err
	}

	m.TabOpens, err = meter.Int64Counter("tabs.opens",
		metric.WithDescription("Tab open operations partitioned by outcome (opened, created)"))
	if err != nil {
		return nil, err
	}

	m.ReconcileRuns, err = meter.Int64Counter("reconcile.runs",
		metric.WithDescription("Reconciliation runs"))
	if err != nil {
		return nil, err
	}

	m.ReconcileChecked, err = meter.Int64Counter("reconcile.checked",
		metric.WithDescription("Pane records checked during reconciliation"))
	if err != nil {
		return nil, err
	}

	m.ReconcileStale, err = meter.Int64Counter("reconcile.stale",
		metric.WithDescription("Pane records marked stale during reconciliation"))
	if err != nil {
		return nil, err
	}

	m.ReconcileSkipped, err = meter.Int64Counter("reconcile.skipped",
		metric.WithDescription("Pane records skipped because layout introspection was unavailable"))
	if err != nil {
		return nil, err
	}

	m.SnapshotsCreated, err = meter.Int64Counter("snapshots.created",
		metric.WithDescription("Snapshots captured, partitioned by kind (full, incremental)"))
	if err != nil {
		return nil, err
	}

	m.SnapshotsRestored, err = meter.Int64Counter("snapshots.restored",
		metric.WithDescription("Snapshot restores, partitioned by status"))
	if err != nil {
		return nil, err
	}

	m.RestoreWarnings, err = meter.Int64Counter("restore.warnings",
		metric.WithDescription("Fidelity warnings emitted during restores, partitioned by kind"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordPaneOpen records one pane open with its outcome.
func (m *Metrics) RecordPaneOpen(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.PaneOpens.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordTabOpen records one tab open with its outcome.
func (m *Metrics) RecordTabOpen(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.TabOpens.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordReconcile records the counters of one reconciliation run.
func (m *Metrics) RecordReconcile(ctx context.Context, res model.ReconcileResult) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("session", res.Session))
	m.ReconcileRuns.Add(ctx, 1, attrs)
	m.ReconcileChecked.Add(ctx, int64(res.Checked), attrs)
	m.ReconcileStale.Add(ctx, int64(res.Stale), attrs)
	m.ReconcileSkipped.Add(ctx, int64(res.Skipped), attrs)
}

// RecordSnapshot records one snapshot capture.
func (m *Metrics) RecordSnapshot(ctx context.Context, incremental bool) {
	if m == nil {
		return
	}
	kind := "full"
	if incremental {
		kind = "incremental"
	}
	m.SnapshotsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordRestore records one restore outcome and its warnings.
func (m *Metrics) RecordRestore(ctx context.Context, report *model.RestoreReport) {
	if m == nil {
		return
	}
	m.SnapshotsRestored.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(report.Status)),
		attribute.Bool("dry_run", report.DryRun),
	))
	for _, w := range report.Warnings {
		m.RestoreWarnings.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", w.Kind),
		))
	}
}
