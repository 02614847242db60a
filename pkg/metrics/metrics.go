// Package metrics records sync run metrics for the Prometheus node exporter
// textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/importer"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/ledger"
)

const namespace = "tricount_sync"

// Recorder holds the metrics of one run on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	records          *prometheus.CounterVec
	ledgerEntries    prometheus.Gauge
	ledgerPruned     prometheus.Counter
	reconcilePages   prometheus.Gauge
	reconcilePartial prometheus.Gauge
	categoriesCached prometheus.Gauge
	lastRun          prometheus.Gauge
	runDuration      prometheus.Gauge
}

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		registry: reg,
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records processed by outcome.",
		}, []string{"outcome"}),
		ledgerEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries",
			Help:      "Entries in the dedup ledger after the run.",
		}),
		ledgerPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "pruned_total",
			Help:      "Ledger entries removed by the retention window.",
		}),
		reconcilePages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "pages",
			Help:      "Firefly III transaction pages read while reconciling.",
		}),
		reconcilePartial: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "partial",
			Help:      "1 when reconciliation stopped early.",
		}),
		categoriesCached: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "categories_resolved",
			Help:      "Distinct category names resolved during the run.",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}

	// Expose every outcome, even at zero.
	for _, o := range []importer.Outcome{importer.Imported, importer.Skipped, importer.Errored} {
		r.records.WithLabelValues(string(o))
	}
	return r
}

// Registry returns the registry holding the run metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveReconcile records the reconciliation scan.
func (r *Recorder) ObserveReconcile(result ledger.ReconcileResult) {
	r.reconcilePages.Set(float64(result.Pages))
	if result.Partial || result.Capped {
		r.reconcilePartial.Set(1)
	} else {
		r.reconcilePartial.Set(0)
	}
}

// ObserveReport records the import outcomes.
func (r *Recorder) ObserveReport(report importer.Report) {
	r.records.WithLabelValues(string(importer.Imported)).Add(float64(report.Imported))
	r.records.WithLabelValues(string(importer.Skipped)).Add(float64(report.Skipped))
	r.records.WithLabelValues(string(importer.Errored)).Add(float64(report.Errored))
	r.ledgerPruned.Add(float64(report.Pruned))
}

// SetLedgerSize records the ledger size.
func (r *Recorder) SetLedgerSize(entries int) {
	r.ledgerEntries.Set(float64(entries))
}

// SetCategoriesResolved records the category cache size.
func (r *Recorder) SetCategoriesResolved(n int) {
	r.categoriesCached.Set(float64(n))
}

// Finish records the run end time and duration.
func (r *Recorder) Finish(started, finished time.Time) {
	r.lastRun.Set(float64(finished.Unix()))
	r.runDuration.Set(finished.Sub(started).Seconds())
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
