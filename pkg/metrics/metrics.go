// Package metrics records pipeline counters in a per-run Prometheus
// registry and exports them as a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentstation/clinmap/pkg/consequence"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/reconcile"
)

const namespace = "clinmap"

// Recorder implements consequence.Observer and summarizes run results.
type Recorder struct {
	registry *prometheus.Registry

	batchesDispatched prometheus.Counter
	batchesRetried    prometheus.Counter
	batchesFailed     prometheus.Counter
	annotateSeconds   prometheus.Histogram

	variants *prometheus.GaugeVec
	rows     *prometheus.GaugeVec

	runDuration *prometheus.GaugeVec
	runSuccess  *prometheus.GaugeVec
	runLast     *prometheus.GaugeVec
}

var _ consequence.Observer = (*Recorder)(nil)

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		batchesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consequences", Name: "batches_dispatched_total",
			Help: "Annotator invocations, retries included.",
		}),
		batchesRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consequences", Name: "batches_retried_total",
			Help: "Annotator invocations that were retries of a failed attempt.",
		}),
		batchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consequences", Name: "batches_failed_total",
			Help: "Batches that exhausted their retries.",
		}),
		annotateSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "consequences", Name: "annotate_duration_seconds",
			Help:    "Wall time of a single annotator invocation.",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 9),
		}),
		variants: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "consequences", Name: "variants",
			Help: "Distinct variants by outcome in the last run.",
		}, []string{"state"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "reconcile", Name: "rows",
			Help: "Mapping rows by role in the last reconciliation.",
		}, []string{"kind"}),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help: "Duration of the last run.",
		}, []string{"pipeline"}),
		runSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_success",
			Help: "1 if the last run succeeded, 0 otherwise.",
		}, []string{"pipeline"}),
		runLast: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_last_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}, []string{"pipeline"}),
	}
	r.registry.MustRegister(
		r.batchesDispatched, r.batchesRetried, r.batchesFailed, r.annotateSeconds,
		r.variants, r.rows, r.runDuration, r.runSuccess, r.runLast,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// BatchDispatched implements consequence.Observer.
func (r *Recorder) BatchDispatched() { r.batchesDispatched.Inc() }

// BatchRetried implements consequence.Observer.
func (r *Recorder) BatchRetried() { r.batchesRetried.Inc() }

// BatchFailed implements consequence.Observer.
func (r *Recorder) BatchFailed() { r.batchesFailed.Inc() }

// AnnotateDuration implements consequence.Observer.
func (r *Recorder) AnnotateDuration(d time.Duration) { r.annotateSeconds.Observe(d.Seconds()) }

// ObserveConsequences records the variant outcome counts of a mapper run.
func (r *Recorder) ObserveConsequences(res *consequence.Result) {
	if res == nil {
		return
	}
	s := res.Metadata.Stats
	r.variants.WithLabelValues("annotated").Set(float64(s.Annotated))
	r.variants.WithLabelValues("unresolved").Set(float64(s.Unresolved))
	r.variants.WithLabelValues("dropped").Set(float64(s.Dropped))
}

// ObserveReconcile records the row counts of a reconciliation.
func (r *Recorder) ObserveReconcile(res *reconcile.Result) {
	if res == nil {
		return
	}
	s := res.Metadata.Stats
	r.rows.WithLabelValues("current").Set(float64(s.CurrentRows))
	r.rows.WithLabelValues("baseline").Set(float64(s.BaselineRows))
	r.rows.WithLabelValues("carried_forward").Set(float64(s.CarriedForward))
	r.rows.WithLabelValues("retained").Set(float64(s.Retained))
	r.rows.WithLabelValues("merged").Set(float64(s.MergedRows))
	r.rows.WithLabelValues("orphan_traits").Set(float64(s.OrphanTraits))
	r.rows.WithLabelValues("multi_mapped_traits").Set(float64(s.MultiMapped))
}

// RunFinished records the outcome of a pipeline run.
func (r *Recorder) RunFinished(pipeline string, started time.Time, runErr error) {
	now := time.Now()
	r.runDuration.WithLabelValues(pipeline).Set(now.Sub(started).Seconds())
	success := 1.0
	if runErr != nil {
		success = 0
	}
	r.runSuccess.WithLabelValues(pipeline).Set(success)
	r.runLast.WithLabelValues(pipeline).Set(float64(now.Unix()))
}

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
