package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Daemon holds every counter/gauge/histogram the orchestrator updates.
// A nil *Daemon is valid: every method is a no-op, so callers never need
// to branch on whether metrics are enabled.
type Daemon struct {
	eventsEmitted   *prometheus.CounterVec
	batchesRead     prometheus.Counter
	corruptBatches  prometheus.Counter
	journalWraps    prometheus.Counter
	pendingFRNs     prometheus.Gauge
	resolverEntries prometheus.Gauge
	subscribers     prometheus.Gauge
	batchLatency    prometheus.Histogram
}

// NewDaemon creates and registers the daemon's metrics against reg. If
// reg is nil, NewDaemon returns nil — the zero value every method below
// treats as "do nothing".
func NewDaemon(reg *prometheus.Registry) *Daemon {
	if reg == nil {
		return nil
	}

	d := &Daemon{
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usnwatcher_events_emitted_total",
			Help: "Merged change events emitted, by reason token.",
		}, []string{"reason"}),
		batchesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usnwatcher_batches_read_total",
			Help: "Journal read batches processed.",
		}),
		corruptBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usnwatcher_corrupt_batches_total",
			Help: "Batches where record-walk validation stopped early.",
		}),
		journalWraps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usnwatcher_journal_wraps_total",
			Help: "Times the journal was found to have wrapped past the stored cursor.",
		}),
		pendingFRNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usnwatcher_coalescer_pending_frns",
			Help: "FRNs currently held in the coalescer awaiting flush.",
		}),
		resolverEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usnwatcher_resolver_entries",
			Help: "Entries currently held in the FRN-to-path map.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usnwatcher_pipe_subscribers",
			Help: "Named-pipe subscribers currently connected.",
		}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "usnwatcher_batch_read_seconds",
			Help:    "Time spent in a single ReadBatch IOCTL call.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		d.eventsEmitted,
		d.batchesRead,
		d.corruptBatches,
		d.journalWraps,
		d.pendingFRNs,
		d.resolverEntries,
		d.subscribers,
		d.batchLatency,
	)

	return d
}

func (d *Daemon) EventEmitted(reason string) {
	if d == nil {
		return
	}
	d.eventsEmitted.WithLabelValues(reason).Inc()
}

func (d *Daemon) BatchRead() {
	if d == nil {
		return
	}
	d.batchesRead.Inc()
}

func (d *Daemon) CorruptBatch() {
	if d == nil {
		return
	}
	d.corruptBatches.Inc()
}

func (d *Daemon) JournalWrapped() {
	if d == nil {
		return
	}
	d.journalWraps.Inc()
}

func (d *Daemon) SetPendingFRNs(n int) {
	if d == nil {
		return
	}
	d.pendingFRNs.Set(float64(n))
}

func (d *Daemon) SetResolverEntries(n int) {
	if d == nil {
		return
	}
	d.resolverEntries.Set(float64(n))
}

func (d *Daemon) SetSubscribers(n int) {
	if d == nil {
		return
	}
	d.subscribers.Set(float64(n))
}

func (d *Daemon) ObserveBatchLatency(seconds float64) {
	if d == nil {
		return
	}
	d.batchLatency.Observe(seconds)
}

// Handler returns the HTTP handler serving this registry's metrics in
// the Prometheus exposition format, for wiring into an http.ServeMux at
// the configured listen address.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
