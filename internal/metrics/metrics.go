// Package metrics exposes Prometheus counters for ingestion runs.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pfinance-dev/pfinance/internal/rates"
)

const namespace = "pfinance"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	Registry *prometheus.Registry

	// FilesIngested counts uploads by kind and outcome (ok, skipped, failed).
	FilesIngested *prometheus.CounterVec
	// Transactions counts parsed records by kind and result (added,
	// duplicate, skipped, filtered).
	Transactions *prometheus.CounterVec
	// LedgerRows is the ledger size after the last save.
	LedgerRows prometheus.Gauge
	// RateLookups counts exchange-rate fetches by result.
	RateLookups *prometheus.CounterVec
	// RateLatency observes exchange-rate fetch duration.
	RateLatency prometheus.Histogram
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := NewWith(reg)
	m.Registry = reg
	return m
}

// NewWith registers the collectors on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FilesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Uploaded files processed, by kind and status.",
		}, []string{"kind", "status"}),
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "transactions_total",
			Help:      "Statement records seen, by kind and result.",
		}, []string{"kind", "result"}),
		LedgerRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rows",
			Help:      "Transactions in the ledger after the last save.",
		}),
		RateLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rates",
			Name:      "lookups_total",
			Help:      "Exchange-rate lookups, by result.",
		}, []string{"result"}),
		RateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rates",
			Name:      "lookup_seconds",
			Help:      "Exchange-rate lookup duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// Rates wraps p so every lookup is counted and timed.
func (m *Metrics) Rates(p rates.Provider) rates.Provider {
	return &instrumentedRates{next: p, m: m}
}

type instrumentedRates struct {
	next rates.Provider
	m    *Metrics
}

func (r *instrumentedRates) Quote(ctx context.Context, pair string) (rates.Quote, error) {
	start := time.Now()
	q, err := r.next.Quote(ctx, pair)
	r.m.RateLatency.Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	}
	r.m.RateLookups.WithLabelValues(result).Inc()
	return q, err
}
