package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Error codes attached to ErrorsTotal.
const (
	CodeGcpQuery          = "GcpQueryError"
	CodeGcpQueryJobCreate = "GcpQueryJobCreateError"
	CodeGcpMapping        = "GcpMappingError"
	CodeBatchProcessing   = "BatchProcessingError"
	CodePersistence       = "PersistenceError"
	CodeDBConnection      = "DbConnectionError"
	CodeJobExecution      = "JobExecutionError"
)

// Registry holds the collectors of one process. All methods are safe on a
// nil *Registry, which records nothing.
type Registry struct {
	reg *prometheus.Registry

	FetchRows             prometheus.Counter
	PersistedTransactions prometheus.Counter
	DuplicateTransactions prometheus.Counter
	PageFetchSec          prometheus.Histogram
	BatchProcessingSec    prometheus.Histogram
	PersistenceSec        prometheus.Histogram
	JobDurationSec        prometheus.Gauge
	ErrorsTotal           *prometheus.CounterVec
}

// NewRegistry creates a Registry with every collector registered on a private registry.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	fetchRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promo_fetch_rows_total",
		Help: "Transaction details fetched from the warehouse.",
	})
	persisted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promo_persisted_transactions_total",
		Help: "Transactions written to the relational store.",
	})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promo_duplicate_transactions_total",
		Help: "Fetched transactions skipped because they were already stored.",
	})
	pageFetch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "promo_page_fetch_seconds",
		Help:    "Time to fetch and decode one page.",
		Buckets: prometheus.DefBuckets,
	})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "promo_batch_processing_seconds",
		Help:    "Time to process one page on the worker pool.",
		Buckets: prometheus.DefBuckets,
	})
	persistence := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "promo_persistence_seconds",
		Help:    "Time spent in one bulk write.",
		Buckets: prometheus.DefBuckets,
	})
	jobDuration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "promo_job_duration_seconds",
		Help: "Wall time of the last run.",
	})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_errors_total",
		Help: "Errors by code.",
	}, []string{"code"})

	r.MustRegister(fetchRows, persisted, duplicates, pageFetch, batch, persistence, jobDuration, errorsTotal)
	return &Registry{
		reg:                   r,
		FetchRows:             fetchRows,
		PersistedTransactions: persisted,
		DuplicateTransactions: duplicates,
		PageFetchSec:          pageFetch,
		BatchProcessingSec:    batch,
		PersistenceSec:        persistence,
		JobDurationSec:        jobDuration,
		ErrorsTotal:           errorsTotal,
	}
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObservePageFetch records the latency of one page fetch and the rows it returned.
func (r *Registry) ObservePageFetch(d time.Duration, rows int) {
	if r == nil {
		return
	}
	r.PageFetchSec.Observe(d.Seconds())
	r.FetchRows.Add(float64(rows))
}

// ObserveBatch records the time one page spent on the worker pool.
func (r *Registry) ObserveBatch(d time.Duration) {
	if r == nil {
		return
	}
	r.BatchProcessingSec.Observe(d.Seconds())
}

// ObservePersistence records one bulk write and its persisted and duplicate counts.
func (r *Registry) ObservePersistence(d time.Duration, persisted, duplicates int) {
	if r == nil {
		return
	}
	r.PersistenceSec.Observe(d.Seconds())
	r.PersistedTransactions.Add(float64(persisted))
	r.DuplicateTransactions.Add(float64(duplicates))
}

// AddDuplicates counts transactions skipped without a write.
func (r *Registry) AddDuplicates(n int) {
	if r == nil {
		return
	}
	r.DuplicateTransactions.Add(float64(n))
}

// SetJobDuration records the wall time of a run.
func (r *Registry) SetJobDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.JobDurationSec.Set(d.Seconds())
}

// IncError counts one error under code.
func (r *Registry) IncError(code string) {
	if r == nil {
		return
	}
	r.ErrorsTotal.WithLabelValues(code).Inc()
}

// Push sends every collector to a Prometheus Pushgateway, replacing the
// previous values pushed under job.
func (r *Registry) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("Push: pushing to %s: %w", url, err)
	}
	return nil
}
