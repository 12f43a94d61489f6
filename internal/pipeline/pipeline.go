package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/promotion-consumer/internal/fetch"
	"github.com/dvloznov/promotion-consumer/internal/jobs"
	"github.com/dvloznov/promotion-consumer/internal/jobs/inmemory"
	"github.com/dvloznov/promotion-consumer/internal/logger"
	"github.com/dvloznov/promotion-consumer/internal/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// errPageAbandoned marks a page whose persistence had not finished when the
// pool stopped waiting.
var errPageAbandoned = errors.New("page did not complete before shutdown")

// PageFailure describes one page whose persistence failed.
type PageFailure struct {
	Page  int    `json:"page"`
	Rows  int    `json:"rows"`
	Error string `json:"error"`
}

// Summary is the outcome of one run.
type Summary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration_ns"`
	Pages       int           `json:"pages"`
	Fetched     int           `json:"fetched"`
	Persisted   int           `json:"persisted"`
	FailedPages []PageFailure `json:"failed_pages,omitempty"`
	FetchError  string        `json:"fetch_error,omitempty"`
	// CallerRuns counts pages persisted on the fetch goroutine because the
	// pool was saturated.
	CallerRuns int64                  `json:"caller_runs"`
	PageJobs   []*jobs.PersistPageJob `json:"page_jobs,omitempty"`

	pageErrs *multierror.Error
}

// PageErrors returns the per-page persistence failures, or nil.
func (s *Summary) PageErrors() error {
	return s.pageErrs.ErrorOrNil()
}

type dispatched struct {
	page   int
	rows   int
	future *jobs.Future[PersistenceResult]
}

// Job fetches every page of the promotion query and persists each page
// asynchronously while the next one is being fetched.
type Job struct {
	fetcher   PageFetcher
	persister BatchPersister
	poolCfg   inmemory.PoolConfig
	store     jobs.JobStore
	metrics   *metrics.Registry
	now       func() time.Time
}

// NewJob creates a Job. A new pool sized by poolCfg is used for every run.
// store and reg may be nil.
func NewJob(fetcher PageFetcher, persister BatchPersister, poolCfg inmemory.PoolConfig, store jobs.JobStore, reg *metrics.Registry) *Job {
	return &Job{
		fetcher:   fetcher,
		persister: persister,
		poolCfg:   poolCfg,
		store:     store,
		metrics:   reg,
		now:       time.Now,
	}
}

// Run executes one run. Page persistence failures are reported in the
// summary and do not fail the run. A fetch failure ends the fetch loop; the
// pages already dispatched are drained before the error is returned.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString(), StartedAt: j.now()}
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{"run_id": summary.RunID})
	ctx = logger.WithContext(ctx, log)

	log.Info().Msg("Promotion fetch job started")

	pool := inmemory.NewPool(j.poolCfg)
	processor := NewBatchProcessor(j.persister, pool, j.store, j.metrics, summary.RunID)

	// 1. Fetch pages sequentially and dispatch each one without waiting.
	pending, fetchErr := j.fetchAndDispatch(ctx, processor, summary)

	// 2. Await all dispatched pages. The drain outlives ctx and is bounded by
	// the pool's await-termination period; pages still running after it are
	// reported as abandoned.
	drainCtx := context.WithoutCancel(ctx)
	if err := pool.Shutdown(drainCtx); err != nil {
		log.Warn().Err(err).Msg("Worker pool did not shut down cleanly")
	}
	j.collect(pending, summary)

	stats := pool.Stats()
	summary.CallerRuns = stats.CallerRuns
	if j.store != nil {
		pageJobs, err := j.store.ListJobs(drainCtx, jobs.JobFilter{RunID: summary.RunID})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to list page jobs")
		}
		summary.PageJobs = pageJobs
	}

	// 3. Summarize.
	summary.FinishedAt = j.now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	j.metrics.SetJobDuration(summary.Duration)

	event := log.Info()
	if fetchErr != nil {
		summary.FetchError = fetchErr.Error()
		j.metrics.IncError(metrics.CodeJobExecution)
		event = log.Error().Err(fetchErr)
	}
	event.
		Int("pages", summary.Pages).
		Int("fetched", summary.Fetched).
		Int("persisted", summary.Persisted).
		Int("failed_pages", len(summary.FailedPages)).
		Int64("caller_runs", summary.CallerRuns).
		Dur("duration", summary.Duration).
		Msg("Promotion fetch job finished")

	if fetchErr != nil {
		return summary, fmt.Errorf("Run: %w", fetchErr)
	}
	return summary, nil
}

func (j *Job) fetchAndDispatch(ctx context.Context, processor *BatchProcessor, summary *Summary) ([]dispatched, error) {
	var pending []dispatched
	req := fetch.FirstPage()
	for {
		if err := ctx.Err(); err != nil {
			return pending, err
		}

		resp, err := j.fetcher.FetchPage(ctx, req)
		if err != nil {
			return pending, err
		}
		if len(resp.Details) == 0 {
			return pending, nil
		}

		summary.Pages++
		summary.Fetched += len(resp.Details)
		pending = append(pending, dispatched{
			page:   resp.Number,
			rows:   len(resp.Details),
			future: processor.Submit(ctx, resp.Details, resp.Number),
		})

		if !resp.HasNext() {
			return pending, nil
		}
		req = fetch.NextPage(resp)
	}
}

// collect folds the page results into summary. Pages whose future is not
// complete count as failed.
func (j *Job) collect(pending []dispatched, summary *Summary) {
	for _, d := range pending {
		var (
			res PersistenceResult
			err error
		)
		select {
		case <-d.future.Done():
			res, err = d.future.Wait(context.Background())
		default:
			err = errPageAbandoned
		}

		if err != nil {
			summary.FailedPages = append(summary.FailedPages, PageFailure{Page: d.page, Rows: d.rows, Error: err.Error()})
			summary.pageErrs = multierror.Append(summary.pageErrs, fmt.Errorf("page %d (%d rows): %w", d.page, d.rows, err))
			continue
		}
		summary.Persisted += res.Persisted
	}
}
