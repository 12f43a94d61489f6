package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/promotion-consumer/internal/domain"
	"github.com/dvloznov/promotion-consumer/internal/jobs"
	"github.com/dvloznov/promotion-consumer/internal/logger"
	"github.com/dvloznov/promotion-consumer/internal/metrics"
	"github.com/google/uuid"
)

// PersistenceResult is the outcome of one page.
type PersistenceResult struct {
	PageNumber int
	Rows       int
	Persisted  int
}

// BatchProcessor persists pages asynchronously on an executor. Each page is
// independent: its failure is delivered through its own future only.
type BatchProcessor struct {
	persister BatchPersister
	executor  jobs.Executor
	store     jobs.JobStore
	metrics   *metrics.Registry
	runID     string
	now       func() time.Time
}

// NewBatchProcessor creates a BatchProcessor. store and reg may be nil.
func NewBatchProcessor(persister BatchPersister, executor jobs.Executor, store jobs.JobStore, reg *metrics.Registry, runID string) *BatchProcessor {
	return &BatchProcessor{
		persister: persister,
		executor:  executor,
		store:     store,
		metrics:   reg,
		runID:     runID,
		now:       time.Now,
	}
}

// Submit schedules the persistence of one page and returns its future. It
// returns as soon as the page is handed to the executor, unless the
// executor is saturated and runs the page on the calling goroutine.
func (p *BatchProcessor) Submit(ctx context.Context, details []domain.TransactionDetail, page int) *jobs.Future[PersistenceResult] {
	future := jobs.NewFuture[PersistenceResult]()
	job := &jobs.PersistPageJob{
		JobID:      uuid.NewString(),
		RunID:      p.runID,
		PageNumber: page,
		Rows:       len(details),
		Status:     jobs.JobStatusPending,
		CreatedAt:  p.now(),
	}
	p.save(ctx, job)

	// Dispatched pages finish even when the run is being cancelled.
	taskCtx := context.WithoutCancel(ctx)
	task := func() { p.process(taskCtx, job, details, future) }

	var err error
	if r, ok := p.executor.(callerRunsReporter); ok {
		var callerRan bool
		callerRan, err = r.TrySubmit(task)
		if callerRan {
			// The task has already finished on this goroutine.
			job.CallerRan = true
			p.save(ctx, job)
			log := logger.FromContext(ctx)
			log.Debug().Int("page", page).Msg("Pool saturated, page persisted on the fetch goroutine")
		}
	} else {
		err = p.executor.Submit(task)
	}
	if err != nil {
		err = fmt.Errorf("Submit: page %d: %w", page, err)
		p.finish(ctx, job, 0, err)
		future.Complete(PersistenceResult{PageNumber: page, Rows: len(details)}, err)
	}
	return future
}

func (p *BatchProcessor) process(ctx context.Context, job *jobs.PersistPageJob, details []domain.TransactionDetail, future *jobs.Future[PersistenceResult]) {
	result := PersistenceResult{PageNumber: job.PageNumber, Rows: job.Rows}
	start := p.now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &start
	p.save(ctx, job)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process: page %d panicked: %v", job.PageNumber, r)
		}
		p.metrics.ObserveBatch(p.now().Sub(start))
		p.finish(ctx, job, result.Persisted, err)
		future.Complete(result, err)
	}()

	result.Persisted, err = p.persister.PersistBatch(ctx, details)
}

func (p *BatchProcessor) finish(ctx context.Context, job *jobs.PersistPageJob, persisted int, err error) {
	log := logger.FromContext(ctx)
	completed := p.now()
	job.CompletedAt = &completed
	job.Persisted = persisted

	if err != nil {
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		p.metrics.IncError(metrics.CodeBatchProcessing)
		log.Error().Err(err).Int("page", job.PageNumber).Int("rows", job.Rows).Msg("Page persistence failed")
	} else {
		job.Status = jobs.JobStatusCompleted
		log.Debug().Int("page", job.PageNumber).Int("rows", job.Rows).Int("persisted", persisted).Msg("Page persisted")
	}
	p.save(ctx, job)
}

func (p *BatchProcessor) save(ctx context.Context, job *jobs.PersistPageJob) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save page job")
	}
}
