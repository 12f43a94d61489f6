package fetch

import (
	"context"
	"errors"
	"time"

	bq "github.com/dvloznov/promotion-consumer/internal/bigquery"
	"github.com/dvloznov/promotion-consumer/internal/domain"
	"github.com/dvloznov/promotion-consumer/internal/logger"
	"github.com/dvloznov/promotion-consumer/internal/metrics"
)

// DefaultPageSize is used when Settings.PageSize is not positive.
const DefaultPageSize = 2000

// Settings configures a Client.
type Settings struct {
	PageSize          int
	StartDateOverride string
	EndDateOverride   string
	// Origins defaults to domain.PromotionOrigins.
	Origins []domain.BusinessOrigin
}

// Client pages through the results of the promotion query. The first request
// submits the query and waits for it; every later request reads the next
// page of the same job.
type Client struct {
	repo     bq.PromotionRepository
	settings Settings
	metrics  *metrics.Registry
	now      func() time.Time
}

// NewClient creates a Client. reg may be nil.
func NewClient(repo bq.PromotionRepository, settings Settings, reg *metrics.Registry) *Client {
	if settings.PageSize <= 0 {
		settings.PageSize = DefaultPageSize
	}
	if len(settings.Origins) == 0 {
		settings.Origins = domain.PromotionOrigins
	}
	return &Client{
		repo:     repo,
		settings: settings,
		metrics:  reg,
		now:      time.Now,
	}
}

// FetchPage reads the page described by req. Errors are always *QueryError.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*PageResponse, error) {
	log := logger.FromContext(ctx)
	start := c.now()

	job := req.job
	if req.IsFirst() {
		var err error
		job, err = c.startQuery(ctx)
		if err != nil {
			c.recordError(err)
			return nil, err
		}
	}

	rows, next, err := job.ReadPage(ctx, c.settings.PageSize, req.cursor)
	if err != nil {
		qerr := &QueryError{Kind: KindPageRead, JobID: job.ID(), Page: req.Number(), Err: err}
		c.recordError(qerr)
		return nil, qerr
	}

	details := make([]domain.TransactionDetail, 0, len(rows))
	for i, row := range rows {
		d, err := DecodeRow(row)
		if err != nil {
			log.Error().Err(err).Str("job_id", job.ID()).Int("page", req.Number()).Int("row", i).Msg("Failed to decode promotion row")
			qerr := &QueryError{Kind: KindMapping, JobID: job.ID(), Page: req.Number(), Err: err}
			c.recordError(qerr)
			return nil, qerr
		}
		details = append(details, d)
	}

	elapsed := c.now().Sub(start)
	c.metrics.ObservePageFetch(elapsed, len(details))
	log.Debug().
		Str("job_id", job.ID()).
		Int("page", req.Number()).
		Int("rows", len(details)).
		Bool("has_next", next != "").
		Dur("duration", elapsed).
		Msg("Fetched page")

	return &PageResponse{
		Job:        job,
		Number:     req.Number(),
		Details:    details,
		NextCursor: next,
	}, nil
}

func (c *Client) startQuery(ctx context.Context) (bq.QueryJob, error) {
	log := logger.FromContext(ctx)

	rng := ResolveDateRange(c.settings.StartDateOverride, c.settings.EndDateOverride, c.now())
	origins := make([]string, len(c.settings.Origins))
	for i, o := range c.settings.Origins {
		origins[i] = string(o)
	}

	job, err := c.repo.SubmitPromotionQuery(ctx, bq.PromotionQuery{
		Origins: origins,
		Start:   rng.Start,
		End:     rng.End,
	})
	if errors.Is(err, bq.ErrNoJob) || (err == nil && job == nil) {
		log.Error().Msg("Promotion query job not found")
		return nil, &QueryError{Kind: KindJobNotFound, Err: ErrQueryJobNotFound}
	}
	if err != nil {
		return nil, &QueryError{Kind: KindSubmit, Err: err}
	}

	log.Info().
		Str("job_id", job.ID()).
		Time("start", rng.Start).
		Time("end", rng.End).
		Strs("origins", origins).
		Msg("Started promotion query")

	if err := job.Wait(ctx); err != nil {
		log.Error().Err(err).Str("job_id", job.ID()).Msg("Promotion query job failed")
		return nil, &QueryError{Kind: KindJobExecution, JobID: job.ID(), Err: err}
	}
	return job, nil
}

func (c *Client) recordError(err error) {
	var qerr *QueryError
	if errors.As(err, &qerr) {
		c.metrics.IncError(qerr.Code())
	}
}
