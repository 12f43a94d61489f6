package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/promotion-consumer/internal/bigquery"
	"google.golang.org/api/option"
)

// Re-export interfaces from shared package
type PromotionRepository = bq.PromotionRepository
type QueryJob = bq.QueryJob

// BigQueryPromotionRepository is the concrete implementation of
// PromotionRepository that interacts with BigQuery.
type BigQueryPromotionRepository struct {
	client   *bigquery.Client
	table    TableRef
	location string
}

// NewBigQueryPromotionRepository creates a repository with a shared BigQuery
// client billed to projectID. When credentialsFile is empty, application
// default credentials are used.
func NewBigQueryPromotionRepository(ctx context.Context, projectID string, table TableRef, location, credentialsFile string) (*BigQueryPromotionRepository, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryPromotionRepository: creating client: %w", err)
	}
	return &BigQueryPromotionRepository{
		client:   client,
		table:    table,
		location: location,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryPromotionRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// SubmitPromotionQuery delegates to SubmitPromotionQueryWithClient with the shared client.
func (r *BigQueryPromotionRepository) SubmitPromotionQuery(ctx context.Context, pq PromotionQuery) (QueryJob, error) {
	job, err := SubmitPromotionQueryWithClient(ctx, r.client, r.table, r.location, pq)
	if err != nil {
		return nil, err
	}
	return &bigQueryJob{job: job}, nil
}

type bigQueryJob struct {
	job *bigquery.Job
}

func (j *bigQueryJob) ID() string { return j.job.ID() }

func (j *bigQueryJob) Wait(ctx context.Context) error { return WaitForJob(ctx, j.job) }

func (j *bigQueryJob) ReadPage(ctx context.Context, pageSize int, cursor string) ([]*PromotionTransactionRow, string, error) {
	return ReadPromotionPage(ctx, j.job, pageSize, cursor)
}
