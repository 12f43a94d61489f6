package bigquery

import (
	bq "github.com/dvloznov/promotion-consumer/internal/bigquery"
)

// Row types live in the shared package so consumers can decode pages
// without importing the BigQuery adapter.
type PromotionTransactionRow = bq.PromotionTransactionRow
type PromotionDetailRow = bq.PromotionDetailRow
type PromotionQuery = bq.PromotionQuery

// TableRef locates the promotion source table, which may live in a
// different project than the one the query job runs in.
type TableRef struct {
	ProjectID string
	DatasetID string
	TableID   string
}

// FullyQualified renders the table as project.dataset.table.
func (t TableRef) FullyQualified() string {
	return t.ProjectID + "." + t.DatasetID + "." + t.TableID
}
