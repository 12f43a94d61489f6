package pipeline

import (
	"context"

	"github.com/dvloznov/promotion-consumer/internal/domain"
	"github.com/dvloznov/promotion-consumer/internal/fetch"
)

// PageFetcher reads one page of the promotion query.
type PageFetcher interface {
	FetchPage(ctx context.Context, req fetch.PageRequest) (*fetch.PageResponse, error)
}

// BatchPersister writes one page of transaction details and returns how many
// transactions were inserted.
type BatchPersister interface {
	PersistBatch(ctx context.Context, details []domain.TransactionDetail) (int, error)
}

// callerRunsReporter is implemented by executors that can tell whether a
// task ran on the submitting goroutine.
type callerRunsReporter interface {
	TrySubmit(task func()) (callerRan bool, err error)
}
