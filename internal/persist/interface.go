package persist

import (
	"context"

	"github.com/dvloznov/promotion-consumer/internal/domain"
)

// TransactionStore is the relational store the Service writes to.
//
//go:generate mockgen -destination=mocks/mock_store.go -source=interface.go TransactionStore
type TransactionStore interface {
	// FindExistingIDs returns the subset of ids already stored under systemType.
	FindExistingIDs(ctx context.Context, systemType string, ids []string) (map[string]struct{}, error)
	// BulkInsert writes the graphs atomically and returns the number of roots inserted.
	BulkInsert(ctx context.Context, txs []*domain.Transaction) (int, error)
}
