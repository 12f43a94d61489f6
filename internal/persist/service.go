package persist

import (
	"context"
	"strings"
	"time"

	"github.com/dvloznov/promotion-consumer/internal/domain"
	"github.com/dvloznov/promotion-consumer/internal/logger"
	"github.com/dvloznov/promotion-consumer/internal/metrics"
)

// Service persists fetched transaction details, skipping the ones whose
// natural key is already stored.
type Service struct {
	store   TransactionStore
	metrics *metrics.Registry
	now     func() time.Time
}

// NewService creates a Service. reg may be nil.
func NewService(store TransactionStore, reg *metrics.Registry) *Service {
	return &Service{
		store:   store,
		metrics: reg,
		now:     time.Now,
	}
}

// PersistBatch writes the details that are not yet stored and returns how
// many transactions were inserted. Errors are *DatabaseConnectionError or
// *DatabaseOperationError.
func (s *Service) PersistBatch(ctx context.Context, details []domain.TransactionDetail) (int, error) {
	if len(details) == 0 {
		return 0, nil
	}
	log := logger.FromContext(ctx)
	start := s.now()

	ids := distinctIDs(details)
	existing, err := s.store.FindExistingIDs(ctx, domain.SourceSystemType, ids)
	if err != nil {
		return 0, s.fail(ctx, err, len(details))
	}

	fresh := make([]domain.TransactionDetail, 0, len(details))
	seen := make(map[string]struct{}, len(details))
	for _, d := range details {
		if _, ok := existing[d.GlobalTransactionID]; ok {
			continue
		}
		// A page can repeat a transaction; the first occurrence wins.
		if _, ok := seen[d.GlobalTransactionID]; ok {
			continue
		}
		seen[d.GlobalTransactionID] = struct{}{}
		fresh = append(fresh, d)
	}
	duplicates := len(details) - len(fresh)

	if len(fresh) == 0 {
		s.metrics.AddDuplicates(duplicates)
		log.Info().Int("rows", len(details)).Int("duplicates", duplicates).Msg("All transactions already persisted")
		return 0, nil
	}

	txs, err := domain.MapToTransactions(fresh, s.now())
	if err != nil {
		return 0, s.fail(ctx, err, len(details))
	}

	persisted, err := s.store.BulkInsert(ctx, txs)
	if err != nil {
		return 0, s.fail(ctx, err, len(details))
	}

	// Roots rejected by the unique constraint were raced in by another writer.
	duplicates += len(txs) - persisted
	elapsed := s.now().Sub(start)
	s.metrics.ObservePersistence(elapsed, persisted, duplicates)
	log.Info().
		Int("rows", len(details)).
		Int("persisted", persisted).
		Int("duplicates", duplicates).
		Dur("duration", elapsed).
		Msg("Persisted transactions")

	return persisted, nil
}

func (s *Service) fail(ctx context.Context, err error, rows int) error {
	classified := classify(err)
	s.metrics.IncError(ErrorCode(classified))
	log := logger.FromContext(ctx)
	log.Error().Err(err).Int("rows", rows).Msg("Failed to persist transactions")
	return classified
}

func distinctIDs(details []domain.TransactionDetail) []string {
	seen := make(map[string]struct{}, len(details))
	ids := make([]string, 0, len(details))
	for _, d := range details {
		id := d.GlobalTransactionID
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
