package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/promotion-consumer/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	transactionSeq          = "transaction_transaction_id_seq"
	transactionLineSeq      = "transaction_line_transaction_line_id_seq"
	promotionTransactionSeq = "promotion_transaction_line_promotion_transaction_line_id_seq"
)

const findExistingIDsSQL = `
SELECT source_reference_transaction_id
FROM transaction
WHERE source_reference_system_type = $1
  AND source_reference_transaction_id = ANY($2)`

const insertTransactionSQL = `
INSERT INTO transaction (
	transaction_id,
	source_reference_transaction_id,
	source_reference_system_type,
	source_reference_type,
	source_processed_date,
	transaction_date,
	business_date,
	transaction_type,
	transaction_reversal_code,
	partner_relationship_type,
	created_datetime,
	last_updated_datetime
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT ON CONSTRAINT uq_transaction_source_reference DO NOTHING`

var transactionLineColumns = []string{
	"transaction_line_id",
	"transaction_id",
	"source_reference_line_id",
	"source_reference_line_type",
	"transaction_line_type",
	"ringing_store",
	"store_of_intent",
}

var promotionLineColumns = []string{
	"promotion_transaction_line_id",
	"transaction_line_id",
	"promo_type",
	"promo_amount",
	"promo_business_origin",
}

// Store persists promotion transaction graphs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindExistingIDs returns the subset of ids already stored for systemType.
func (s *Store) FindExistingIDs(ctx context.Context, systemType string, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(ids) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx, findExistingIDsSQL, systemType, ids)
	if err != nil {
		return nil, fmt.Errorf("FindExistingIDs: querying: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("FindExistingIDs: scanning: %w", err)
	}
	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// BulkInsert writes the graphs in one database transaction and returns how
// many Transaction roots were inserted. Roots that collide with an already
// stored natural key are skipped together with their lines. Surrogate ids
// are reserved from the table sequences up front and written back into the
// inserted graphs; skipped roots get their ID reset to zero.
func (s *Store) BulkInsert(ctx context.Context, txs []*domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("BulkInsert: beginning transaction: %w", err)
	}
	defer func() {
		_ = dbtx.Rollback(ctx)
	}()

	inserted, err := insertTransactions(ctx, dbtx, txs)
	if err != nil {
		return 0, err
	}
	if len(inserted) > 0 {
		if err := insertLines(ctx, dbtx, inserted); err != nil {
			return 0, err
		}
		if err := insertPromotions(ctx, dbtx, inserted); err != nil {
			return 0, err
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("BulkInsert: committing: %w", err)
	}
	return len(inserted), nil
}

func insertTransactions(ctx context.Context, dbtx pgx.Tx, txs []*domain.Transaction) ([]*domain.Transaction, error) {
	ids, err := reserveIDs(ctx, dbtx, transactionSeq, len(txs))
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	for i, t := range txs {
		t.ID = ids[i]
		batch.Queue(insertTransactionSQL,
			t.ID,
			t.SourceReferenceTransactionID,
			t.SourceReferenceSystemType,
			t.SourceReferenceType,
			toPgDate(t.SourceProcessedDate),
			toPgDate(t.TransactionDate),
			toPgDate(t.BusinessDate),
			t.TransactionType,
			t.TransactionReversalCode,
			t.PartnerRelationshipType,
			toTimestamp(t.CreatedAt),
			toTimestamp(t.LastUpdatedAt),
		)
	}

	br := dbtx.SendBatch(ctx, batch)
	inserted := make([]*domain.Transaction, 0, len(txs))
	for _, t := range txs {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return nil, fmt.Errorf("BulkInsert: inserting transaction %s: %w", t.SourceReferenceTransactionID, err)
		}
		if tag.RowsAffected() == 0 {
			t.ID = 0
			continue
		}
		inserted = append(inserted, t)
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("BulkInsert: closing batch: %w", err)
	}
	return inserted, nil
}

func insertLines(ctx context.Context, dbtx pgx.Tx, txs []*domain.Transaction) error {
	total := 0
	for _, t := range txs {
		total += t.LineCount()
	}
	if total == 0 {
		return nil
	}
	ids, err := reserveIDs(ctx, dbtx, transactionLineSeq, total)
	if err != nil {
		return err
	}

	rows := make([][]any, 0, total)
	next := 0
	for _, t := range txs {
		for i := range t.Lines {
			line := &t.Lines[i]
			line.ID = ids[next]
			line.TransactionID = t.ID
			next++
			rows = append(rows, []any{
				line.ID,
				line.TransactionID,
				line.SourceReferenceLineID,
				line.SourceReferenceLineType,
				line.TransactionLineType,
				line.RingingStore,
				line.StoreOfIntent,
			})
		}
	}

	if _, err := dbtx.CopyFrom(ctx, pgx.Identifier{"transaction_line"}, transactionLineColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("BulkInsert: copying %d transaction lines: %w", total, err)
	}
	return nil
}

func insertPromotions(ctx context.Context, dbtx pgx.Tx, txs []*domain.Transaction) error {
	total := 0
	for _, t := range txs {
		total += t.PromotionCount()
	}
	if total == 0 {
		return nil
	}
	ids, err := reserveIDs(ctx, dbtx, promotionTransactionSeq, total)
	if err != nil {
		return err
	}

	rows := make([][]any, 0, total)
	next := 0
	for _, t := range txs {
		for i := range t.Lines {
			line := &t.Lines[i]
			for j := range line.Promotions {
				promo := &line.Promotions[j]
				promo.ID = ids[next]
				promo.TransactionLineID = line.ID
				next++
				rows = append(rows, []any{
					promo.ID,
					promo.TransactionLineID,
					promo.PromoType,
					toNumeric(promo.PromoAmount),
					promo.PromoBusinessOrigin,
				})
			}
		}
	}

	if _, err := dbtx.CopyFrom(ctx, pgx.Identifier{"promotion_transaction_line"}, promotionLineColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("BulkInsert: copying %d promotion lines: %w", total, err)
	}
	return nil
}

// reserveIDs draws n consecutive values from seq in one round trip.
func reserveIDs(ctx context.Context, dbtx pgx.Tx, seq string, n int) ([]int64, error) {
	rows, err := dbtx.Query(ctx, "SELECT nextval('"+seq+"') FROM generate_series(1, $1)", n)
	if err != nil {
		return nil, fmt.Errorf("reserveIDs: %s: %w", seq, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("reserveIDs: scanning %s: %w", seq, err)
	}
	if len(ids) != n {
		return nil, errors.New("reserveIDs: sequence returned fewer ids than requested")
	}
	return ids, nil
}

func toPgDate(d civil.Date) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func toTimestamp(t time.Time) pgtype.Timestamp {
	if t.IsZero() {
		t = time.Now()
	}
	return pgtype.Timestamp{Time: t.UTC(), Valid: true}
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
