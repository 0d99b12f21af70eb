package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/amazon-finance-sync/internal/domain"
	"github.com/dvloznov/amazon-finance-sync/internal/logger"
)

var transactionColumns = []string{
	"transaction_id",
	"amazon_order_id",
	"event_type",
	"posted_date",
	"seller_sku",
	"charge_type",
	"currency_code",
	"currency_amount",
	"quantity",
}

// InsertTransactions persists a batch with at-most-once semantics under the
// transaction_id unique constraint.
//
// The whole batch is first inserted in one transaction (the common-case fast
// path). If that fails on a unique violation, the batch is rolled back and
// retried record by record, each in its own transaction; per-record unique
// violations count as duplicates, other per-record failures are dropped and
// counted. A bulk failure that is not a unique violation is returned as an
// error with nothing inserted.
func (s *Store) InsertTransactions(ctx context.Context, txs []domain.Transaction) (domain.LoadResult, error) {
	log := logger.FromContext(ctx)

	var res domain.LoadResult
	if len(txs) == 0 {
		log.Info().Msg("No transactions to load")
		return res, nil
	}

	err := s.bulkInsert(ctx, txs)
	if err == nil {
		res.Inserted = len(txs)
		res.Loaded = txs
		return res, nil
	}
	if !isUniqueViolation(err) {
		return res, fmt.Errorf("bulk insert: %w", err)
	}

	log.Info().Int("batch", len(txs)).
		Msg("Duplicates detected, falling back to row-by-row inserts")

	for _, tx := range txs {
		err := s.insertOne(ctx, tx)
		switch {
		case err == nil:
			res.Inserted++
			res.Loaded = append(res.Loaded, tx)
		case isUniqueViolation(err):
			res.Duplicates++
		default:
			res.Failed++
			log.Warn().Err(err).Str("transaction_id", tx.TransactionID).
				Msg("Dropping record after insert failure")
		}
	}
	return res, nil
}

func (s *Store) bulkInsert(ctx context.Context, txs []domain.Transaction) error {
	sql, args := buildInsert(txs)

	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback(ctx)

	if _, err := dbtx.Exec(ctx, sql, args...); err != nil {
		return err
	}
	return dbtx.Commit(ctx)
}

func (s *Store) insertOne(ctx context.Context, tx domain.Transaction) error {
	sql, args := buildInsert([]domain.Transaction{tx})

	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback(ctx)

	if _, err := dbtx.Exec(ctx, sql, args...); err != nil {
		return err
	}
	return dbtx.Commit(ctx)
}

// buildInsert renders a multi-row INSERT with numbered placeholders. The
// amount travels as its exact decimal string and is cast to numeric on the
// server side.
func buildInsert(txs []domain.Transaction) (string, []any) {
	placeholders := make([]string, 0, len(txs))
	args := make([]any, 0, len(txs)*len(transactionColumns))

	argi := 1
	for _, tx := range txs {
		ph := make([]string, 0, len(transactionColumns))
		add := func(v any, cast string) {
			args = append(args, v)
			ph = append(ph, fmt.Sprintf("$%d%s", argi, cast))
			argi++
		}

		add(tx.TransactionID, "")
		add(tx.AmazonOrderID, "")
		add(tx.EventType, "")
		add(tx.PostedDate, "")
		add(tx.SellerSKU, "")
		add(tx.ChargeType, "")
		add(tx.CurrencyCode, "")
		add(tx.CurrencyAmount.String(), "::numeric")
		add(tx.Quantity, "")

		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sql := "INSERT INTO financial_transactions (" + strings.Join(transactionColumns, ",") +
		") VALUES " + strings.Join(placeholders, ",")
	return sql, args
}
