// Package analytics mirrors newly loaded transactions into BigQuery so
// downstream dashboards can query them without touching the primary store.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/amazon-finance-sync/internal/domain"
)

const tableID = "financial_transactions"

// transactionRow is the BigQuery shape of one mirrored transaction.
type transactionRow struct {
	SyncRunID      string              `bigquery:"sync_run_id"`
	TransactionID  string              `bigquery:"transaction_id"`
	AmazonOrderID  bigquery.NullString `bigquery:"amazon_order_id"`
	EventType      string              `bigquery:"event_type"`
	PostedTS       time.Time           `bigquery:"posted_ts"`
	PostedDate     civil.Date          `bigquery:"posted_date"`
	SellerSKU      bigquery.NullString `bigquery:"seller_sku"`
	ChargeType     string              `bigquery:"charge_type"`
	CurrencyCode   string              `bigquery:"currency_code"`
	CurrencyAmount *big.Rat            `bigquery:"currency_amount"`
	Quantity       int64               `bigquery:"quantity"`
	MirroredTS     time.Time           `bigquery:"mirrored_ts"`
}

// BigQueryMirror streams rows into <project>.<dataset>.financial_transactions
// through a shared client.
type BigQueryMirror struct {
	client  *bigquery.Client
	dataset string
}

// New creates the mirror and makes sure the dataset and table exist.
func New(ctx context.Context, project, dataset string) (*BigQueryMirror, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}

	m := &BigQueryMirror{client: client, dataset: dataset}
	if err := m.ensureTable(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return m, nil
}

// Close releases the BigQuery client.
func (m *BigQueryMirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// MirrorTransactions streams the run's newly persisted records.
func (m *BigQueryMirror) MirrorTransactions(ctx context.Context, runID string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]*transactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &transactionRow{
			SyncRunID:      runID,
			TransactionID:  tx.TransactionID,
			AmazonOrderID:  toNullString(tx.AmazonOrderID),
			EventType:      tx.EventType,
			PostedTS:       tx.PostedDate,
			PostedDate:     civil.DateOf(tx.PostedDate),
			SellerSKU:      toNullString(tx.SellerSKU),
			ChargeType:     tx.ChargeType,
			CurrencyCode:   tx.CurrencyCode,
			CurrencyAmount: tx.CurrencyAmount.Rat(),
			Quantity:       int64(tx.Quantity),
			MirroredTS:     now,
		})
	}

	inserter := m.client.Dataset(m.dataset).Table(tableID).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("mirror transactions: %w", err)
	}
	return nil
}

// ensureTable creates the dataset and table on first use; both creations
// tolerate already-exists conflicts.
func (m *BigQueryMirror) ensureTable(ctx context.Context) error {
	ds := m.client.Dataset(m.dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create dataset %s: %w", m.dataset, err)
	}

	schema, err := bigquery.InferSchema(transactionRow{})
	if err != nil {
		return fmt.Errorf("infer schema: %w", err)
	}
	if err := ds.Table(tableID).Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create table %s: %w", tableID, err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

func toNullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}
