package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/amazon-finance-sync/internal/domain"
)

// SummarizeBySKU aggregates persisted transactions per seller SKU, ordered
// by descending total amount. Pure read, no mutation.
func (s *Store) SummarizeBySKU(ctx context.Context) ([]domain.SKUSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seller_sku,
		       COUNT(id)                          AS transaction_count,
		       COALESCE(SUM(quantity), 0)         AS total_quantity,
		       COALESCE(SUM(currency_amount), 0)::text AS total_amount
		FROM financial_transactions
		GROUP BY seller_sku
		ORDER BY SUM(currency_amount) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("summarize by sku: %w", err)
	}
	defer rows.Close()

	var summaries []domain.SKUSummary
	for rows.Next() {
		var (
			row       domain.SKUSummary
			amountStr string
		)
		if err := rows.Scan(&row.SellerSKU, &row.TransactionCount, &row.TotalQuantity, &amountStr); err != nil {
			return nil, fmt.Errorf("summarize by sku: scan: %w", err)
		}
		row.TotalAmount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("summarize by sku: parse amount %q: %w", amountStr, err)
		}
		summaries = append(summaries, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarize by sku: rows: %w", err)
	}
	return summaries, nil
}
