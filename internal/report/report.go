// Package report renders the per-SKU summary as a fixed-width table.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/amazon-finance-sync/internal/domain"
)

const tableWidth = 82

// Render prints the summary rows, already grouped by SKU and ordered by
// descending total amount, to w.
func Render(w io.Writer, rows []domain.SKUSummary) {
	fmt.Fprintln(w, "\n--- Summary Report: Totals by SKU ---")

	if len(rows) == 0 {
		fmt.Fprintln(w, "No data found to generate a summary.")
		return
	}

	rule := strings.Repeat("-", tableWidth)
	fmt.Fprintf(w, "%-30s | %15s | %12s | %15s\n", "SKU", "TRANSACTIONS", "TOTAL UNITS", "TOTAL AMOUNT")
	fmt.Fprintln(w, rule)
	for _, row := range rows {
		sku := "(none)"
		if row.SellerSKU != nil {
			sku = *row.SellerSKU
		}
		fmt.Fprintf(w, "%-30s | %15d | %12d | %15s\n",
			sku, row.TransactionCount, row.TotalQuantity, row.TotalAmount.StringFixed(2))
	}
	fmt.Fprintln(w, rule)
}
