package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawEvent is one financial-event envelope from the Finances API: a single
// key whose name ends in "List", mapping to the event records of that kind.
type RawEvent = map[string]any

// Transaction is the flattened, uniquely-keyed record produced by
// normalization. TransactionID is the natural dedup key:
// order id, SKU, charge type and the raw posted-date string, joined with "-".
type Transaction struct {
	TransactionID  string
	AmazonOrderID  *string // nil for adjustment events without an order
	EventType      string  // envelope key with the "List" suffix stripped
	PostedDate     time.Time
	PostedDateRaw  string // unparsed source string, used in TransactionID
	SellerSKU      *string
	ChargeType     string
	CurrencyCode   string
	CurrencyAmount decimal.Decimal
	Quantity       int
}

// LoadResult reports what happened to one batch handed to the loader.
// Loaded holds the records actually persisted this run, for downstream
// mirroring.
type LoadResult struct {
	Inserted   int
	Duplicates int
	Failed     int
	Loaded     []Transaction
}

// SKUSummary is one row of the per-SKU report: grouped by seller SKU,
// ordered by descending total amount.
type SKUSummary struct {
	SellerSKU        *string
	TransactionCount int64
	TotalQuantity    int64
	TotalAmount      decimal.Decimal
}

// RunCounts is the bookkeeping recorded against a finished sync run.
type RunCounts struct {
	Fetched    int
	Normalized int
	Skipped    int
	Inserted   int
	Duplicates int
	Failed     int
}
