package postgres

import (
	"context"
	"fmt"
)

// schemaDDL creates the tables this pipeline writes to. Idempotent; executed
// at the start of every run.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS financial_transactions (
	id              BIGSERIAL PRIMARY KEY,
	amazon_order_id TEXT,
	transaction_id  TEXT NOT NULL UNIQUE,
	event_type      TEXT NOT NULL,
	posted_date     TIMESTAMPTZ NOT NULL,
	seller_sku      TEXT,
	charge_type     TEXT NOT NULL,
	currency_code   CHAR(3) NOT NULL,
	currency_amount NUMERIC(12,2) NOT NULL,
	quantity        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_financial_transactions_order_id
	ON financial_transactions (amazon_order_id);
CREATE INDEX IF NOT EXISTS idx_financial_transactions_seller_sku
	ON financial_transactions (seller_sku);

CREATE TABLE IF NOT EXISTS sync_runs (
	sync_run_id   UUID PRIMARY KEY,
	started_ts    TIMESTAMPTZ NOT NULL,
	finished_ts   TIMESTAMPTZ,
	window_start  TIMESTAMPTZ NOT NULL,
	window_end    TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	fetched       INTEGER,
	normalized    INTEGER,
	skipped       INTEGER,
	inserted      INTEGER,
	duplicates    INTEGER,
	failed        INTEGER,
	error_message TEXT
);
`

// EnsureSchema creates the target tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
