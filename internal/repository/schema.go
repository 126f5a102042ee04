package repository

// Schema definitions for the riskscore database.
// Compatible with both SQLite and PostgreSQL.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS scoring_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    source TEXT NOT NULL,
    filter TEXT,
    total INTEGER NOT NULL,
    rejected INTEGER NOT NULL DEFAULT 0,
    summary TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scoring_runs_tenant ON scoring_runs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_scoring_runs_created ON scoring_runs(tenant_id, created_at);
`

// schemaScoredTransactions mirrors the persisted risk table, plus hour and
// the row position so a run can be read back in input order.
const schemaScoredTransactions = `
CREATE TABLE IF NOT EXISTS scored_transactions (
    run_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    transaction_id TEXT NOT NULL,
    country TEXT NOT NULL,
    channel TEXT NOT NULL,
    device TEXT NOT NULL,
    amount REAL NOT NULL,
    hour INTEGER NOT NULL,
    num_items INTEGER NOT NULL,
    coupon_applied INTEGER NOT NULL,
    is_fraud INTEGER NOT NULL,
    risk_score INTEGER NOT NULL,
    risk_category TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_scored_tx_lookup ON scored_transactions(tenant_id, run_id, transaction_id);
CREATE INDEX IF NOT EXISTS idx_scored_tx_category ON scored_transactions(tenant_id, run_id, risk_category);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaScoredTransactions,
	}
}
