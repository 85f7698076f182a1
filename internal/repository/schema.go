package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaStatements = `
CREATE TABLE IF NOT EXISTS statements (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    carrier TEXT NOT NULL,
    agent_number TEXT,
    period_start TIMESTAMP NOT NULL,
    period_end TIMESTAMP NOT NULL,
    row_count INTEGER NOT NULL,
    digest TEXT,
    uploaded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_statements_tenant ON statements(tenant_id);
CREATE INDEX IF NOT EXISTS idx_statements_agent ON statements(tenant_id, agent_number, period_end);
CREATE INDEX IF NOT EXISTS idx_statements_digest ON statements(tenant_id, digest);
`

const schemaStatementRows = `
CREATE TABLE IF NOT EXISTS statement_rows (
    statement_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    row_number INTEGER NOT NULL,
    policy_number TEXT NOT NULL,
    agent_number TEXT,
    transaction_type TEXT NOT NULL,
    product_raw TEXT,
    product_category TEXT,
    business_type TEXT,
    bundle_type TEXT,
    written_premium REAL NOT NULL,
    base_commission REAL NOT NULL,
    vc_amount REAL NOT NULL,
    total_commission REAL NOT NULL,
    channel_of_bind TEXT,
    is_service_fee INTEGER NOT NULL DEFAULT 0,
    is_plus_policy INTEGER NOT NULL DEFAULT 0,
    is_first_renewal INTEGER NOT NULL DEFAULT 0,
    is_item_addition INTEGER NOT NULL DEFAULT 0,
    is_item_drop INTEGER NOT NULL DEFAULT 0,
    policy_term_months INTEGER NOT NULL DEFAULT 0,
    original_effective_date TIMESTAMP,
    sub_producer_code TEXT,
    insured_name TEXT,
    PRIMARY KEY (statement_id, row_number)
);

CREATE INDEX IF NOT EXISTS idx_statement_rows_tenant ON statement_rows(tenant_id, statement_id);
CREATE INDEX IF NOT EXISTS idx_statement_rows_policy ON statement_rows(tenant_id, policy_number);
`

const schemaRateTables = `
CREATE TABLE IF NOT EXISTS rate_tables (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    entries TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rate_tables_tenant ON rate_tables(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rate_tables_enabled ON rate_tables(tenant_id, enabled);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    reason TEXT NOT NULL,
    note TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_tenant ON custom_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(tenant_id, enabled);
`

const schemaValidationRuns = `
CREATE TABLE IF NOT EXISTS validation_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    statement_id TEXT,
    timestamp TIMESTAMP NOT NULL,
    analyzed INTEGER NOT NULL,
    rows_flagged INTEGER NOT NULL,
    rows_excluded INTEGER NOT NULL,
    total_missing_vc REAL NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_runs_tenant ON validation_runs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_validation_runs_statement ON validation_runs(tenant_id, statement_id);
CREATE INDEX IF NOT EXISTS idx_validation_runs_timestamp ON validation_runs(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaStatements,
		schemaStatementRows,
		schemaRateTables,
		schemaCustomRules,
		schemaValidationRuns,
	}
}
