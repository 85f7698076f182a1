// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agencyops/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveStatement stores a statement header and its rows in one transaction
// with tenant isolation.
func (r *SQLRepository) SaveStatement(ctx context.Context, tenantID string, stmt *domain.Statement, txs []domain.StatementTransaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	headerQuery := `
		INSERT INTO statements (
			id, tenant_id, carrier, agent_number, period_start, period_end,
			row_count, digest, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = dbtx.ExecContext(ctx, r.rebind(headerQuery),
		stmt.ID, tenantID, stmt.Carrier, stmt.AgentNumber,
		stmt.PeriodStart, stmt.PeriodEnd,
		stmt.RowCount, stmt.Digest, stmt.UploadedAt,
	)
	if err != nil {
		return err
	}

	rowQuery := `
		INSERT INTO statement_rows (
			statement_id, tenant_id, row_number, policy_number, agent_number,
			transaction_type, product_raw, product_category, business_type,
			bundle_type, written_premium, base_commission, vc_amount,
			total_commission, channel_of_bind, is_service_fee, is_plus_policy,
			is_first_renewal, is_item_addition, is_item_drop,
			policy_term_months, original_effective_date, sub_producer_code,
			insured_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range txs {
		tx := &txs[i]
		_, err = dbtx.ExecContext(ctx, r.rebind(rowQuery),
			stmt.ID, tenantID, tx.RowNumber, tx.PolicyNumber, tx.AgentNumber,
			tx.TransactionType, tx.ProductRaw, tx.ProductCategory, tx.BusinessType,
			tx.BundleType, tx.WrittenPremium, tx.BaseCommissionAmount, tx.VCAmount,
			tx.TotalCommission, tx.ChannelOfBind,
			boolToInt(tx.IsServiceFee), boolToInt(tx.IsPlusPolicy),
			boolToInt(tx.IsFirstRenewal), boolToInt(tx.IsItemAddition), boolToInt(tx.IsItemDrop),
			tx.PolicyTermMonths, tx.OriginalPolicyEffectiveDate, tx.SubProducerCode,
			tx.InsuredName,
		)
		if err != nil {
			return err
		}
	}

	return dbtx.Commit()
}

// GetStatement retrieves a statement header by ID with tenant isolation.
func (r *SQLRepository) GetStatement(ctx context.Context, tenantID string, stmtID string) (*domain.Statement, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, carrier, agent_number, period_start, period_end,
			   row_count, digest, uploaded_at
		FROM statements
		WHERE tenant_id = ? AND id = ?
	`

	var stmt domain.Statement
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, stmtID).Scan(
		&stmt.ID, &stmt.TenantID, &stmt.Carrier, &stmt.AgentNumber,
		&stmt.PeriodStart, &stmt.PeriodEnd,
		&stmt.RowCount, &stmt.Digest, &stmt.UploadedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &stmt, nil
}

// GetStatementTransactions retrieves a statement's rows in statement order.
func (r *SQLRepository) GetStatementTransactions(ctx context.Context, tenantID string, stmtID string) ([]domain.StatementTransaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT row_number, policy_number, agent_number, transaction_type,
			   product_raw, product_category, business_type, bundle_type,
			   written_premium, base_commission, vc_amount, total_commission,
			   channel_of_bind, is_service_fee, is_plus_policy,
			   is_first_renewal, is_item_addition, is_item_drop,
			   policy_term_months, original_effective_date, sub_producer_code,
			   insured_name
		FROM statement_rows
		WHERE tenant_id = ? AND statement_id = ?
		ORDER BY row_number
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, stmtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.StatementTransaction
	for rows.Next() {
		var tx domain.StatementTransaction
		var serviceFee, plusPolicy, firstRenewal, itemAddition, itemDrop int

		if err := rows.Scan(
			&tx.RowNumber, &tx.PolicyNumber, &tx.AgentNumber, &tx.TransactionType,
			&tx.ProductRaw, &tx.ProductCategory, &tx.BusinessType, &tx.BundleType,
			&tx.WrittenPremium, &tx.BaseCommissionAmount, &tx.VCAmount, &tx.TotalCommission,
			&tx.ChannelOfBind, &serviceFee, &plusPolicy,
			&firstRenewal, &itemAddition, &itemDrop,
			&tx.PolicyTermMonths, &tx.OriginalPolicyEffectiveDate, &tx.SubProducerCode,
			&tx.InsuredName,
		); err != nil {
			return nil, err
		}

		tx.IsServiceFee = serviceFee == 1
		tx.IsPlusPolicy = plusPolicy == 1
		tx.IsFirstRenewal = firstRenewal == 1
		tx.IsItemAddition = itemAddition == 1
		tx.IsItemDrop = itemDrop == 1

		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// FindPriorStatement returns the most recent statement for the same agent
// that ended before the given statement's period. ErrNotFound when the agent
// has no history, which callers treat as "skip the mix comparison".
func (r *SQLRepository) FindPriorStatement(ctx context.Context, tenantID string, agentNumber string, before *domain.Statement) (*domain.Statement, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, carrier, agent_number, period_start, period_end,
			   row_count, digest, uploaded_at
		FROM statements
		WHERE tenant_id = ? AND agent_number = ? AND period_end < ? AND id != ?
		ORDER BY period_end DESC
		LIMIT 1
	`

	var stmt domain.Statement
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, agentNumber, before.PeriodStart, before.ID).Scan(
		&stmt.ID, &stmt.TenantID, &stmt.Carrier, &stmt.AgentNumber,
		&stmt.PeriodStart, &stmt.PeriodEnd,
		&stmt.RowCount, &stmt.Digest, &stmt.UploadedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &stmt, nil
}

// SaveRateTable stores a rate table version with tenant isolation.
func (r *SQLRepository) SaveRateTable(ctx context.Context, tenantID string, table *domain.RateTable) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	entries, _ := json.Marshal(table.Entries)

	now := time.Now().UTC()

	query := `
		INSERT INTO rate_tables (
			id, tenant_id, name, description, version, entries, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			entries = excluded.entries,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		table.ID, tenantID, table.Name, table.Description,
		table.Version, string(entries), boolToInt(table.Enabled),
		now, now,
	)
	return err
}

// GetRateTable retrieves the latest enabled version of a rate table.
func (r *SQLRepository) GetRateTable(ctx context.Context, tenantID string, tableID string) (*domain.RateTable, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, entries, enabled, created_at, updated_at
		FROM rate_tables
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	return r.scanRateTable(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, tableID))
}

// ListRateTables retrieves all enabled rate tables for a tenant.
func (r *SQLRepository) ListRateTables(ctx context.Context, tenantID string) ([]*domain.RateTable, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, entries, enabled, created_at, updated_at
		FROM rate_tables
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []*domain.RateTable
	for rows.Next() {
		table, err := r.scanRateTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}

	return tables, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanRateTable(row rowScanner) (*domain.RateTable, error) {
	var table domain.RateTable
	var entries string
	var enabled int

	err := row.Scan(
		&table.ID, &table.TenantID, &table.Name, &table.Description,
		&table.Version, &entries, &enabled,
		&table.CreatedAt, &table.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	table.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(entries), &table.Entries); err != nil {
		return nil, fmt.Errorf("failed to parse rate table entries: %w", err)
	}

	return &table, nil
}

// SaveCustomRule stores a custom exclusion rule version with tenant isolation.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, tenantID string, rule *domain.CustomRuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (
			id, tenant_id, name, description, version, expression, reason, note, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			reason = excluded.reason,
			note = excluded.note,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(rule.Reason), rule.Note,
		boolToInt(rule.Enabled), now, now,
	)
	return err
}

// GetCustomRule retrieves the latest enabled version of a custom rule.
func (r *SQLRepository) GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*domain.CustomRuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason, note, enabled
		FROM custom_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.CustomRuleConfig
	var reason string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &reason, &rule.Note, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Reason = domain.ExclusionReason(reason)
	rule.Enabled = enabled == 1

	return &rule, nil
}

// ListCustomRules retrieves all enabled custom rules for a tenant.
func (r *SQLRepository) ListCustomRules(ctx context.Context, tenantID string) ([]*domain.CustomRuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason, note, enabled
		FROM custom_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRuleConfig
	for rows.Next() {
		var rule domain.CustomRuleConfig
		var reason string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &reason, &rule.Note, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Reason = domain.ExclusionReason(reason)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteCustomRule soft-deletes a custom rule by setting enabled = 0.
func (r *SQLRepository) DeleteCustomRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE custom_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveRun stores a validation run with tenant isolation. The full result is
// stored as a JSON payload; the scalar columns exist for listing and alert
// queries without deserializing.
func (r *SQLRepository) SaveRun(ctx context.Context, tenantID string, run *domain.ValidationResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO validation_runs (
			id, tenant_id, statement_id, timestamp, analyzed,
			rows_flagged, rows_excluded, total_missing_vc, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, tenantID, run.StatementID, run.Timestamp, run.Analyzed,
		run.Metadata.RowsFlagged, run.Metadata.RowsExcluded,
		run.TotalMissingVCDollars, string(payload),
	)
	return err
}

// GetRun retrieves a validation run by ID with tenant isolation.
func (r *SQLRepository) GetRun(ctx context.Context, tenantID string, runID string) (*domain.ValidationResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM validation_runs
		WHERE tenant_id = ? AND id = ?
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, runID).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var run domain.ValidationResult
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("failed to parse validation run: %w", err)
	}

	return &run, nil
}

// ListRuns retrieves a statement's validation runs, newest first.
func (r *SQLRepository) ListRuns(ctx context.Context, tenantID string, stmtID string) ([]*domain.ValidationResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM validation_runs
		WHERE tenant_id = ? AND statement_id = ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, stmtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.ValidationResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var run domain.ValidationResult
		if err := json.Unmarshal([]byte(payload), &run); err != nil {
			return nil, fmt.Errorf("failed to parse validation run: %w", err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
