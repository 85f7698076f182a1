// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Statement operations
	SaveStatement(ctx context.Context, tenantID string, stmt *Statement, txs []StatementTransaction) error
	GetStatement(ctx context.Context, tenantID string, stmtID string) (*Statement, error)
	GetStatementTransactions(ctx context.Context, tenantID string, stmtID string) ([]StatementTransaction, error)
	FindPriorStatement(ctx context.Context, tenantID string, agentNumber string, before *Statement) (*Statement, error)

	// Rate table operations
	SaveRateTable(ctx context.Context, tenantID string, table *RateTable) error
	GetRateTable(ctx context.Context, tenantID string, tableID string) (*RateTable, error)
	ListRateTables(ctx context.Context, tenantID string) ([]*RateTable, error)

	// Custom exclusion rule operations
	SaveCustomRule(ctx context.Context, tenantID string, rule *CustomRuleConfig) error
	GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*CustomRuleConfig, error)
	ListCustomRules(ctx context.Context, tenantID string) ([]*CustomRuleConfig, error)
	DeleteCustomRule(ctx context.Context, tenantID string, ruleID string) error

	// Validation run results
	SaveRun(ctx context.Context, tenantID string, run *ValidationResult) error
	GetRun(ctx context.Context, tenantID string, runID string) (*ValidationResult, error)
	ListRuns(ctx context.Context, tenantID string, stmtID string) ([]*ValidationResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
