package domain

import (
	"time"
)

// DefaultRateEpsilon absorbs carrier rounding when comparing actual to
// expected VC rates. Shortfalls smaller than this are clean pays.
const DefaultRateEpsilon = 0.0005

// ValidationConfig carries the agency/program configuration for one
// reconciliation run. Everything time- or agency-dependent is passed here so
// a given input always reproduces a given output.
type ValidationConfig struct {
	// RateTable is the expected-VC schedule. Nil means no rate is owed
	// anywhere, which degrades every row to the no-gap path.
	RateTable *RateTable `json:"rateTable,omitempty"`

	// EliteAgency disables the first-renewal 6-month exclusion.
	EliteAgency bool `json:"eliteAgency,omitempty"`

	// PeriodStart anchors tenure and program-start comparisons.
	PeriodStart time.Time `json:"periodStart"`

	// CancellationThreshold is the analyst-adjustable floor for the large
	// cancellation report, in premium dollars.
	CancellationThreshold float64 `json:"cancellationThreshold,omitempty"`

	// Epsilon overrides DefaultRateEpsilon when non-zero.
	Epsilon float64 `json:"epsilon,omitempty"`

	// Pass-through context labels, not computed by the engine.
	AAPLevel string `json:"aapLevel,omitempty"`
	State    string `json:"state,omitempty"`
}

// RateEpsilon returns the configured epsilon or the default.
func (c *ValidationConfig) RateEpsilon() float64 {
	if c.Epsilon > 0 {
		return c.Epsilon
	}
	return DefaultRateEpsilon
}

// ValidationResult is the aggregate output of one reconciliation run over a
// statement. It is a value object: computed fresh per run, never mutated.
type ValidationResult struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId,omitempty"`
	StatementID string    `json:"statementId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// Analyzed counts every current-period transaction processed.
	Analyzed int `json:"analyzed"`

	// PotentialUnderpayments holds UNKNOWN_EXCLUSION discrepancies in input
	// order so row numbers stay traceable to the source statement.
	PotentialUnderpayments []RateDiscrepancy `json:"potentialUnderpayments"`

	// ExcludedTransactions holds discrepancies explained by any other
	// non-NONE reason, also in input order.
	ExcludedTransactions []RateDiscrepancy `json:"excludedTransactions"`

	// ExclusionBreakdown maps every non-NONE reason to its count of excluded
	// rows, zero counts included; the counts sum to len(ExcludedTransactions).
	ExclusionBreakdown map[ExclusionReason]int `json:"exclusionBreakdown"`

	// TotalMissingVCDollars sums missingVcDollars over potential
	// underpayments only; excluded shortfall is by definition not owed.
	TotalMissingVCDollars float64 `json:"totalMissingVcDollars"`

	// Pass-through context labels.
	AAPLevel string `json:"aapLevel,omitempty"`
	State    string `json:"state,omitempty"`

	// Period aggregates rendered alongside the discrepancy lists.
	RateSummary      *CommissionRateSummary     `json:"rateSummary,omitempty"`
	MixComparison    *BusinessTypeMixComparison `json:"mixComparison,omitempty"`
	Cancellations    *LargeCancellationSummary  `json:"cancellations,omitempty"`
	SubProducerMix   []SubProducerSummary       `json:"subProducerMix,omitempty"`

	Metadata ValidationMetadata `json:"metadata"`
}

// ValidationMetadata carries processing information for observability.
type ValidationMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	RowsExcluded  int    `json:"rowsExcluded"`
	RowsFlagged   int    `json:"rowsFlagged"`
	ProcessMs     int64  `json:"processMs"`
	EngineVersion string `json:"engineVersion"`
}
