// Package recon implements the commission reconciliation engine: the
// per-row discrepancy builder and the validator that aggregates row results
// into a statement-level validation run.
package recon

import (
	"math"

	"github.com/agencyops/harrier/internal/domain"
	"github.com/agencyops/harrier/internal/exclusion"
)

// Builder turns one statement transaction into a rate discrepancy, or nil
// when the row paid at or above the expected rate. A Builder is immutable
// after construction and safe for concurrent use.
type Builder struct {
	rateTable  *domain.RateTable
	epsilon    float64
	classifier *exclusion.Classifier
}

// NewBuilder creates a discrepancy builder for one run's configuration.
func NewBuilder(rateTable *domain.RateTable, epsilon float64, classifier *exclusion.Classifier) *Builder {
	if epsilon <= 0 {
		epsilon = domain.DefaultRateEpsilon
	}
	return &Builder{
		rateTable:  rateTable,
		epsilon:    epsilon,
		classifier: classifier,
	}
}

// Build compares the row's paid VC rate against the rate table. Rows at or
// above expected-epsilon are clean pays and return nil; every other row gets
// a discrepancy record carrying its exclusion classification.
func (b *Builder) Build(tx *domain.StatementTransaction, rctx exclusion.Context) *domain.RateDiscrepancy {
	tenure := domain.TenureYears(tx.OriginalPolicyEffectiveDate, rctx.PeriodStart)
	expected := b.rateTable.Lookup(tx.BusinessType, tx.BundleType, tx.TransactionType, tenure)

	actual := 0.0
	if tx.WrittenPremium > 0 {
		actual = tx.VCAmount / tx.WrittenPremium
	}

	if actual >= expected-b.epsilon {
		return nil
	}

	reason, note := b.classifier.Classify(tx, rctx, true)

	return &domain.RateDiscrepancy{
		PolicyNumber:     tx.PolicyNumber,
		RowNumber:        tx.RowNumber,
		TransactionType:  tx.TransactionType,
		ProductRaw:       tx.ProductRaw,
		ProductCategory:  tx.ProductCategory,
		BusinessType:     tx.BusinessType,
		BundleType:       tx.BundleType,
		WrittenPremium:   tx.WrittenPremium,
		ActualVCRate:     actual,
		ExpectedVCRate:   expected,
		MissingVCDollars: missingDollars(expected, actual, tx.WrittenPremium),
		ExclusionReason:  reason,
		ExclusionNote:    note,
	}
}

// missingDollars values the rate shortfall in premium dollars, rounded to
// cents per row so run totals always match the row-level display.
func missingDollars(expected, actual, premium float64) float64 {
	missing := (expected - actual) * premium
	if missing < 0 {
		return 0
	}
	return math.Round(missing*100) / 100
}
