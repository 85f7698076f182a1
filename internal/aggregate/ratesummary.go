// Package aggregate provides the period summarizers that run alongside the
// discrepancy engine: commission-rate summary, business-type mix comparison,
// large-cancellation detection, and sub-producer mix. Every function here is
// a pure transformation over transaction slices; nothing is cached or
// mutated after construction.
package aggregate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/agencyops/harrier/internal/domain"
)

// RateSummary aggregates commission economics over one statement period.
// Rate averages are premium-weighted: a $50,000 policy moves the average more
// than a $500 one. Returns nil for an empty period.
func RateSummary(txs []domain.StatementTransaction) *domain.CommissionRateSummary {
	if len(txs) == 0 {
		return nil
	}

	summary := &domain.CommissionRateSummary{
		RateBlock: rateBlock(txs),
	}

	for i := range txs {
		if !txs[i].IsServiceFee {
			summary.TotalCommissionablePremium += txs[i].WrittenPremium
		}
	}

	var newBusiness []domain.StatementTransaction
	for i := range txs {
		if txs[i].TransactionType == domain.TxnNewBusiness {
			newBusiness = append(newBusiness, txs[i])
		}
	}
	if len(newBusiness) > 0 {
		nb := rateBlock(newBusiness)
		summary.NewBusiness = &nb
	}

	return summary
}

// rateBlock computes totals and premium-weighted rates over a row set.
func rateBlock(txs []domain.StatementTransaction) domain.RateBlock {
	var block domain.RateBlock

	// Weighted rate samples are taken over positive-premium rows only;
	// negative weights (cancellation reversals) are meaningless to a
	// weighted mean.
	var baseRates, vcRates, weights []float64

	for i := range txs {
		tx := &txs[i]
		block.TotalPremium += tx.WrittenPremium
		block.TotalBaseCommission += tx.BaseCommissionAmount
		block.TotalVCAmount += tx.VCAmount
		block.TotalCommission += tx.Commission()

		if tx.WrittenPremium > 0 {
			baseRates = append(baseRates, tx.BaseCommissionAmount/tx.WrittenPremium)
			vcRates = append(vcRates, tx.VCAmount/tx.WrittenPremium)
			weights = append(weights, tx.WrittenPremium)
		}
	}

	if len(weights) > 0 {
		block.AvgBaseRate = stat.Mean(baseRates, weights)
		block.AvgVCRate = stat.Mean(vcRates, weights)
	}
	if block.TotalPremium != 0 {
		block.EffectiveRate = block.TotalCommission / block.TotalPremium * 100
	}

	// Degenerate inputs must never leak NaN/Inf into percentage displays.
	block.AvgBaseRate = sanitize(block.AvgBaseRate)
	block.AvgVCRate = sanitize(block.AvgVCRate)
	block.EffectiveRate = sanitize(block.EffectiveRate)

	return block
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
