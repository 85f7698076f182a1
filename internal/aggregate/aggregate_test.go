package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyops/harrier/internal/domain"
)

func TestRateSummaryPremiumWeighted(t *testing.T) {
	// A small high-rate row must not drag the average toward itself: $100 at
	// 10% against $10,000 at 1% lands near 1%, not near 5.5%.
	txs := []domain.StatementTransaction{
		{WrittenPremium: 100, BaseCommissionAmount: 10, TransactionType: domain.TxnRenewal},
		{WrittenPremium: 10000, BaseCommissionAmount: 100, TransactionType: domain.TxnRenewal},
	}

	summary := RateSummary(txs)
	require.NotNil(t, summary)

	assert.InDelta(t, 110.0/10100.0, summary.AvgBaseRate, 1e-9)
	assert.Less(t, summary.AvgBaseRate, 0.02)
	assert.Equal(t, 10100.0, summary.TotalPremium)
	assert.Equal(t, 110.0, summary.TotalBaseCommission)
}

func TestRateSummaryExcludesServiceFeesFromCommissionable(t *testing.T) {
	txs := []domain.StatementTransaction{
		{WrittenPremium: 1000, BaseCommissionAmount: 100},
		{WrittenPremium: 50, IsServiceFee: true},
	}

	summary := RateSummary(txs)
	require.NotNil(t, summary)

	assert.Equal(t, 1050.0, summary.TotalPremium, "totals include every row")
	assert.Equal(t, 1000.0, summary.TotalCommissionablePremium, "service fees are not commissionable")
}

func TestRateSummaryNewBusinessBlock(t *testing.T) {
	txs := []domain.StatementTransaction{
		{WrittenPremium: 2000, BaseCommissionAmount: 200, TransactionType: domain.TxnNewBusiness},
		{WrittenPremium: 1000, BaseCommissionAmount: 80, TransactionType: domain.TxnRenewal},
	}

	summary := RateSummary(txs)
	require.NotNil(t, summary)
	require.NotNil(t, summary.NewBusiness)

	assert.Equal(t, 2000.0, summary.NewBusiness.TotalPremium)
	assert.InDelta(t, 0.10, summary.NewBusiness.AvgBaseRate, 1e-9)

	renewalsOnly := RateSummary(txs[1:])
	require.NotNil(t, renewalsOnly)
	assert.Nil(t, renewalsOnly.NewBusiness, "no new-business rows means no sub-block")
}

func TestRateSummaryDegenerateInputs(t *testing.T) {
	assert.Nil(t, RateSummary(nil))

	// Zero and negative premiums must never produce NaN or Inf rates.
	summary := RateSummary([]domain.StatementTransaction{
		{WrittenPremium: 0, BaseCommissionAmount: 5},
		{WrittenPremium: -500, BaseCommissionAmount: -40, TransactionType: domain.TxnCancellation},
	})
	require.NotNil(t, summary)
	assert.False(t, summary.AvgBaseRate != summary.AvgBaseRate, "NaN leaked into AvgBaseRate")
	assert.Equal(t, 0.0, summary.AvgBaseRate, "no positive-premium rows to weight")
}

func TestMixComparison(t *testing.T) {
	prior := []domain.StatementTransaction{
		{BusinessType: "Standard Auto", WrittenPremium: 6000},
		{BusinessType: "Homeowners", WrittenPremium: 4000},
	}
	current := []domain.StatementTransaction{
		{BusinessType: "Standard Auto", WrittenPremium: 3000},
		{BusinessType: "Homeowners", WrittenPremium: 5000},
		{BusinessType: "Umbrella", WrittenPremium: 2000},
	}

	cmp := MixComparison(prior, current)
	require.NotNil(t, cmp)
	require.Len(t, cmp.Entries, 3)

	// Entries come back sorted by business type.
	assert.Equal(t, "Homeowners", cmp.Entries[0].BusinessType)
	assert.Equal(t, "Standard Auto", cmp.Entries[1].BusinessType)
	assert.Equal(t, "Umbrella", cmp.Entries[2].BusinessType)

	auto := cmp.Entries[1]
	assert.InDelta(t, 60, auto.PriorPct, 1e-9)
	assert.InDelta(t, 30, auto.CurrentPct, 1e-9)
	assert.InDelta(t, -30, auto.ShiftPts, 1e-9)

	umbrella := cmp.Entries[2]
	assert.InDelta(t, 0, umbrella.PriorPct, 1e-9, "type absent from prior reads as 0%")
	assert.InDelta(t, 20, umbrella.CurrentPct, 1e-9)

	assert.Equal(t, "Umbrella", cmp.LargestIncrease)
	assert.Equal(t, "Standard Auto", cmp.LargestDecrease)
}

func TestMixComparisonSkipsEmptyPeriods(t *testing.T) {
	current := []domain.StatementTransaction{{BusinessType: "Homeowners", WrittenPremium: 100}}

	assert.Nil(t, MixComparison(nil, current), "no prior period")
	assert.Nil(t, MixComparison(current, nil), "no current period")

	zeroPrior := []domain.StatementTransaction{{BusinessType: "Homeowners", WrittenPremium: 0}}
	assert.Nil(t, MixComparison(zeroPrior, current), "zero-premium prior has no mix to compare")
}

func TestLargeCancellations(t *testing.T) {
	txs := []domain.StatementTransaction{
		{
			PolicyNumber:         "POL-1",
			RowNumber:            3,
			InsuredName:          "Hartwell",
			BusinessType:         "Homeowners",
			TransactionType:      domain.TxnCancellation,
			WrittenPremium:       -12000,
			BaseCommissionAmount: -960,
		},
		{
			PolicyNumber:    "POL-2",
			RowNumber:       7,
			TransactionType: domain.TxnCancellation,
			WrittenPremium:  -500,
		},
		{
			PolicyNumber:         "POL-3",
			RowNumber:            9,
			BusinessType:         "Standard Auto",
			TransactionType:      domain.TxnCancellation,
			WrittenPremium:       -25000,
			BaseCommissionAmount: -2000,
			VCAmount:             -250,
		},
		{
			PolicyNumber:    "POL-4",
			TransactionType: domain.TxnRenewal,
			WrittenPremium:  -50000,
		},
	}

	summary := LargeCancellations(txs, 10000)
	require.NotNil(t, summary)
	assert.Equal(t, 10000.0, summary.Threshold)
	require.Len(t, summary.Cancellations, 2, "below-threshold and non-cancellation rows are skipped")

	// Largest reversal first.
	assert.Equal(t, "POL-3", summary.Cancellations[0].PolicyNumber)
	assert.Equal(t, 25000.0, summary.Cancellations[0].CancelledPremium)
	assert.InDelta(t, 2250.0, summary.Cancellations[0].EstLostCommission, 1e-9)

	assert.Equal(t, "POL-1", summary.Cancellations[1].PolicyNumber)
	assert.InDelta(t, 960.0, summary.Cancellations[1].EstLostCommission, 1e-9,
		"lost commission uses the row's own rate")

	assert.Equal(t, 37000.0, summary.TotalCancelledPremium)
	assert.InDelta(t, 3210.0, summary.TotalEstLostCommission, 1e-9)
}

func TestLargeCancellationsZeroCommissionRow(t *testing.T) {
	summary := LargeCancellations([]domain.StatementTransaction{
		{
			PolicyNumber:    "POL-9",
			TransactionType: domain.TxnCancellation,
			WrittenPremium:  -15000,
		},
	}, 10000)

	require.Len(t, summary.Cancellations, 1)
	assert.Equal(t, 0.0, summary.Cancellations[0].EstLostCommission,
		"no commission on the row means no estimable loss")
}

func TestSubProducerMix(t *testing.T) {
	txs := []domain.StatementTransaction{
		{SubProducerCode: "SP2", PolicyNumber: "P-1", BundleType: domain.BundlePreferred},
		{SubProducerCode: "SP2", PolicyNumber: "P-1", BundleType: domain.BundlePreferred}, // same household
		{SubProducerCode: "SP2", PolicyNumber: "P-2", BundleType: domain.BundleMonoline},
		{SubProducerCode: "SP1", PolicyNumber: "P-3", BundleType: domain.BundleStandard},
		{PolicyNumber: "P-4", BundleType: domain.BundlePreferred}, // house business
	}

	mix := SubProducerMix(txs)
	require.Len(t, mix, 2)

	// Sorted by producer code.
	assert.Equal(t, "SP1", mix[0].SubProducerCode)
	assert.Equal(t, 1, mix[0].Households)
	assert.Equal(t, 1, mix[0].StandardCount)
	assert.InDelta(t, 100, mix[0].StandardPct, 1e-9)

	sp2 := mix[1]
	assert.Equal(t, "SP2", sp2.SubProducerCode)
	assert.Equal(t, 2, sp2.Households, "duplicate policy rows count one household")
	assert.Equal(t, 1, sp2.PreferredCount)
	assert.Equal(t, 1, sp2.MonolineCount)
	assert.InDelta(t, 50, sp2.PreferredPct, 1e-9)
	assert.InDelta(t, 50, sp2.MonolinePct, 1e-9)
}

func TestSubProducerMixEmpty(t *testing.T) {
	assert.Empty(t, SubProducerMix(nil))
	assert.Empty(t, SubProducerMix([]domain.StatementTransaction{
		{PolicyNumber: "P-1", BundleType: domain.BundlePreferred},
	}), "house business only yields no producer summaries")
}
