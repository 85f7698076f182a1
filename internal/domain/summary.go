package domain

// RateBlock holds the five premium-weighted rate figures shared by the full
// statement summary and its new-business sub-summary.
type RateBlock struct {
	TotalPremium        float64 `json:"totalPremium"`
	TotalBaseCommission float64 `json:"totalBaseCommission"`
	TotalVCAmount       float64 `json:"totalVcAmount"`
	TotalCommission     float64 `json:"totalCommission"`

	// Rates are premium-weighted ratios; EffectiveRate is a percentage.
	AvgBaseRate   float64 `json:"avgBaseRate"`
	AvgVCRate     float64 `json:"avgVcRate"`
	EffectiveRate float64 `json:"effectiveRate"`
}

// CommissionRateSummary aggregates commission economics over one statement
// period. NewBusiness is nil when the period had no new-business rows.
type CommissionRateSummary struct {
	RateBlock

	TotalCommissionablePremium float64 `json:"totalCommissionablePremium"`

	NewBusiness *RateBlock `json:"newBusiness,omitempty"`
}

// BusinessTypeMix is one business type's share of written premium in the
// prior and current periods.
type BusinessTypeMix struct {
	BusinessType string  `json:"businessType"`
	PriorPct     float64 `json:"priorPct"`
	CurrentPct   float64 `json:"currentPct"`

	// ShiftPts is CurrentPct - PriorPct in percentage points.
	ShiftPts float64 `json:"shiftPts"`
}

// BusinessTypeMixComparison compares the premium mix of two periods. It is
// only produced when both periods have transactions; an empty prior period
// would make every shift misleading.
type BusinessTypeMixComparison struct {
	Entries []BusinessTypeMix `json:"entries"`

	LargestIncrease string `json:"largestIncrease,omitempty"`
	LargestDecrease string `json:"largestDecrease,omitempty"`
}

// LargeCancellation is one cancellation at or above the analyst's threshold.
type LargeCancellation struct {
	PolicyNumber string `json:"policyNumber"`
	RowNumber    int    `json:"rowNumber"`
	InsuredName  string `json:"insuredName,omitempty"`
	BusinessType string `json:"businessType"`

	CancelledPremium float64 `json:"cancelledPremium"`

	// EstLostCommission is the cancelled premium valued at the row's own
	// prior effective commission rate.
	EstLostCommission float64 `json:"estLostCommission"`
}

// LargeCancellationSummary lists threshold-exceeding cancellations with
// rollup totals.
type LargeCancellationSummary struct {
	Threshold float64 `json:"threshold"`

	Cancellations []LargeCancellation `json:"cancellations"`

	TotalCancelledPremium  float64 `json:"totalCancelledPremium"`
	TotalEstLostCommission float64 `json:"totalEstLostCommission"`
}

// SubProducerSummary is one staff producer's household mix across bundle
// tiers. Producers with zero rows are never reported.
type SubProducerSummary struct {
	SubProducerCode string `json:"subProducerCode"`

	Households int `json:"households"`

	PreferredCount int `json:"preferredCount"`
	StandardCount  int `json:"standardCount"`
	MonolineCount  int `json:"monolineCount"`

	PreferredPct float64 `json:"preferredPct"`
	StandardPct  float64 `json:"standardPct"`
	MonolinePct  float64 `json:"monolinePct"`
}
