package domain

// ExclusionReason is the closed taxonomy of business exceptions that make a
// variable-compensation shortfall legitimate. The order of the EXCLUDED_*
// members is the classifier's priority order: when more than one could apply,
// the first match wins.
type ExclusionReason string

const (
	ExclusionDirectBound       ExclusionReason = "EXCLUDED_DIRECT_BOUND"
	ExclusionFirstRenewal6Mo   ExclusionReason = "EXCLUDED_FIRST_RENEWAL_6MO"
	ExclusionServiceFee        ExclusionReason = "EXCLUDED_SERVICE_FEE"
	ExclusionPlusPolicy        ExclusionReason = "EXCLUDED_PLUS_POLICY"
	ExclusionNonStandardAuto   ExclusionReason = "EXCLUDED_NONSTANDARD_AUTO"
	ExclusionPre2023Policy     ExclusionReason = "EXCLUDED_PRE_2023_POLICY"
	ExclusionJUAJUP            ExclusionReason = "EXCLUDED_JUA_JUP"
	ExclusionFacilityCeded     ExclusionReason = "EXCLUDED_FACILITY_CEDED"
	ExclusionMonolineRenewal   ExclusionReason = "EXCLUDED_MONOLINE_RENEWAL"
	ExclusionNBItemAddition    ExclusionReason = "EXCLUDED_NB_ITEM_ADDITION"
	ExclusionEndorsementChange ExclusionReason = "EXCLUDED_ENDORSEMENT_ADD_DROP"

	// ExclusionUnknown marks a rate gap no rule could explain. These rows are
	// the potential underpayments that need human investigation.
	ExclusionUnknown ExclusionReason = "UNKNOWN_EXCLUSION"

	// ExclusionNone means the row paid at or above the expected rate.
	ExclusionNone ExclusionReason = "NONE"
)

// AllExclusionReasons returns every reason except NONE, in classifier priority
// order. Breakdown maps are seeded from this list so reporting always renders
// the same rows, zero counts included.
func AllExclusionReasons() []ExclusionReason {
	return []ExclusionReason{
		ExclusionDirectBound,
		ExclusionFirstRenewal6Mo,
		ExclusionServiceFee,
		ExclusionPlusPolicy,
		ExclusionNonStandardAuto,
		ExclusionPre2023Policy,
		ExclusionJUAJUP,
		ExclusionFacilityCeded,
		ExclusionMonolineRenewal,
		ExclusionNBItemAddition,
		ExclusionEndorsementChange,
		ExclusionUnknown,
	}
}

// RateDiscrepancy is the per-transaction output of the discrepancy builder:
// one record for every row that was not a clean pay. It carries no reference
// to the transaction that produced it; traceability is via the
// (policyNumber, rowNumber) composite key.
type RateDiscrepancy struct {
	PolicyNumber string `json:"policyNumber"`
	RowNumber    int    `json:"rowNumber"`

	TransactionType TransactionType `json:"transactionType"`
	ProductRaw      string          `json:"productRaw"`
	ProductCategory string          `json:"productCategory"`
	BusinessType    string          `json:"businessType"`
	BundleType      BundleType      `json:"bundleType"`

	WrittenPremium float64 `json:"writtenPremium"`

	// Rates are ratios (0-1, occasionally slightly above for overpays).
	ActualVCRate   float64 `json:"actualVcRate"`
	ExpectedVCRate float64 `json:"expectedVcRate"`

	// MissingVCDollars is max(0, (expected-actual) * premium), rounded to
	// cents per row so aggregate totals match row-level display exactly.
	MissingVCDollars float64 `json:"missingVcDollars"`

	ExclusionReason ExclusionReason `json:"exclusionReason"`
	ExclusionNote   string          `json:"exclusionNote,omitempty"`
}
