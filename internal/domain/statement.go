package domain

import (
	"time"
)

// TransactionType is the normalized carrier transaction type.
type TransactionType string

const (
	TxnNewBusiness  TransactionType = "new-business"
	TxnRenewal      TransactionType = "renewal"
	TxnEndorsement  TransactionType = "endorsement"
	TxnCancellation TransactionType = "cancellation"
)

// BundleType describes how a household's policies are packaged.
type BundleType string

const (
	// BundlePreferred is an auto+home household.
	BundlePreferred BundleType = "Preferred"

	// BundleStandard is a household with multiple monoline policies.
	BundleStandard BundleType = "Standard"

	// BundleMonoline is a single-policy household.
	BundleMonoline BundleType = "Monoline"
)

// StatementTransaction is one normalized row of a carrier commission-statement
// export. Instances are immutable for the duration of a reconciliation run.
// Premium and commission amounts are non-negative except for cancellations,
// where negative values represent a reversal.
type StatementTransaction struct {
	// Traceability back to the source statement
	PolicyNumber string `json:"policyNumber"`
	RowNumber    int    `json:"rowNumber"`

	// Location / agent the row is booked under
	AgentNumber string `json:"agentNumber"`

	TransactionType TransactionType `json:"transactionType"`

	// Product as printed on the statement and its normalized category
	ProductRaw      string `json:"productRaw"`
	ProductCategory string `json:"productCategory"`

	BusinessType string     `json:"businessType"`
	BundleType   BundleType `json:"bundleType"`

	// Financial details
	WrittenPremium       float64 `json:"writtenPremium"`
	BaseCommissionAmount float64 `json:"baseCommissionAmount"`
	VCAmount             float64 `json:"vcAmount"`
	TotalCommission      float64 `json:"totalCommission,omitempty"`

	ChannelOfBind string `json:"channelOfBind"`

	// Eligibility flags carried through from the export
	IsServiceFee   bool `json:"isServiceFee,omitempty"`
	IsPlusPolicy   bool `json:"isPlusPolicy,omitempty"`
	IsFirstRenewal bool `json:"isFirstRenewal,omitempty"`
	IsItemAddition bool `json:"isItemAddition,omitempty"`
	IsItemDrop     bool `json:"isItemDrop,omitempty"`

	PolicyTermMonths int `json:"policyTermMonths,omitempty"`

	OriginalPolicyEffectiveDate time.Time `json:"originalPolicyEffectiveDate,omitempty"`

	SubProducerCode string `json:"subProducerCode,omitempty"`
	InsuredName     string `json:"insuredName,omitempty"`
}

// Commission returns the total commission for the row, deriving base+VC when
// the export did not carry an explicit total.
func (t *StatementTransaction) Commission() float64 {
	if t.TotalCommission != 0 {
		return t.TotalCommission
	}
	return t.BaseCommissionAmount + t.VCAmount
}

// IsCancellation reports whether the row reverses previously written premium.
func (t *StatementTransaction) IsCancellation() bool {
	return t.TransactionType == TxnCancellation
}

// Statement is the header record for one uploaded carrier export.
type Statement struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Carrier     string    `json:"carrier"`
	AgentNumber string    `json:"agentNumber,omitempty"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	RowCount    int       `json:"rowCount"`

	// Digest is a content hash of the normalized rows, used as a cache key
	// so re-validating an unchanged upload is a cache hit.
	Digest string `json:"digest,omitempty"`

	UploadedAt time.Time `json:"uploadedAt"`
}
