package domain

import (
	"math"
	"time"
)

// RateTable is the agency's expected variable-compensation schedule. It is
// program configuration supplied by the caller, never hardcoded in the engine.
type RateTable struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	Entries []RateEntry `json:"entries"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RateEntry maps a (businessType, bundleType, transactionType, tenure) cell to
// an expected VC rate. Empty string fields are wildcards. Tenure bounds are in
// whole policy years, lower inclusive, upper exclusive; a nil upper bound
// means unbounded, mirroring how rule bands are expressed elsewhere.
type RateEntry struct {
	BusinessType    string          `json:"businessType,omitempty"`
	BundleType      BundleType      `json:"bundleType,omitempty"`
	TransactionType TransactionType `json:"transactionType,omitempty"`

	MinTenureYears int  `json:"minTenureYears,omitempty"`
	MaxTenureYears *int `json:"maxTenureYears,omitempty"`

	// Rate is a ratio, e.g. 0.05 for 5%.
	Rate float64 `json:"rate"`
}

// matches reports whether the entry covers the given cell.
func (e *RateEntry) matches(businessType string, bundleType BundleType, txnType TransactionType, tenureYears int) bool {
	if e.BusinessType != "" && e.BusinessType != businessType {
		return false
	}
	if e.BundleType != "" && e.BundleType != bundleType {
		return false
	}
	if e.TransactionType != "" && e.TransactionType != txnType {
		return false
	}
	if tenureYears < e.MinTenureYears {
		return false
	}
	if e.MaxTenureYears != nil && tenureYears >= *e.MaxTenureYears {
		return false
	}
	return true
}

// Lookup returns the expected VC rate for a cell. Entries are evaluated in
// declaration order, first match wins. A miss returns 0: a rate that was
// never defined cannot be owed, and the zero expected rate surfaces through
// the no-gap path rather than as an error.
func (t *RateTable) Lookup(businessType string, bundleType BundleType, txnType TransactionType, tenureYears int) float64 {
	if t == nil {
		return 0
	}
	for i := range t.Entries {
		if t.Entries[i].matches(businessType, bundleType, txnType, tenureYears) {
			return t.Entries[i].Rate
		}
	}
	return 0
}

// TenureYears returns the whole policy years elapsed between the original
// policy effective date and the statement period anchor. A zero effective
// date yields 0 so rows missing the field still land in a tenure band.
func TenureYears(originalEffective, periodStart time.Time) int {
	if originalEffective.IsZero() || periodStart.Before(originalEffective) {
		return 0
	}
	years := periodStart.Sub(originalEffective).Hours() / (24 * 365.25)
	return int(math.Floor(years))
}
