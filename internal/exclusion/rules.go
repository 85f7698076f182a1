// Package exclusion implements the commission exclusion rule chain.
// The chain decides whether a variable-compensation shortfall on a statement
// row is explained by a documented business exception.
package exclusion

import (
	"strings"
	"time"

	"github.com/agencyops/harrier/internal/domain"
)

// ProgramStart is the variable-compensation program start date. Policies
// originally effective before it never earn VC.
var ProgramStart = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

// Context carries the run-level inputs rule predicates need. Everything
// time- or agency-dependent arrives here instead of being read off a clock.
type Context struct {
	// PeriodStart anchors the statement period under analysis.
	PeriodStart time.Time

	// EliteAgency disables the first-renewal exclusion; Elite agencies earn
	// VC from the first renewal onward.
	EliteAgency bool
}

// Rule pairs one exclusion reason with its predicate. Rules are independent
// and individually testable; priority lives in the order of BuiltinRules,
// not inside any predicate.
type Rule struct {
	Reason domain.ExclusionReason
	Note   string
	Match  func(tx *domain.StatementTransaction, rctx Context) bool
}

// BuiltinRules returns the documented exclusion chain in priority order.
// The first matching rule wins.
func BuiltinRules() []Rule {
	return []Rule{
		{
			Reason: domain.ExclusionDirectBound,
			Note:   "Policy bound through a direct or web channel; not agent-attributed for VC",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return containsAnyFold(tx.ChannelOfBind, "direct", "web", "online")
			},
		},
		{
			Reason: domain.ExclusionFirstRenewal6Mo,
			Note:   "First renewal of a 6-month auto term; VC begins at the second renewal",
			Match: func(tx *domain.StatementTransaction, rctx Context) bool {
				return tx.TransactionType == domain.TxnRenewal &&
					tx.IsFirstRenewal &&
					tx.PolicyTermMonths == 6 &&
					strings.EqualFold(tx.ProductCategory, "Auto") &&
					!rctx.EliteAgency
			},
		},
		{
			Reason: domain.ExclusionServiceFee,
			Note:   "Service fee line; not commissionable premium",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return tx.IsServiceFee
			},
		},
		{
			Reason: domain.ExclusionPlusPolicy,
			Note:   "Plus policy; compensated under a separate schedule",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return tx.IsPlusPolicy
			},
		},
		{
			Reason: domain.ExclusionNonStandardAuto,
			Note:   "Non-Standard Auto is excluded from VC regardless of bundle",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return isNonStandardAuto(tx.BusinessType)
			},
		},
		{
			Reason: domain.ExclusionPre2023Policy,
			Note:   "Policy predates the VC program start",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return !tx.OriginalPolicyEffectiveDate.IsZero() &&
					tx.OriginalPolicyEffectiveDate.Before(ProgramStart)
			},
		},
		{
			Reason: domain.ExclusionJUAJUP,
			Note:   "JUA/JUP assigned-risk business; carrier pays no VC",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return containsAnyFold(tx.ChannelOfBind, "jua", "jup", "assigned risk") ||
					containsAnyFold(tx.ProductRaw, "jua", "jup", "assigned risk")
			},
		},
		{
			Reason: domain.ExclusionFacilityCeded,
			Note:   "Premium ceded to the facility; not VC-eligible",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return containsAnyFold(tx.ChannelOfBind, "facility", "ceded") ||
					containsAnyFold(tx.ProductRaw, "facility", "ceded")
			},
		},
		{
			Reason: domain.ExclusionMonolineRenewal,
			Note:   "Monoline renewal; only bundled renewals earn VC",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return tx.TransactionType == domain.TxnRenewal &&
					tx.BundleType == domain.BundleMonoline
			},
		},
		{
			Reason: domain.ExclusionNBItemAddition,
			Note:   "New-business coded item/vehicle addition to an existing policy",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return tx.TransactionType == domain.TxnNewBusiness && tx.IsItemAddition
			},
		},
		{
			Reason: domain.ExclusionEndorsementChange,
			Note:   "Endorsement adding or dropping an item; premium re-qualifies at next renewal",
			Match: func(tx *domain.StatementTransaction, _ Context) bool {
				return tx.TransactionType == domain.TxnEndorsement &&
					(tx.IsItemAddition || tx.IsItemDrop)
			},
		},
	}
}

// isNonStandardAuto matches the carrier's spellings of the business type.
func isNonStandardAuto(businessType string) bool {
	s := strings.ToLower(strings.TrimSpace(businessType))
	return s == "non-standard auto" || s == "nonstandard auto" || s == "non standard auto"
}

func containsAnyFold(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
