package exclusion

import (
	"github.com/agencyops/harrier/internal/domain"
)

// Classifier runs the exclusion chain over a single transaction. It is pure
// and total: given the same transaction and context it always returns the
// same reason, and it never fails.
type Classifier struct {
	rules  []Rule
	custom *CustomEngine
}

// NewClassifier creates a classifier over the built-in chain. The custom
// engine is optional; pass nil when no agency-defined rules are configured.
func NewClassifier(custom *CustomEngine) *Classifier {
	return &Classifier{
		rules:  BuiltinRules(),
		custom: custom,
	}
}

// NewClassifierWithRules creates a classifier over an explicit rule list.
// Used by tests to toggle individual rules; production callers want
// NewClassifier.
func NewClassifierWithRules(rules []Rule, custom *CustomEngine) *Classifier {
	return &Classifier{
		rules:  rules,
		custom: custom,
	}
}

// Rules returns the chain in evaluation order.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// Classify returns the first matching exclusion reason and its note. When no
// rule matches, the result is UNKNOWN_EXCLUSION if the row carries a rate gap
// and NONE otherwise.
func (c *Classifier) Classify(tx *domain.StatementTransaction, rctx Context, hasGap bool) (domain.ExclusionReason, string) {
	for _, rule := range c.rules {
		if rule.Match(tx, rctx) {
			return rule.Reason, rule.Note
		}
	}

	if c.custom != nil {
		if reason, note, ok := c.custom.Match(tx); ok {
			return reason, note
		}
	}

	if hasGap {
		return domain.ExclusionUnknown, "Rate gap present and no exclusion rule matched; needs investigation"
	}
	return domain.ExclusionNone, ""
}
