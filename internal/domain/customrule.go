package domain

import "time"

// CustomRuleConfig is an agency-defined exclusion predicate expressed in CEL.
// Custom rules run after the built-in chain and before the UNKNOWN fallback.
// Each rule maps its predicate onto one of the existing ExclusionReasons so
// the taxonomy stays closed; the note carries the agency's justification.
type CustomRuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// Expression is a boolean CEL predicate over transaction fields, e.g.
	// `business_type == "Motorcycle" && channel.contains("direct")`.
	Expression string `json:"expression"`

	// Reason must be one of the EXCLUDED_* members of ExclusionReason.
	Reason ExclusionReason `json:"reason"`

	// Note is the human-readable justification attached to matched rows.
	Note string `json:"note"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ValidReason reports whether the configured reason is a member of the closed
// exclusion taxonomy (UNKNOWN and NONE are reserved for the engine).
func (c *CustomRuleConfig) ValidReason() bool {
	for _, r := range AllExclusionReasons() {
		if r == c.Reason && r != ExclusionUnknown {
			return true
		}
	}
	return false
}
