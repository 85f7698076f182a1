package recon

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/agencyops/harrier/internal/aggregate"
	"github.com/agencyops/harrier/internal/domain"
	"github.com/agencyops/harrier/internal/exclusion"
)

// EngineVersion is stamped into every run's metadata.
const EngineVersion = "harrier-1.0"

// DefaultCancellationThreshold is the large-cancellation floor used when the
// run config leaves it unset, in premium dollars.
const DefaultCancellationThreshold = 10000

// ErrNoTransactions is returned when a run is requested over an empty
// current period.
var ErrNoTransactions = errors.New("recon: no current-period transactions")

// Validator runs full statement reconciliations. It owns no state beyond the
// custom rule engine shared across runs; everything run-specific arrives in
// the input.
type Validator struct {
	custom *exclusion.CustomEngine
}

// NewValidator creates a validator. The custom engine may be nil when no
// tenant-defined exclusion rules are in play.
func NewValidator(custom *exclusion.CustomEngine) *Validator {
	return &Validator{custom: custom}
}

// RunInput carries everything one reconciliation run needs.
type RunInput struct {
	TenantID    string
	StatementID string
	TraceID     string

	Config domain.ValidationConfig

	// Current is the period under reconciliation; Prior feeds the mix
	// comparison and may be empty.
	Current []domain.StatementTransaction
	Prior   []domain.StatementTransaction

	StartTime time.Time
}

// Validate reconciles the current period against the configured rate table
// and returns the full run result. Rows are processed in input order so the
// output lists stay traceable to statement row numbers.
func (v *Validator) Validate(ctx context.Context, input *RunInput) (*domain.ValidationResult, error) {
	if len(input.Current) == 0 {
		return nil, ErrNoTransactions
	}

	start := time.Now()

	rctx := exclusion.Context{
		PeriodStart: input.Config.PeriodStart,
		EliteAgency: input.Config.EliteAgency,
	}
	builder := NewBuilder(input.Config.RateTable, input.Config.RateEpsilon(), exclusion.NewClassifier(v.custom))

	result := &domain.ValidationResult{
		ID:          uuid.New().String(),
		TenantID:    input.TenantID,
		StatementID: input.StatementID,
		Timestamp:   time.Now().UTC(),
		Analyzed:    len(input.Current),
		AAPLevel:    input.Config.AAPLevel,
		State:       input.Config.State,
	}

	// Seed the breakdown with every reason so reporting renders stable rows.
	result.ExclusionBreakdown = make(map[domain.ExclusionReason]int)
	for _, reason := range domain.AllExclusionReasons() {
		result.ExclusionBreakdown[reason] = 0
	}

	for i := range input.Current {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		disc := builder.Build(&input.Current[i], rctx)
		if disc == nil {
			continue
		}

		// Unknowns live in potentialUnderpayments; the breakdown counts only
		// explained rows, so its counts sum to len(excludedTransactions).
		if disc.ExclusionReason == domain.ExclusionUnknown {
			result.PotentialUnderpayments = append(result.PotentialUnderpayments, *disc)
			result.TotalMissingVCDollars += disc.MissingVCDollars
		} else {
			result.ExclusionBreakdown[disc.ExclusionReason]++
			result.ExcludedTransactions = append(result.ExcludedTransactions, *disc)
		}
	}

	threshold := input.Config.CancellationThreshold
	if threshold <= 0 {
		threshold = DefaultCancellationThreshold
	}

	result.RateSummary = aggregate.RateSummary(input.Current)
	result.MixComparison = aggregate.MixComparison(input.Prior, input.Current)
	result.Cancellations = aggregate.LargeCancellations(input.Current, threshold)
	result.SubProducerMix = aggregate.SubProducerMix(input.Current)

	startTime := input.StartTime
	if startTime.IsZero() {
		startTime = start
	}
	result.Metadata = domain.ValidationMetadata{
		TraceID:       input.TraceID,
		RowsExcluded:  len(result.ExcludedTransactions),
		RowsFlagged:   len(result.PotentialUnderpayments),
		ProcessMs:     time.Since(startTime).Milliseconds(),
		EngineVersion: EngineVersion,
	}

	return result, nil
}

// ShouldAlertUnderpayment reports whether a run found unexplained shortfall
// worth paging about.
func ShouldAlertUnderpayment(result *domain.ValidationResult) bool {
	return result.TotalMissingVCDollars > 0 || len(result.PotentialUnderpayments) > 0
}

// ShouldAlertCancellations reports whether the run's large-cancellation
// report is non-empty.
func ShouldAlertCancellations(result *domain.ValidationResult) bool {
	return result.Cancellations != nil && len(result.Cancellations.Cancellations) > 0
}
