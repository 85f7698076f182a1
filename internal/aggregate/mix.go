package aggregate

import (
	"sort"

	"github.com/agencyops/harrier/internal/domain"
)

// MixComparison computes each business type's share of written premium in
// the prior vs current period and flags the largest shifts. Returns nil when
// either period is empty or carries zero total premium: reporting against an
// all-zero baseline would be misleading, so the comparison is skipped.
func MixComparison(prior, current []domain.StatementTransaction) *domain.BusinessTypeMixComparison {
	if len(prior) == 0 || len(current) == 0 {
		return nil
	}

	priorByType, priorTotal := premiumByBusinessType(prior)
	currentByType, currentTotal := premiumByBusinessType(current)
	if priorTotal == 0 || currentTotal == 0 {
		return nil
	}

	// Union of business types across both periods, sorted for stable output.
	seen := make(map[string]struct{}, len(priorByType)+len(currentByType))
	var types []string
	for bt := range priorByType {
		seen[bt] = struct{}{}
		types = append(types, bt)
	}
	for bt := range currentByType {
		if _, ok := seen[bt]; !ok {
			types = append(types, bt)
		}
	}
	sort.Strings(types)

	cmp := &domain.BusinessTypeMixComparison{}
	var maxShift, minShift float64
	for _, bt := range types {
		entry := domain.BusinessTypeMix{
			BusinessType: bt,
			PriorPct:     priorByType[bt] / priorTotal * 100,
			CurrentPct:   currentByType[bt] / currentTotal * 100,
		}
		entry.ShiftPts = entry.CurrentPct - entry.PriorPct
		cmp.Entries = append(cmp.Entries, entry)

		if entry.ShiftPts > maxShift {
			maxShift = entry.ShiftPts
			cmp.LargestIncrease = bt
		}
		if entry.ShiftPts < minShift {
			minShift = entry.ShiftPts
			cmp.LargestDecrease = bt
		}
	}

	return cmp
}

func premiumByBusinessType(txs []domain.StatementTransaction) (map[string]float64, float64) {
	byType := make(map[string]float64)
	var total float64
	for i := range txs {
		bt := txs[i].BusinessType
		if bt == "" {
			bt = "Unclassified"
		}
		byType[bt] += txs[i].WrittenPremium
		total += txs[i].WrittenPremium
	}
	return byType, total
}
