package aggregate

import (
	"math"
	"sort"

	"github.com/agencyops/harrier/internal/domain"
)

// LargeCancellations finds cancellation rows whose reversed premium meets or
// exceeds the threshold, ordered largest first. Lost commission is estimated
// from each row's own commission-to-premium ratio, so a row that reverses
// both premium and commission reports the rate the policy actually paid.
func LargeCancellations(txs []domain.StatementTransaction, threshold float64) *domain.LargeCancellationSummary {
	summary := &domain.LargeCancellationSummary{Threshold: threshold}

	for i := range txs {
		tx := &txs[i]
		if !tx.IsCancellation() {
			continue
		}

		premium := math.Abs(tx.WrittenPremium)
		if premium < threshold {
			continue
		}

		rate := safeRatio(math.Abs(tx.Commission()), premium)
		est := roundCents(premium * rate)

		summary.Cancellations = append(summary.Cancellations, domain.LargeCancellation{
			PolicyNumber:      tx.PolicyNumber,
			RowNumber:         tx.RowNumber,
			InsuredName:       tx.InsuredName,
			BusinessType:      tx.BusinessType,
			CancelledPremium:  premium,
			EstLostCommission: est,
		})
		summary.TotalCancelledPremium += premium
		summary.TotalEstLostCommission += est
	}

	sort.SliceStable(summary.Cancellations, func(i, j int) bool {
		return summary.Cancellations[i].CancelledPremium > summary.Cancellations[j].CancelledPremium
	})

	return summary
}

func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// roundCents rounds a dollar figure to the nearest cent, half away from zero.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
