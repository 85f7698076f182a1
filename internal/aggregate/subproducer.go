package aggregate

import (
	"sort"

	"github.com/agencyops/harrier/internal/domain"
)

// SubProducerMix breaks down each staff producer's households by bundle tier.
// A household is a distinct policy number; its tier is taken from the first
// row seen for that policy. Rows with no sub-producer code are house business
// and are skipped. Results are sorted by producer code.
func SubProducerMix(txs []domain.StatementTransaction) []domain.SubProducerSummary {
	type producerBook struct {
		households map[string]domain.BundleType
	}

	books := make(map[string]*producerBook)
	for i := range txs {
		tx := &txs[i]
		if tx.SubProducerCode == "" {
			continue
		}

		book, ok := books[tx.SubProducerCode]
		if !ok {
			book = &producerBook{households: make(map[string]domain.BundleType)}
			books[tx.SubProducerCode] = book
		}
		if _, seen := book.households[tx.PolicyNumber]; !seen {
			book.households[tx.PolicyNumber] = tx.BundleType
		}
	}

	summaries := make([]domain.SubProducerSummary, 0, len(books))
	for code, book := range books {
		s := domain.SubProducerSummary{
			SubProducerCode: code,
			Households:      len(book.households),
		}
		for _, bundle := range book.households {
			switch bundle {
			case domain.BundlePreferred:
				s.PreferredCount++
			case domain.BundleStandard:
				s.StandardCount++
			default:
				s.MonolineCount++
			}
		}
		if s.Households > 0 {
			s.PreferredPct = float64(s.PreferredCount) / float64(s.Households) * 100
			s.StandardPct = float64(s.StandardCount) / float64(s.Households) * 100
			s.MonolinePct = float64(s.MonolineCount) / float64(s.Households) * 100
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].SubProducerCode < summaries[j].SubProducerCode
	})

	return summaries
}
