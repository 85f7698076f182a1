package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/agencyops/harrier/internal/domain"
)

// Digest computes a content hash over the normalized rows. Two uploads of
// the same statement produce the same digest regardless of filename, which
// lets repeat validations hit the run cache instead of recomputing.
func Digest(txs []domain.StatementTransaction) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i := range txs {
		// Encode errors are impossible for this struct; ignore like Hash.Write.
		_ = enc.Encode(&txs[i])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewStatement builds the header record for an upload.
func NewStatement(tenantID, carrier, agentNumber string, periodStart, periodEnd time.Time, txs []domain.StatementTransaction) *domain.Statement {
	return &domain.Statement{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Carrier:     carrier,
		AgentNumber: agentNumber,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		RowCount:    len(txs),
		Digest:      Digest(txs),
		UploadedAt:  time.Now().UTC(),
	}
}
