// Package history resolves prior-period statement data for mix comparisons.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agencyops/harrier/internal/domain"
	"github.com/agencyops/harrier/internal/repository"
)

// priorTTL bounds how long a resolved prior period stays cached. Statements
// are immutable once uploaded, so the TTL only limits memory, not staleness.
const priorTTL = 15 * time.Minute

// Service looks up the prior statement period for an agent.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new history service. The cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// PriorTransactions returns the rows of the most recent statement for the
// same agent that ended before the given statement's period. A nil slice
// with nil error means the agent has no history; callers skip the business
// mix comparison in that case.
func (s *Service) PriorTransactions(ctx context.Context, tenantID string, stmt *domain.Statement) ([]domain.StatementTransaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if stmt == nil || stmt.AgentNumber == "" {
		return nil, nil
	}

	prior, err := s.repo.FindPriorStatement(ctx, tenantID, stmt.AgentNumber, stmt)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find prior statement: %w", err)
	}

	if txs, ok := s.cachedRows(ctx, tenantID, prior.ID); ok {
		return txs, nil
	}

	txs, err := s.repo.GetStatementTransactions(ctx, tenantID, prior.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior statement rows: %w", err)
	}

	s.cacheRows(ctx, tenantID, prior.ID, txs)

	return txs, nil
}

func (s *Service) cachedRows(ctx context.Context, tenantID, stmtID string) ([]domain.StatementTransaction, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, tenantID, "prior:"+stmtID)
	if err != nil || data == nil {
		return nil, false
	}

	var txs []domain.StatementTransaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, false
	}
	return txs, true
}

func (s *Service) cacheRows(ctx context.Context, tenantID, stmtID string, txs []domain.StatementTransaction) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(txs)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, tenantID, "prior:"+stmtID, data, priorTTL)
}
