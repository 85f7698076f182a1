package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agencyops/harrier/internal/domain"
	"github.com/agencyops/harrier/internal/exclusion"
	"github.com/agencyops/harrier/internal/history"
	"github.com/agencyops/harrier/internal/repository"
)

// runCacheTTL bounds how long completed runs stay cached. Runs are
// content-addressed by statement digest and rate table, so a hit is always
// an exact replay.
const runCacheTTL = 24 * time.Hour

// Service orchestrates full statement validations: loading data, checking
// the run cache, running the validator, persisting and announcing results.
type Service struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	history   *history.Service
	validator *Validator
	custom    *exclusion.CustomEngine
}

// NewService creates the validation service. Cache, bus, and history may be
// nil; persistence via repo is required.
func NewService(repo domain.Repository, cacheStore domain.Cache, eventBus domain.EventBus, hist *history.Service, custom *exclusion.CustomEngine) *Service {
	return &Service{
		repo:      repo,
		cache:     cacheStore,
		bus:       eventBus,
		history:   hist,
		validator: NewValidator(custom),
		custom:    custom,
	}
}

// StatementRunRequest asks for a validation of a stored statement.
type StatementRunRequest struct {
	TenantID    string `json:"tenantId"`
	StatementID string `json:"statementId"`
	RateTableID string `json:"rateTableId"`
	TraceID     string `json:"traceId,omitempty"`

	// Config carries run options. PeriodStart and RateTable are filled from
	// stored data when left unset.
	Config domain.ValidationConfig `json:"config"`
}

// ValidateStatement runs a full reconciliation of a stored statement. The
// second return reports whether the result came from the run cache.
func (s *Service) ValidateStatement(ctx context.Context, req *StatementRunRequest) (*domain.ValidationResult, bool, error) {
	if req.TenantID == "" {
		return nil, false, fmt.Errorf("tenantID is required")
	}

	start := time.Now()

	stmt, err := s.repo.GetStatement(ctx, req.TenantID, req.StatementID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load statement: %w", err)
	}

	cacheKey := runCacheKey(stmt.Digest, req.RateTableID)
	if s.cache != nil && stmt.Digest != "" {
		if cached, err := s.cache.GetRun(ctx, req.TenantID, cacheKey); err == nil && cached != nil {
			slog.Debug("run cache hit",
				"tenant_id", req.TenantID,
				"statement_id", stmt.ID,
				"run_id", cached.ID,
			)
			return cached, true, nil
		}
	}

	txs, err := s.repo.GetStatementTransactions(ctx, req.TenantID, req.StatementID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load statement rows: %w", err)
	}

	cfg := req.Config
	if cfg.PeriodStart.IsZero() {
		cfg.PeriodStart = stmt.PeriodStart
	}
	if cfg.RateTable == nil && req.RateTableID != "" {
		table, err := s.repo.GetRateTable(ctx, req.TenantID, req.RateTableID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load rate table %s: %w", req.RateTableID, err)
		}
		cfg.RateTable = table
	}

	var prior []domain.StatementTransaction
	if s.history != nil {
		prior, err = s.history.PriorTransactions(ctx, req.TenantID, stmt)
		if err != nil {
			// A missing prior period degrades the report, not the run.
			slog.Warn("prior period lookup failed",
				"tenant_id", req.TenantID,
				"statement_id", stmt.ID,
				"error", err,
			)
			prior = nil
		}
	}

	result, err := s.validator.Validate(ctx, &RunInput{
		TenantID:    req.TenantID,
		StatementID: stmt.ID,
		TraceID:     req.TraceID,
		Config:      cfg,
		Current:     txs,
		Prior:       prior,
		StartTime:   start,
	})
	if err != nil {
		return nil, false, err
	}

	if err := s.repo.SaveRun(ctx, req.TenantID, result); err != nil {
		slog.Error("failed to save validation run",
			"tenant_id", req.TenantID,
			"run_id", result.ID,
			"error", err,
		)
	}

	if s.cache != nil && stmt.Digest != "" {
		if err := s.cache.SetRun(ctx, req.TenantID, cacheKey, result, runCacheTTL); err != nil {
			slog.Warn("failed to cache validation run",
				"tenant_id", req.TenantID,
				"run_id", result.ID,
				"error", err,
			)
		}
	}

	s.announce(ctx, req.TenantID, result)

	return result, false, nil
}

// InlineRunRequest asks for a validation over transactions supplied in the
// request itself, with no stored statement behind them.
type InlineRunRequest struct {
	TenantID    string `json:"tenantId"`
	RateTableID string `json:"rateTableId"`
	TraceID     string `json:"traceId,omitempty"`

	Config  domain.ValidationConfig       `json:"config"`
	Current []domain.StatementTransaction `json:"current"`
	Prior   []domain.StatementTransaction `json:"prior,omitempty"`
}

// ValidateInline reconciles caller-supplied transactions. The run is
// persisted and announced like any other, but never cached: there is no
// statement digest to address it by.
func (s *Service) ValidateInline(ctx context.Context, req *InlineRunRequest) (*domain.ValidationResult, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	cfg := req.Config
	if cfg.RateTable == nil && req.RateTableID != "" {
		table, err := s.repo.GetRateTable(ctx, req.TenantID, req.RateTableID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rate table %s: %w", req.RateTableID, err)
		}
		cfg.RateTable = table
	}

	result, err := s.validator.Validate(ctx, &RunInput{
		TenantID:  req.TenantID,
		TraceID:   req.TraceID,
		Config:    cfg,
		Current:   req.Current,
		Prior:     req.Prior,
		StartTime: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveRun(ctx, req.TenantID, result); err != nil {
		slog.Error("failed to save validation run",
			"tenant_id", req.TenantID,
			"run_id", result.ID,
			"error", err,
		)
	}

	s.announce(ctx, req.TenantID, result)

	return result, nil
}

// ReloadCustomRules replaces the loaded custom exclusion rules with the
// tenant's stored set.
func (s *Service) ReloadCustomRules(ctx context.Context, tenantID string) (int, error) {
	if s.custom == nil {
		return 0, fmt.Errorf("custom rule engine not configured")
	}

	rules, err := s.repo.ListCustomRules(ctx, tenantID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("failed to list custom rules: %w", err)
	}

	if err := s.custom.ReloadRules(rules); err != nil {
		return 0, err
	}

	count := s.custom.RulesCount()
	slog.Info("custom exclusion rules reloaded",
		"tenant_id", tenantID,
		"count", count,
	)
	return count, nil
}

// announce publishes the completed run and any alerts. Publish failures are
// logged, never fatal: the run is already persisted.
func (s *Service) announce(ctx context.Context, tenantID string, result *domain.ValidationResult) {
	if s.bus == nil {
		return
	}

	payload, _ := json.Marshal(result)

	if err := s.bus.Publish(ctx, tenantID, domain.TopicValidationCompleted, payload); err != nil {
		slog.Error("failed to publish validation result",
			"run_id", result.ID,
			"error", err,
		)
	}

	if ShouldAlertUnderpayment(result) {
		if err := s.bus.Publish(ctx, tenantID, domain.TopicAlertUnderpayment, payload); err != nil {
			slog.Error("failed to publish underpayment alert",
				"run_id", result.ID,
				"error", err,
			)
		}
	}

	if ShouldAlertCancellations(result) {
		if err := s.bus.Publish(ctx, tenantID, domain.TopicAlertCancellation, payload); err != nil {
			slog.Error("failed to publish cancellation alert",
				"run_id", result.ID,
				"error", err,
			)
		}
	}
}

func runCacheKey(digest, rateTableID string) string {
	if rateTableID == "" {
		rateTableID = "default"
	}
	return digest + ":" + rateTableID
}
