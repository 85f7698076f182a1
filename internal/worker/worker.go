// Package worker provides async statement processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/agencyops/harrier/internal/domain"
	"github.com/agencyops/harrier/internal/recon"
)

// Worker validates uploaded statements asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	service *recon.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *recon.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicStatementIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicStatementIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processStatement(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicStatementIngested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processStatement(ctx, msg.TenantID, msg)
}

// StatementMessage is the message payload announcing an uploaded statement.
type StatementMessage struct {
	StatementID string `json:"statementId"`
	TenantID    string `json:"tenantId"`
	TraceID     string `json:"traceId,omitempty"`
	RateTableID string `json:"rateTableId,omitempty"`

	// Run options forwarded to the validator.
	EliteAgency           bool    `json:"eliteAgency,omitempty"`
	CancellationThreshold float64 `json:"cancellationThreshold,omitempty"`
	AAPLevel              string  `json:"aapLevel,omitempty"`
	State                 string  `json:"state,omitempty"`
}

// processStatement runs a full validation for an uploaded statement.
func (w *Worker) processStatement(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var stmtMsg StatementMessage
	if err := json.Unmarshal(msg.Payload, &stmtMsg); err != nil {
		slog.Error("failed to parse statement message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if stmtMsg.TenantID != "" {
		tenantID = stmtMsg.TenantID
	}

	traceID := stmtMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing statement",
		"statement_id", stmtMsg.StatementID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	result, cached, err := w.service.ValidateStatement(ctx, &recon.StatementRunRequest{
		TenantID:    tenantID,
		StatementID: stmtMsg.StatementID,
		RateTableID: stmtMsg.RateTableID,
		TraceID:     traceID,
		Config: domain.ValidationConfig{
			EliteAgency:           stmtMsg.EliteAgency,
			CancellationThreshold: stmtMsg.CancellationThreshold,
			AAPLevel:              stmtMsg.AAPLevel,
			State:                 stmtMsg.State,
		},
	})
	if err != nil {
		slog.Error("statement validation failed",
			"statement_id", stmtMsg.StatementID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Info("statement processed",
		"statement_id", stmtMsg.StatementID,
		"tenant_id", tenantID,
		"run_id", result.ID,
		"flagged", result.Metadata.RowsFlagged,
		"missing_vc_dollars", result.TotalMissingVCDollars,
		"cached", cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
