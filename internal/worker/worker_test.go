package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agencyops/harrier/internal/bus"
	"github.com/agencyops/harrier/internal/domain"
	"github.com/agencyops/harrier/internal/recon"
	"github.com/agencyops/harrier/internal/repository"
)

// newTestService builds a recon service over a throwaway sqlite store with a
// flat 3% rate table and one statement containing an unexplained gap row.
func newTestService(t *testing.T, eventBus domain.EventBus, tenantID string) *recon.Service {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()

	if err := repo.SaveRateTable(ctx, tenantID, &domain.RateTable{
		ID:      "rt-flat",
		Name:    "Flat 3%",
		Version: "1",
		Enabled: true,
		Entries: []domain.RateEntry{{Rate: 0.03}},
	}); err != nil {
		t.Fatalf("failed to save rate table: %v", err)
	}

	stmt := &domain.Statement{
		ID:          "stmt-001",
		Carrier:     "acme-mutual",
		AgentNumber: "0451",
		PeriodStart: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		RowCount:    2,
		Digest:      "digest-001",
		UploadedAt:  time.Now().UTC(),
	}
	rows := []domain.StatementTransaction{
		{PolicyNumber: "POL-1", RowNumber: 1, WrittenPremium: 1000, VCAmount: 30},
		{PolicyNumber: "POL-2", RowNumber: 2, WrittenPremium: 100, VCAmount: 0},
	}
	if err := repo.SaveStatement(ctx, tenantID, stmt, rows); err != nil {
		t.Fatalf("failed to save statement: %v", err)
	}

	return recon.NewService(repo, nil, eventBus, nil, nil)
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, newTestService(t, eventBus, "tenant-001"))

		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}

		if err := w.Start(cfg); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessStatement", func(t *testing.T) {
		tenantID := "tenant-test"
		w := NewWorker(eventBus, newTestService(t, eventBus, tenantID))

		w.Start(Config{TenantIDs: []string{tenantID}})
		defer w.Stop()

		var completedReceived atomic.Bool
		var completedPayload []byte

		eventBus.Subscribe(context.Background(), tenantID, domain.TopicValidationCompleted, func(ctx context.Context, msg *domain.Message) error {
			completedPayload = msg.Payload
			completedReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		stmtMsg := StatementMessage{
			StatementID: "stmt-001",
			TenantID:    tenantID,
			TraceID:     "trace-001",
			RateTableID: "rt-flat",
		}

		payload, _ := json.Marshal(stmtMsg)
		if err := eventBus.Publish(context.Background(), tenantID, domain.TopicStatementIngested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !completedReceived.Load() {
			t.Fatal("expected validation result to be published")
		}

		var result domain.ValidationResult
		if err := json.Unmarshal(completedPayload, &result); err != nil {
			t.Fatalf("failed to parse validation result: %v", err)
		}

		if result.StatementID != "stmt-001" {
			t.Errorf("expected statementID 'stmt-001', got '%s'", result.StatementID)
		}
		if result.TenantID != tenantID {
			t.Errorf("expected tenantID '%s', got '%s'", tenantID, result.TenantID)
		}
		if result.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", result.Metadata.TraceID)
		}
		if result.TotalMissingVCDollars != 3.0 {
			t.Errorf("expected $3.00 missing, got %.2f", result.TotalMissingVCDollars)
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		tenantID := "tenant-alert"
		w := NewWorker(eventBus, newTestService(t, eventBus, tenantID))

		w.Start(Config{TenantIDs: []string{tenantID}})
		defer w.Stop()

		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), tenantID, domain.TopicAlertUnderpayment, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// The fixture statement carries an unpaid gap row, so the run alerts.
		stmtMsg := StatementMessage{
			StatementID: "stmt-001",
			TenantID:    tenantID,
			RateTableID: "rt-flat",
		}

		payload, _ := json.Marshal(stmtMsg)
		eventBus.Publish(context.Background(), tenantID, domain.TopicStatementIngested, payload)

		time.Sleep(100 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected underpayment alert to be published")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, newTestService(t, eventBus, "tenant-a"))

		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestStatementMessageParsing(t *testing.T) {
	msg := StatementMessage{
		StatementID:           "stmt-123",
		TenantID:              "tenant-001",
		TraceID:               "trace-456",
		RateTableID:           "rt-standard",
		EliteAgency:           true,
		CancellationThreshold: 25000,
		AAPLevel:              "AAP-2",
		State:                 "MA",
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed StatementMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.StatementID != msg.StatementID {
		t.Errorf("expected StatementID '%s', got '%s'", msg.StatementID, parsed.StatementID)
	}
	if parsed.CancellationThreshold != msg.CancellationThreshold {
		t.Errorf("expected threshold %.0f, got %.0f", msg.CancellationThreshold, parsed.CancellationThreshold)
	}
	if !parsed.EliteAgency {
		t.Error("expected EliteAgency to round-trip")
	}
}
