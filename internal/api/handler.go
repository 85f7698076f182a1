package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/agencyops/harrier/internal/domain"
	"github.com/agencyops/harrier/internal/exclusion"
	"github.com/agencyops/harrier/internal/ingest"
	"github.com/agencyops/harrier/internal/recon"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	service *recon.Service
	custom  *exclusion.CustomEngine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, service *recon.Service, custom *exclusion.CustomEngine, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		service: service,
		custom:  custom,
		version: version,
	}
}

// UploadResponse is the response for POST /statements.
type UploadResponse struct {
	Statement *domain.Statement `json:"statement"`
	Message   string            `json:"message,omitempty"`
}

// UploadStatement handles POST /statements: it parses a carrier CSV export,
// persists the statement, and announces it on the bus for async validation.
// The CSV comes either as a multipart "file" field or as the raw request
// body; carrier, agentNumber, periodStart, and periodEnd arrive as form or
// query values.
func (h *Handler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	csvBody, err := statementBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	defer csvBody.Close()

	carrier := formValue(r, "carrier")
	if carrier == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "carrier is required",
		})
		return
	}

	periodStart, err := parseDate(formValue(r, "periodStart"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "periodStart must be a valid date (YYYY-MM-DD)",
		})
		return
	}
	periodEnd, err := parseDate(formValue(r, "periodEnd"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "periodEnd must be a valid date (YYYY-MM-DD)",
		})
		return
	}

	txs, err := ingest.ReadCSV(csvBody)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to parse statement CSV: " + err.Error(),
		})
		return
	}

	stmt := ingest.NewStatement(tenantID, carrier, formValue(r, "agentNumber"), periodStart, periodEnd, txs)

	if err := h.repo.SaveStatement(ctx, tenantID, stmt, txs); err != nil {
		slog.Error("failed to save statement",
			"tenant_id", tenantID,
			"statement_id", stmt.ID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save statement",
		})
		return
	}

	message := "Statement stored. Call POST /validate to reconcile it."
	if h.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"statementId": stmt.ID,
			"tenantId":    tenantID,
			"traceId":     traceID,
			"rateTableId": formValue(r, "rateTableId"),
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicStatementIngested, payload); err != nil {
			slog.Error("failed to publish statement ingested event",
				"statement_id", stmt.ID,
				"error", err,
			)
		} else {
			message = "Statement stored and queued for validation."
		}
	}

	slog.Info("statement uploaded",
		"tenant_id", tenantID,
		"statement_id", stmt.ID,
		"carrier", carrier,
		"rows", stmt.RowCount,
	)

	writeJSON(w, http.StatusCreated, UploadResponse{
		Statement: stmt,
		Message:   message,
	})
}

// ValidateRequest is the request body for POST /validate. Either a stored
// statement ID or an inline transaction list must be supplied.
type ValidateRequest struct {
	StatementID string `json:"statementId,omitempty"`
	RateTableID string `json:"rateTableId,omitempty"`

	// Transactions validates ad-hoc rows without a stored statement.
	// PeriodStart is required alongside them; PriorTransactions are optional.
	Transactions      []domain.StatementTransaction `json:"transactions,omitempty"`
	PriorTransactions []domain.StatementTransaction `json:"priorTransactions,omitempty"`
	PeriodStart       string                        `json:"periodStart,omitempty"`

	EliteAgency           bool    `json:"eliteAgency,omitempty"`
	CancellationThreshold float64 `json:"cancellationThreshold,omitempty"`
	Epsilon               float64 `json:"epsilon,omitempty"`
	AAPLevel              string  `json:"aapLevel,omitempty"`
	State                 string  `json:"state,omitempty"`
}

// ValidateResponse is the response for POST /validate.
type ValidateResponse struct {
	Cached bool                     `json:"cached"`
	Run    *domain.ValidationResult `json:"run"`
}

// Validate handles POST /validate: a synchronous reconciliation run over a
// stored statement.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.StatementID == "" && len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "statementId or transactions is required",
		})
		return
	}

	cfg := domain.ValidationConfig{
		EliteAgency:           req.EliteAgency,
		CancellationThreshold: req.CancellationThreshold,
		Epsilon:               req.Epsilon,
		AAPLevel:              req.AAPLevel,
		State:                 req.State,
	}

	if req.StatementID == "" {
		h.validateInline(w, r, &req, cfg)
		return
	}

	result, cached, err := h.service.ValidateStatement(ctx, &recon.StatementRunRequest{
		TenantID:    tenantID,
		StatementID: req.StatementID,
		RateTableID: req.RateTableID,
		TraceID:     traceID,
		Config:      cfg,
	})
	if err != nil {
		slog.Error("statement validation failed",
			"tenant_id", tenantID,
			"statement_id", req.StatementID,
			"error", err,
		)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "validation failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{
		Cached: cached,
		Run:    result,
	})
}

// validateInline reconciles transactions supplied directly in the request
// body. Inline runs are persisted but never served from the run cache.
func (h *Handler) validateInline(w http.ResponseWriter, r *http.Request, req *ValidateRequest, cfg domain.ValidationConfig) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	if req.PeriodStart == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "periodStart is required with inline transactions",
		})
		return
	}
	periodStart, err := parseDate(req.PeriodStart)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "periodStart must be a valid date (YYYY-MM-DD)",
		})
		return
	}
	cfg.PeriodStart = periodStart

	result, err := h.service.ValidateInline(ctx, &recon.InlineRunRequest{
		TenantID:    tenantID,
		RateTableID: req.RateTableID,
		TraceID:     traceID,
		Config:      cfg,
		Current:     req.Transactions,
		Prior:       req.PriorTransactions,
	})
	if err != nil {
		slog.Error("inline validation failed",
			"tenant_id", tenantID,
			"error", err,
		)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "validation failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{
		Cached: false,
		Run:    result,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetStatement retrieves a statement header by ID.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	stmtID := chi.URLParam(r, "id")

	stmt, err := h.repo.GetStatement(ctx, tenantID, stmtID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "statement not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, stmt)
}

// ListStatementRuns retrieves all validation runs for a statement.
func (h *Handler) ListStatementRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	stmtID := chi.URLParam(r, "id")

	runs, err := h.repo.ListRuns(ctx, tenantID, stmtID)
	if err != nil {
		slog.Error("failed to list runs", "statement_id", stmtID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun retrieves a validation run by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	runID := chi.URLParam(r, "id")

	run, err := h.repo.GetRun(ctx, tenantID, runID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListRateTables returns the tenant's stored rate tables.
func (h *Handler) ListRateTables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	tables, err := h.repo.ListRateTables(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list rate tables", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rate tables",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rateTables": tables,
		"count":      len(tables),
	})
}

// GetRateTable retrieves a rate table by ID.
func (h *Handler) GetRateTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	tableID := chi.URLParam(r, "id")

	table, err := h.repo.GetRateTable(ctx, tenantID, tableID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rate table not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, table)
}

// CreateRateTable creates or versions a rate table.
func (h *Handler) CreateRateTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var table domain.RateTable
	if err := json.NewDecoder(r.Body).Decode(&table); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if table.ID == "" || table.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}
	if len(table.Entries) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one rate entry is required",
		})
		return
	}
	for i := range table.Entries {
		if table.Entries[i].Rate < 0 || table.Entries[i].Rate > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "rate must be a ratio between 0 and 1",
			})
			return
		}
	}

	if table.Version == "" {
		table.Version = "1"
	}

	if err := h.repo.SaveRateTable(ctx, tenantID, &table); err != nil {
		slog.Error("failed to save rate table", "id", table.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rate table",
		})
		return
	}

	slog.Info("rate table created", "id", table.ID, "name", table.Name)
	writeJSON(w, http.StatusCreated, &table)
}

// ListCustomRules returns the custom exclusion rules currently loaded in the
// engine. Stored rules apply after POST /rules/reload.
func (h *Handler) ListCustomRules(w http.ResponseWriter, r *http.Request) {
	if h.custom == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "custom rule engine not available",
		})
		return
	}

	loaded := h.custom.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetCustomRule retrieves a stored custom rule by ID.
func (h *Handler) GetCustomRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetCustomRule(ctx, tenantID, ruleID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateCustomRule validates and stores a custom exclusion rule. After
// saving, call POST /rules/reload to hot-reload the engine.
func (h *Handler) CreateCustomRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var rule domain.CustomRuleConfig
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.ID == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and expression are required",
		})
		return
	}

	if rule.Version == "" {
		rule.Version = "1"
	}

	// Compile-check the expression and reason before persisting.
	if h.custom != nil {
		if err := h.custom.ValidateRule(&rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid rule: " + err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveCustomRule(ctx, tenantID, &rule); err != nil {
		slog.Error("failed to save custom rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("custom rule created", "id", rule.ID, "reason", rule.Reason)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    &rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteCustomRule soft-deletes a stored custom rule and reloads the engine.
func (h *Handler) DeleteCustomRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteCustomRule(ctx, tenantID, ruleID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	if h.service != nil {
		if _, err := h.service.ReloadCustomRules(ctx, tenantID); err != nil {
			slog.Error("failed to reload rules after delete", "error", err)
		}
	}

	slog.Info("custom rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadCustomRules reloads the tenant's stored rules into the engine.
func (h *Handler) ReloadCustomRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.service == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "validation service not available",
		})
		return
	}

	count, err := h.service.ReloadCustomRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to reload custom rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// statementBody returns the CSV reader for an upload request.
func statementBody(r *http.Request) (io.ReadCloser, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		return file, nil
	}
	return r.Body, nil
}

// formValue reads a field from the form body or the query string.
func formValue(r *http.Request, key string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
