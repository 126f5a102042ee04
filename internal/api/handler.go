package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
	"github.com/opensource-finance/osprey-riskscore/internal/metrics"
	"github.com/opensource-finance/osprey-riskscore/internal/pipeline"
	"github.com/opensource-finance/osprey-riskscore/internal/scoring"
	"github.com/opensource-finance/osprey-riskscore/internal/worker"
)

// maxBodyBytes bounds request bodies, batch runs included.
const maxBodyBytes = 32 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline *pipeline.Pipeline
	worker   *worker.Worker
	version  string
}

// NewHandler creates a new API handler around a configured pipeline.
// w may be nil, which disables ingestion.
func NewHandler(p *pipeline.Pipeline, version string, w *worker.Worker) *Handler {
	return &Handler{pipeline: p, worker: w, version: version}
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	TransactionID string               `json:"transactionId,omitempty"`
	RiskScore     int                  `json:"riskScore"`
	RiskCategory  domain.RiskCategory  `json:"riskCategory"`
	Contributions domain.Contributions `json:"contributions"`
	Metadata      ResponseMetadata     `json:"metadata"`
}

// ResponseMetadata is attached to scoring responses.
type ResponseMetadata struct {
	TraceID string `json:"traceId"`
	Version string `json:"version"`
}

// RunRequest is the request body for POST /runs.
type RunRequest struct {
	Source  string                     `json:"source"`
	Records []domain.TransactionRecord `json:"records"`
	TopN    int                        `json:"topN,omitempty"`
	Filter  string                     `json:"filter,omitempty"`
}

// RunResponse is the response for POST /runs.
type RunResponse struct {
	Run        *domain.Run         `json:"run"`
	Rejections []scoring.Rejection `json:"rejections"`
	Filtered   int                 `json:"filtered"`
}

// Health reports component health. It always answers 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := h.pipeline

	components := map[string]string{}
	status := "healthy"
	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			components[name] = "down"
			status = "degraded"
			return
		}
		components[name] = "up"
	}

	if p.Repo != nil {
		check("repository", func() error { return p.Repo.Ping(ctx) })
	}
	if p.Cache != nil {
		check("cache", func() error { return p.Cache.Ping(ctx) })
	}
	if p.Bus != nil {
		check("bus", func() error { return p.Bus.Ping(ctx) })
	}

	resp := map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	}
	if c, ok := p.Cache.(interface{ Stats() (int, int) }); ok {
		size, capacity := c.Stats()
		resp["cache"] = map[string]int{"size": size, "capacity": capacity}
	}
	if b, ok := p.Bus.(interface{ Dropped() int64 }); ok {
		resp["bus"] = map[string]int64{"dropped": b.Dropped()}
	}
	if h.worker != nil {
		stats := h.worker.GetStats()
		if stats.SubscriptionCount == 0 {
			components["worker"] = "down"
			resp["status"] = "degraded"
		} else {
			components["worker"] = "up"
		}
		resp["worker"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready answers 503 until the repository is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if repo := h.pipeline.Repo; repo != nil {
		if err := repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "repository unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Weights returns the active weight table.
func (h *Handler) Weights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Scorer.Weights().Snapshot())
}

// Score handles POST /score for a single record.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var rec domain.TransactionRecord
	if !decodeBody(w, r, &rec) {
		return
	}

	st, contrib, err := h.pipeline.Scorer.Assess(rec)
	if err != nil {
		if h.pipeline.Metrics != nil {
			h.pipeline.Metrics.RecordRejected(1)
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.pipeline.Metrics != nil {
		h.pipeline.Metrics.RecordScored(st)
	}

	writeJSON(w, http.StatusOK, ScoreResponse{
		TransactionID: st.TransactionID,
		RiskScore:     st.RiskScore,
		RiskCategory:  st.RiskCategory,
		Contributions: contrib,
		Metadata: ResponseMetadata{
			TraceID: GetTraceID(r.Context()),
			Version: h.version,
		},
	})
}

// CreateRun handles POST /runs: score a batch and store it as a run.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req RunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records must not be empty")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	res, err := h.pipeline.Run(ctx, tenantID, pipeline.Request{
		Source:  req.Source,
		Origin:  metrics.OriginAPI,
		Records: req.Records,
		Filter:  req.Filter,
		TopN:    req.TopN,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidFilter) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("run failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "run failed")
		return
	}

	rejections := res.Rejections
	if rejections == nil {
		rejections = []scoring.Rejection{}
	}
	writeJSON(w, http.StatusCreated, RunResponse{
		Run:        res.Run,
		Rejections: rejections,
		Filtered:   res.Filtered,
	})
}

// ListRuns handles GET /runs?limit=N.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pipeline.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.pipeline.Repo.ListRuns(ctx, GetTenantID(ctx), limit)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	run, err := h.pipeline.GetRun(ctx, GetTenantID(ctx), runID)
	if err != nil {
		h.lookupError(w, "run", runID, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRunTransactions handles GET /runs/{id}/transactions, returning the
// scored rows in input order.
func (h *Handler) ListRunTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	runID := chi.URLParam(r, "id")

	if h.pipeline.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	if _, err := h.pipeline.GetRun(ctx, tenantID, runID); err != nil {
		h.lookupError(w, "run", runID, err)
		return
	}
	rows, err := h.pipeline.Repo.ListScoredTransactions(ctx, tenantID, runID)
	if err != nil {
		h.lookupError(w, "transactions", runID, err)
		return
	}
	if rows == nil {
		rows = []domain.ScoredTransaction{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runId":        runID,
		"transactions": rows,
		"count":        len(rows),
	})
}

// GetRunTransaction handles GET /runs/{id}/transactions/{txId}.
func (h *Handler) GetRunTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")
	txID := chi.URLParam(r, "txId")

	if h.pipeline.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	st, err := h.pipeline.Repo.GetScoredTransaction(ctx, GetTenantID(ctx), runID, txID)
	if err != nil {
		h.lookupError(w, "transaction", txID, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Ingest handles POST /ingest: validate a record and queue it for the
// worker. Records no worker would consume are refused with 503.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.pipeline.Bus == nil || h.worker == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion not available")
		return
	}
	busTenant, ok := h.worker.Route(tenantID)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no worker consumes this tenant")
		return
	}

	var rec domain.TransactionRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	if err := scoring.Validate(rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, _ := json.Marshal(domain.IngestedTransaction{TenantID: tenantID, Transaction: rec})
	if err := h.pipeline.Bus.Publish(ctx, busTenant, domain.TopicTransactionIngested, payload); err != nil {
		slog.Error("failed to publish transaction", "tx_id", rec.TransactionID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue transaction")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":        "queued",
		"transactionId": rec.TransactionID,
		"topic":         domain.TopicTransactionIngested,
	})
}

func (h *Handler) lookupError(w http.ResponseWriter, kind, id string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, kind+" not found")
		return
	}
	slog.Error("lookup failed", "kind", kind, "id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "failed to load "+kind)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
