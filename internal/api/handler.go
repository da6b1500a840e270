package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/payrisk/internal/domain"
	"github.com/opensource-finance/payrisk/internal/feature"
	"github.com/opensource-finance/payrisk/internal/model"
	"github.com/opensource-finance/payrisk/internal/rules"
	"github.com/opensource-finance/payrisk/internal/scoring"
	"github.com/opensource-finance/payrisk/internal/stats"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	pipeline  *feature.Pipeline
	store     *model.Store
	processor *scoring.Processor
	engine    *rules.Engine
	stats     *stats.Service
	version   string

	artifactPath  string
	scoreCacheTTL time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, pipeline *feature.Pipeline, store *model.Store, processor *scoring.Processor, engine *rules.Engine, statsSvc *stats.Service, version string, modelCfg domain.ModelConfig) *Handler {
	ttl := time.Duration(modelCfg.ScoreCacheTTL) * time.Second
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Handler{
		repo:          repo,
		cache:         cache,
		bus:           bus,
		pipeline:      pipeline,
		store:         store,
		processor:     processor,
		engine:        engine,
		stats:         statsSvc,
		version:       version,
		artifactPath:  modelCfg.ArtifactPath,
		scoreCacheTTL: ttl,
	}
}

// PredictResponse is the response for POST /predict.
type PredictResponse struct {
	PredictionID       string  `json:"predictionId"`
	FailureRisk        int     `json:"payment_failure_risk"`
	FailureProbability float64 `json:"failure_probability"`
	Cached             bool    `json:"cached"`
	Metadata           struct {
		TraceID      string `json:"traceId"`
		PipelineMs   int64  `json:"pipelineMs"`
		ScoreMs      int64  `json:"scoreMs"`
		TotalMs      int64  `json:"totalMs"`
		ModelVersion string `json:"modelVersion"`
	} `json:"metadata"`
}

// Predict handles POST /predict requests for a single payment record.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	// Parse request: one raw payment record, arbitrarily nested
	var record map[string]any
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// 1. Feature pipeline
	pipelineStart := time.Now()
	rows, err := h.pipeline.Transform(record)
	if err != nil {
		writeJSON(w, featureErrorStatus(err), map[string]string{
			"error": err.Error(),
		})
		return
	}
	pipelineMs := time.Since(pipelineStart).Milliseconds()
	row := rows[0]

	// 2. Get the current model
	clf, err := h.store.Get()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no trained model loaded",
		})
		return
	}

	// 3. Check the score cache: identical rows scored by the same model
	// version skip re-scoring
	rowHash := hashRow(row)
	cached := false
	var probability float64
	var scoreMs int64

	if h.cache != nil {
		if cs, cerr := h.cache.GetScore(ctx, tenantID, rowHash); cerr == nil && cs != nil && cs.ModelVersion == clf.Version {
			probability = cs.Probability
			cached = true
		}
	}

	// 4. Score if not cached
	if !cached {
		scoreStart := time.Now()
		probs, perr := clf.PredictProba(rows)
		if perr != nil {
			if errors.Is(perr, model.ErrNotFitted) {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error": "no trained model loaded",
				})
				return
			}
			slog.Error("scoring failed", "trace_id", traceID, "error", perr)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "scoring failed",
			})
			return
		}
		probability = probs[0]
		scoreMs = time.Since(scoreStart).Milliseconds()
	}

	// 5. Build and persist prediction record
	pred := h.processor.Process(ctx, &scoring.ScoreInput{
		TenantID:     tenantID,
		TraceID:      traceID,
		Row:          row,
		Probability:  probability,
		ModelVersion: clf.Version,
		StartTime:    start,
		PipelineMs:   pipelineMs,
		ScoreMs:      scoreMs,
	})

	if h.repo != nil {
		if err := h.repo.SavePrediction(ctx, tenantID, pred); err != nil {
			slog.Error("failed to save prediction", "prediction_id", pred.ID, "error", err)
		}
	}

	// 6. Populate score cache and stats counters
	if h.cache != nil && !cached {
		_ = h.cache.SetScore(ctx, tenantID, rowHash, &domain.CachedScore{
			Risk:         pred.Risk,
			Probability:  pred.Probability,
			ModelVersion: clf.Version,
		}, h.scoreCacheTTL)
	}

	if h.stats != nil {
		if err := h.stats.Record(ctx, tenantID, pred.Risk, time.Hour); err != nil {
			slog.Warn("failed to record stats", "prediction_id", pred.ID, "error", err)
		}
	}

	// 7. Publish events
	if h.bus != nil {
		payload, _ := json.Marshal(pred)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicPredictionCompleted, payload); err != nil {
			slog.Error("failed to publish prediction", "prediction_id", pred.ID, "error", err)
		}
		if scoring.ShouldFlag(pred) {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicHighRisk, payload); err != nil {
				slog.Error("failed to publish high-risk prediction", "prediction_id", pred.ID, "error", err)
			}
		}
	}

	// 8. Respond
	resp := PredictResponse{
		PredictionID:       pred.ID,
		FailureRisk:        pred.Risk,
		FailureProbability: pred.Probability,
		Cached:             cached,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.PipelineMs = pipelineMs
	resp.Metadata.ScoreMs = scoreMs
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.ModelVersion = clf.Version

	writeJSON(w, http.StatusOK, resp)
}

// BatchResult is one element of the POST /predict/batch response.
type BatchResult struct {
	PredictionID       string  `json:"predictionId"`
	FailureRisk        int     `json:"payment_failure_risk"`
	FailureProbability float64 `json:"failure_probability"`
}

// PredictBatch handles POST /predict/batch requests.
// Accepts a JSON array of records or a single record object.
func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var input any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	pipelineStart := time.Now()
	rows, err := h.pipeline.Transform(input)
	if err != nil {
		writeJSON(w, featureErrorStatus(err), map[string]string{
			"error": err.Error(),
		})
		return
	}
	pipelineMs := time.Since(pipelineStart).Milliseconds()

	clf, err := h.store.Get()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no trained model loaded",
		})
		return
	}

	scoreStart := time.Now()
	probs, err := clf.PredictProba(rows)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}
	scoreMs := time.Since(scoreStart).Milliseconds()

	results := make([]BatchResult, 0, len(rows))
	for i, row := range rows {
		pred := h.processor.Process(ctx, &scoring.ScoreInput{
			TenantID:     tenantID,
			TraceID:      traceID,
			Row:          row,
			Probability:  probs[i],
			ModelVersion: clf.Version,
			StartTime:    start,
			PipelineMs:   pipelineMs,
			ScoreMs:      scoreMs,
		})

		if h.repo != nil {
			if err := h.repo.SavePrediction(ctx, tenantID, pred); err != nil {
				slog.Error("failed to save prediction", "prediction_id", pred.ID, "error", err)
			}
		}
		if h.stats != nil {
			_ = h.stats.Record(ctx, tenantID, pred.Risk, time.Hour)
		}

		results = append(results, BatchResult{
			PredictionID:       pred.ID,
			FailureRisk:        pred.Risk,
			FailureProbability: pred.Probability,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
		"metadata": map[string]any{
			"traceId":      traceID,
			"pipelineMs":   pipelineMs,
			"scoreMs":      scoreMs,
			"totalMs":      time.Since(start).Milliseconds(),
			"modelVersion": clf.Version,
		},
	})
}

// GetPrediction retrieves a stored prediction by ID.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	predID := chi.URLParam(r, "id")

	if predID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "prediction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	pred, err := h.repo.GetPrediction(ctx, tenantID, predID)
	if err != nil {
		slog.Error("failed to get prediction", "id", predID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "prediction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, pred)
}

// Stats returns prediction volume and flag rate for the tenant.
// The window query parameter is in seconds (default 3600).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	window := time.Hour
	if ws := r.URL.Query().Get("window"); ws != "" {
		secs, err := strconv.Atoi(ws)
		if err != nil || secs <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "window must be a positive integer (seconds)",
			})
			return
		}
		window = time.Duration(secs) * time.Second
	}

	if h.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "stats not available",
		})
		return
	}

	snap, err := h.stats.Snapshot(ctx, tenantID, window)
	if err != nil {
		slog.Error("failed to build stats snapshot", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// GetModel returns metadata about the currently loaded classifier.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	clf, err := h.store.Get()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no trained model loaded",
		})
		return
	}

	writeJSON(w, http.StatusOK, clf.Info())
}

// ReloadModel re-reads the classifier artifact from disk and hot-swaps it.
func (h *Handler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	clf, err := h.store.Reload(h.artifactPath)
	if err != nil {
		slog.Error("failed to reload model", "path", h.artifactPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload model: " + err.Error(),
		})
		return
	}

	slog.Info("model reloaded", "path", h.artifactPath, "version", clf.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "model reloaded successfully",
		"model":   clf.Info(),
	})
}

// ListRules returns all label rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a label rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a label rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// CreateRule creates a new label rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.LabelRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Expression:  req.Expression,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression before persisting
	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveLabelRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save label rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("label rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all label rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListLabelRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.LoadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("label rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// ListTrainingRuns returns all recorded training runs for the tenant.
func (h *Handler) ListTrainingRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	runs, err := h.repo.ListTrainingRuns(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list training runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list training runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
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

	// A server without a trained model can serve everything but /predict
	if _, err := h.store.Get(); err != nil {
		status = "degraded"
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

// featureErrorStatus maps pipeline errors to HTTP status codes.
// Input-shape problems are the caller's fault; anything else is ours.
func featureErrorStatus(err error) int {
	switch {
	case errors.Is(err, feature.ErrInputFormat),
		errors.Is(err, feature.ErrSchema),
		errors.Is(err, feature.ErrMissingField),
		errors.Is(err, feature.ErrDerivation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// hashRow produces a deterministic cache key for a feature row.
func hashRow(row feature.Row) string {
	data, _ := json.Marshal(row)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
