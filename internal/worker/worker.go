// Package worker provides async record scoring for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/payrisk/internal/domain"
	"github.com/opensource-finance/payrisk/internal/feature"
	"github.com/opensource-finance/payrisk/internal/model"
	"github.com/opensource-finance/payrisk/internal/scoring"
	"github.com/opensource-finance/payrisk/internal/stats"
)

// Worker scores submitted records asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	pipeline  *feature.Pipeline
	store     *model.Store
	processor *scoring.Processor
	stats     *stats.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, pipeline *feature.Pipeline, store *model.Store, processor *scoring.Processor, statsSvc *stats.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		pipeline:  pipeline,
		store:     store,
		processor: processor,
		stats:     statsSvc,
		ctx:       ctx,
		cancel:    cancel,
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
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicRecordSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRecordSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.processRecord(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicRecordSubmitted,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRecord(ctx, msg.TenantID, msg)
}

// RecordMessage is the message payload for record scoring.
type RecordMessage struct {
	TenantID string         `json:"tenantId"`
	TraceID  string         `json:"traceId"`
	Record   map[string]any `json:"record"`
}

// processRecord runs one record through the feature pipeline and classifier.
func (w *Worker) processRecord(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var recMsg RecordMessage
	if err := json.Unmarshal(msg.Payload, &recMsg); err != nil {
		slog.Error("failed to parse record message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if recMsg.TenantID != "" {
		tenantID = recMsg.TenantID
	}

	traceID := recMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing record",
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	// 1. Feature pipeline
	pipelineStart := time.Now()
	rows, err := w.pipeline.Transform(recMsg.Record)
	if err != nil {
		slog.Error("feature pipeline failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}
	pipelineMs := time.Since(pipelineStart).Milliseconds()

	// 2. Score with the current model
	clf, err := w.store.Get()
	if err != nil {
		slog.Error("no model available",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	scoreStart := time.Now()
	probs, err := clf.PredictProba(rows)
	if err != nil {
		slog.Error("scoring failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}
	scoreMs := time.Since(scoreStart).Milliseconds()

	// 3. Build prediction record
	pred := w.processor.Process(ctx, &scoring.ScoreInput{
		TenantID:     tenantID,
		TraceID:      traceID,
		Row:          rows[0],
		Probability:  probs[0],
		ModelVersion: clf.Version,
		StartTime:    start,
		PipelineMs:   pipelineMs,
		ScoreMs:      scoreMs,
	})

	// 4. Save prediction
	if w.repo != nil {
		if err := w.repo.SavePrediction(ctx, tenantID, pred); err != nil {
			slog.Error("failed to save prediction",
				"prediction_id", pred.ID,
				"error", err,
			)
		}
	}

	// 5. Record stats counters
	if w.stats != nil {
		if err := w.stats.Record(ctx, tenantID, pred.Risk, time.Hour); err != nil {
			slog.Warn("failed to record stats",
				"prediction_id", pred.ID,
				"error", err,
			)
		}
	}

	// 6. Publish result to completion topic
	resultPayload, _ := json.Marshal(pred)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicPredictionCompleted, resultPayload); err != nil {
		slog.Error("failed to publish prediction",
			"prediction_id", pred.ID,
			"error", err,
		)
	}

	// 7. If flagged, publish to high-risk topic
	if scoring.ShouldFlag(pred) {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicHighRisk, resultPayload); err != nil {
			slog.Error("failed to publish high-risk prediction",
				"prediction_id", pred.ID,
				"error", err,
			)
		}
	}

	slog.Info("record processed",
		"prediction_id", pred.ID,
		"tenant_id", tenantID,
		"risk", pred.Risk,
		"probability", pred.Probability,
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
