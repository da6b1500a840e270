// Package scoring turns classifier probabilities into final prediction
// records with risk flags and processing metadata.
package scoring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/payrisk/internal/domain"
	"github.com/opensource-finance/payrisk/internal/feature"
	"github.com/opensource-finance/payrisk/internal/model"
)

// Processor builds prediction records from scored feature rows.
type Processor struct {
	// Threshold above which (inclusive) a record is flagged as failure risk.
	Threshold float64
}

// NewProcessor creates a processor with the standard decision boundary.
func NewProcessor() *Processor {
	return &Processor{Threshold: model.DecisionThreshold}
}

// ScoreInput contains all data needed for one prediction record.
type ScoreInput struct {
	TenantID     string
	TraceID      string
	Row          feature.Row
	Probability  float64
	ModelVersion string

	// Timings
	StartTime  time.Time
	PipelineMs int64
	ScoreMs    int64
}

// Process produces a final prediction record.
func (p *Processor) Process(ctx context.Context, input *ScoreInput) *domain.Prediction {
	risk := domain.RiskClear
	if input.Probability >= p.Threshold {
		risk = domain.RiskFlagged
	}

	return &domain.Prediction{
		ID:          uuid.New().String(),
		TenantID:    input.TenantID,
		Risk:        risk,
		Probability: input.Probability,
		Features:    input.Row,
		Timestamp:   time.Now().UTC(),
		Metadata: domain.PredictionMetadata{
			TraceID:      input.TraceID,
			PipelineMs:   input.PipelineMs,
			ScoreMs:      input.ScoreMs,
			TotalMs:      time.Since(input.StartTime).Milliseconds(),
			ModelVersion: input.ModelVersion,
		},
	}
}

// ShouldFlag returns true if the prediction indicates failure risk.
func ShouldFlag(pred *domain.Prediction) bool {
	return pred.Risk == domain.RiskFlagged
}
