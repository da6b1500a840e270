// Package domain defines the core interfaces and types for payrisk.
package domain

import (
	"time"

	"github.com/opensource-finance/payrisk/internal/feature"
)

// Prediction is the stored outcome of scoring one record.
type Prediction struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Risk is the thresholded class: 1 means predicted payment failure.
	Risk int `json:"risk"`

	// Probability is the model's failure probability in [0,1].
	Probability float64 `json:"probability"`

	// Features is the derived row the classifier actually saw.
	Features feature.Row `json:"features"`

	Timestamp time.Time `json:"timestamp"`

	Metadata PredictionMetadata `json:"metadata"`
}

// PredictionMetadata carries processing information for one prediction.
type PredictionMetadata struct {
	TraceID      string `json:"traceId"`
	PipelineMs   int64  `json:"pipelineMs"`
	ScoreMs      int64  `json:"scoreMs"`
	TotalMs      int64  `json:"totalMs"`
	ModelVersion string `json:"modelVersion"`
}

// Risk flag values.
const (
	RiskClear   = 0
	RiskFlagged = 1
)
