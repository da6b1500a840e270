package domain

import "time"

// TrainingRun records one offline training job and its holdout metrics.
type TrainingRun struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	ModelVersion string    `json:"modelVersion"`
	ArtifactPath string    `json:"artifactPath"`
	Samples      int       `json:"samples"`
	TrainSamples int       `json:"trainSamples"`
	TestSamples  int       `json:"testSamples"`
	Metrics      RunMetric `json:"metrics"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RunMetric holds holdout classification metrics for a training run.
type RunMetric struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}
