package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/payrisk/internal/feature"
)

// ErrNotFitted is returned when predict is called before fit (or before
// a persisted artifact has been loaded).
var ErrNotFitted = errors.New("classifier is not fitted")

// DecisionThreshold is the probability boundary between the clear (0)
// and flagged (1) classes.
const DecisionThreshold = 0.5

// Classifier wraps the one-hot encoder and the logistic regression
// behind the fit/predict/predict-probability contract. Once fitted (or
// loaded) it is immutable and safe for concurrent use.
type Classifier struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trainedAt"`
	TrainSamples int       `json:"trainSamples"`

	// Columns pins the feature schema the classifier was fitted with.
	Columns []string `json:"columns"`

	Encoder *Encoder       `json:"encoder"`
	Model   *logisticModel `json:"model"`

	fitted bool
}

// NewClassifier creates an unfitted classifier.
func NewClassifier() *Classifier {
	return &Classifier{
		Columns: feature.Columns,
		Model:   newLogisticModel(),
	}
}

// Fit learns the encoding vocabulary and the classifier weights from
// the training rows.
func (c *Classifier) Fit(rows []feature.Row, labels []int) error {
	if len(rows) != len(labels) {
		return fmt.Errorf("rows (%d) and labels (%d) differ in length", len(rows), len(labels))
	}

	c.Encoder = FitEncoder(rows)

	if err := c.Model.fit(c.Encoder.TransformAll(rows), labels); err != nil {
		return err
	}

	c.Version = uuid.New().String()
	c.TrainedAt = time.Now().UTC()
	c.TrainSamples = len(rows)
	c.fitted = true
	return nil
}

// PredictProba returns the failure probability for each row.
// Unknown categories encode as all-zero indicators and yield a valid
// probability rather than an error.
func (c *Classifier) PredictProba(rows []feature.Row) ([]float64, error) {
	if !c.fitted {
		return nil, ErrNotFitted
	}

	probs := make([]float64, len(rows))
	for i, row := range rows {
		probs[i] = c.Model.predict(c.Encoder.Transform(row))
	}
	return probs, nil
}

// Predict returns the thresholded class for each row.
func (c *Classifier) Predict(rows []feature.Row) ([]int, error) {
	probs, err := c.PredictProba(rows)
	if err != nil {
		return nil, err
	}

	labels := make([]int, len(probs))
	for i, p := range probs {
		if p >= DecisionThreshold {
			labels[i] = 1
		}
	}
	return labels, nil
}

// Info describes a fitted classifier for the API and CLIs.
type Info struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trainedAt"`
	TrainSamples int       `json:"trainSamples"`
	Columns      []string  `json:"columns"`
	Iterations   int       `json:"iterations"`
	Converged    bool      `json:"converged"`
}

// Info returns metadata about the fitted classifier.
func (c *Classifier) Info() Info {
	return Info{
		Version:      c.Version,
		TrainedAt:    c.TrainedAt,
		TrainSamples: c.TrainSamples,
		Columns:      c.Columns,
		Iterations:   c.Model.Iterations,
		Converged:    c.Model.Converged,
	}
}
