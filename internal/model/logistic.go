package model

import (
	"fmt"
	"math"
)

// Training hyperparameters. The iteration cap matches the original
// training configuration; the tolerance stops early on converged loss.
const (
	defaultMaxIter      = 1000
	defaultLearningRate = 0.5
	defaultTolerance    = 1e-7
)

// logisticModel is a binary logistic regression fitted by batch
// gradient descent on the log loss.
type logisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`

	MaxIter      int     `json:"maxIter"`
	LearningRate float64 `json:"learningRate"`
	Tolerance    float64 `json:"tolerance"`

	Iterations int  `json:"iterations"`
	Converged  bool `json:"converged"`
}

func newLogisticModel() *logisticModel {
	return &logisticModel{
		MaxIter:      defaultMaxIter,
		LearningRate: defaultLearningRate,
		Tolerance:    defaultTolerance,
	}
}

// fit runs gradient descent until the loss delta drops below tolerance
// or the iteration cap is reached.
func (m *logisticModel) fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("training set is empty")
	}
	if len(x) != len(y) {
		return fmt.Errorf("feature rows (%d) and labels (%d) differ in length", len(x), len(y))
	}

	dim := len(x[0])
	m.Weights = make([]float64, dim)
	m.Bias = 0
	m.Converged = false

	n := float64(len(x))
	prevLoss := math.Inf(1)

	for iter := 0; iter < m.MaxIter; iter++ {
		gradW := make([]float64, dim)
		gradB := 0.0
		loss := 0.0

		for i, xi := range x {
			p := m.predict(xi)
			err := p - float64(y[i])

			for j, xj := range xi {
				gradW[j] += err * xj
			}
			gradB += err

			loss += logLoss(p, y[i])
		}
		loss /= n

		for j := range m.Weights {
			m.Weights[j] -= m.LearningRate * gradW[j] / n
		}
		m.Bias -= m.LearningRate * gradB / n

		m.Iterations = iter + 1
		if math.Abs(prevLoss-loss) < m.Tolerance {
			m.Converged = true
			break
		}
		prevLoss = loss
	}

	return nil
}

// predict returns the failure probability for one encoded vector.
func (m *logisticModel) predict(x []float64) float64 {
	z := m.Bias
	for j, w := range m.Weights {
		z += w * x[j]
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// logLoss is the per-sample cross-entropy, clamped away from log(0).
func logLoss(p float64, y int) float64 {
	const eps = 1e-15
	p = math.Min(math.Max(p, eps), 1-eps)
	if y == 1 {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}
