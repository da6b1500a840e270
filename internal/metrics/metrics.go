// Package metrics computes binary classification metrics for training
// evaluation reports.
package metrics

import (
	"fmt"
	"strings"
)

// Report holds the confusion matrix and derived metrics of a binary
// classifier evaluated against ground-truth labels.
type Report struct {
	TruePositives  int `json:"truePositives"`
	FalsePositives int `json:"falsePositives"`
	TrueNegatives  int `json:"trueNegatives"`
	FalseNegatives int `json:"falseNegatives"`

	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	Support int `json:"support"`
}

// Evaluate compares predictions against ground truth. The positive
// class is 1 (payment failure).
func Evaluate(yTrue, yPred []int) (Report, error) {
	if len(yTrue) != len(yPred) {
		return Report{}, fmt.Errorf("labels (%d) and predictions (%d) differ in length", len(yTrue), len(yPred))
	}

	var r Report
	r.Support = len(yTrue)

	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			r.TruePositives++
		case yTrue[i] == 0 && yPred[i] == 1:
			r.FalsePositives++
		case yTrue[i] == 0 && yPred[i] == 0:
			r.TrueNegatives++
		default:
			r.FalseNegatives++
		}
	}

	if r.Support > 0 {
		r.Accuracy = float64(r.TruePositives+r.TrueNegatives) / float64(r.Support)
	}
	if r.TruePositives+r.FalsePositives > 0 {
		r.Precision = float64(r.TruePositives) / float64(r.TruePositives+r.FalsePositives)
	}
	if r.TruePositives+r.FalseNegatives > 0 {
		r.Recall = float64(r.TruePositives) / float64(r.TruePositives+r.FalseNegatives)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}

	return r, nil
}

// String renders a classification report for terminal output.
func (r Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Classification report (support=%d)\n\n", r.Support)
	fmt.Fprintf(&b, "  Accuracy:   %.4f\n", r.Accuracy)
	fmt.Fprintf(&b, "  Precision:  %.4f\n", r.Precision)
	fmt.Fprintf(&b, "  Recall:     %.4f\n", r.Recall)
	fmt.Fprintf(&b, "  F1 score:   %.4f\n\n", r.F1)
	fmt.Fprintf(&b, "  Confusion matrix:\n")
	fmt.Fprintf(&b, "                  predicted 0    predicted 1\n")
	fmt.Fprintf(&b, "    actual 0      %11d    %11d\n", r.TrueNegatives, r.FalsePositives)
	fmt.Fprintf(&b, "    actual 1      %11d    %11d\n", r.FalseNegatives, r.TruePositives)

	return b.String()
}
