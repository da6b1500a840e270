// Package model implements the classifier adapter: one-hot encoding of
// the categorical feature columns, a logistic regression classifier,
// and the persisted artifact combining both.
package model

import (
	"math"
	"sort"

	"github.com/opensource-finance/payrisk/internal/feature"
)

// Encoder maps feature rows to numeric vectors. Categorical columns are
// one-hot encoded against a vocabulary learned at fit time; a category
// unseen during fitting encodes as an all-zero indicator and is never
// an error. Numeric columns pass through with learned mean/std scaling.
type Encoder struct {
	// Vocab holds the known categories per categorical column, in
	// schema order. Category position defines the indicator index.
	Vocab []ColumnVocab `json:"vocab"`

	// Means and Stds scale the numeric columns, in schema order.
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// ColumnVocab is the learned vocabulary of one categorical column.
type ColumnVocab struct {
	Column     string   `json:"column"`
	Categories []string `json:"categories"`
}

// FitEncoder learns the vocabulary and numeric scaling from training rows.
// Categories are sorted so the encoding is deterministic across runs.
func FitEncoder(rows []feature.Row) *Encoder {
	enc := &Encoder{
		Vocab: make([]ColumnVocab, len(feature.CategoricalColumns)),
		Means: make([]float64, len(feature.NumericColumns)),
		Stds:  make([]float64, len(feature.NumericColumns)),
	}

	for i, col := range feature.CategoricalColumns {
		seen := make(map[string]struct{})
		for _, row := range rows {
			seen[row.Categoricals()[i]] = struct{}{}
		}
		categories := make([]string, 0, len(seen))
		for c := range seen {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		enc.Vocab[i] = ColumnVocab{Column: col, Categories: categories}
	}

	n := float64(len(rows))
	for j := range feature.NumericColumns {
		var sum float64
		for _, row := range rows {
			sum += row.Numerics()[j]
		}
		mean := 0.0
		if n > 0 {
			mean = sum / n
		}

		var sqsum float64
		for _, row := range rows {
			d := row.Numerics()[j] - mean
			sqsum += d * d
		}
		std := 0.0
		if n > 0 {
			std = math.Sqrt(sqsum / n)
		}
		if std == 0 {
			std = 1 // constant column, avoid division by zero
		}

		enc.Means[j] = mean
		enc.Stds[j] = std
	}

	return enc
}

// Width returns the length of the encoded vector.
func (e *Encoder) Width() int {
	w := len(feature.NumericColumns)
	for _, v := range e.Vocab {
		w += len(v.Categories)
	}
	return w
}

// Transform encodes one feature row into a numeric vector.
func (e *Encoder) Transform(row feature.Row) []float64 {
	vec := make([]float64, 0, e.Width())

	cats := row.Categoricals()
	for i, vocab := range e.Vocab {
		indicator := make([]float64, len(vocab.Categories))
		for j, category := range vocab.Categories {
			if cats[i] == category {
				indicator[j] = 1
				break
			}
		}
		vec = append(vec, indicator...)
	}

	nums := row.Numerics()
	for j := range nums {
		vec = append(vec, (nums[j]-e.Means[j])/e.Stds[j])
	}

	return vec
}

// TransformAll encodes a batch of rows.
func (e *Encoder) TransformAll(rows []feature.Row) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = e.Transform(row)
	}
	return out
}
