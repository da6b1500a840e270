package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opensource-finance/payrisk/internal/feature"
)

// Save persists the fitted classifier as a single JSON artifact. The
// write is atomic (temp file + rename) so a serving shell never loads a
// half-written model.
func (c *Classifier) Save(path string) error {
	if !c.fitted {
		return ErrNotFitted
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".payrisk-model-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// Load reads a persisted artifact and returns a ready classifier.
// The artifact's column set must match the current feature schema.
func Load(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var c Classifier
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}

	if c.Encoder == nil || c.Model == nil || len(c.Model.Weights) == 0 {
		return nil, fmt.Errorf("artifact %s is incomplete", path)
	}
	if err := checkColumns(c.Columns); err != nil {
		return nil, err
	}

	c.fitted = true
	return &c, nil
}

func checkColumns(columns []string) error {
	if len(columns) != len(feature.Columns) {
		return fmt.Errorf("%w: artifact has %d columns, want %d",
			feature.ErrSchema, len(columns), len(feature.Columns))
	}
	for i, col := range feature.Columns {
		if columns[i] != col {
			return fmt.Errorf("%w: artifact column %d is %q, want %q",
				feature.ErrSchema, i, columns[i], col)
		}
	}
	return nil
}
