// Package stats provides prediction volume and flag-rate tracking.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/payrisk/internal/domain"
)

// Service tracks prediction counts and flag rates per tenant.
// Fast counters live in the cache; durable counts come from the repository.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// Snapshot is a point-in-time view of prediction activity for a tenant.
type Snapshot struct {
	TenantID   string  `json:"tenantId"`
	WindowSecs int     `json:"windowSecs"`
	Total      int64   `json:"total"`
	Flagged    int64   `json:"flagged"`
	FlagRate   float64 `json:"flagRate"`
}

// NewService creates a new stats service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Record registers a completed prediction in the rolling cache counters.
// Counter failures are not fatal; the repository remains the source of truth.
func (s *Service) Record(ctx context.Context, tenantID string, risk int, window time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if s.cache == nil {
		return nil
	}

	if _, err := s.cache.IncrementCounter(ctx, tenantID, "predictions:total", window); err != nil {
		return err
	}
	if risk == domain.RiskFlagged {
		if _, err := s.cache.IncrementCounter(ctx, tenantID, "predictions:flagged", window); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns prediction counts for a tenant over the given window,
// queried from the repository.
func (s *Service) Snapshot(ctx context.Context, tenantID string, window time.Duration) (*Snapshot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-window)
	total, flagged, err := s.repo.CountPredictions(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count predictions: %w", err)
	}

	snap := &Snapshot{
		TenantID:   tenantID,
		WindowSecs: int(window.Seconds()),
		Total:      total,
		Flagged:    flagged,
	}
	if total > 0 {
		snap.FlagRate = float64(flagged) / float64(total)
	}
	return snap, nil
}
