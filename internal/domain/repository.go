package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Prediction operations
	SavePrediction(ctx context.Context, tenantID string, pred *Prediction) error
	GetPrediction(ctx context.Context, tenantID string, predID string) (*Prediction, error)
	CountPredictions(ctx context.Context, tenantID string, since time.Time) (total int64, flagged int64, err error)

	// Label rule operations (training-time rule configuration)
	SaveLabelRule(ctx context.Context, tenantID string, rule *LabelRule) error
	ListLabelRules(ctx context.Context, tenantID string) ([]*LabelRule, error)

	// Training run operations
	SaveTrainingRun(ctx context.Context, tenantID string, run *TrainingRun) error
	ListTrainingRuns(ctx context.Context, tenantID string) ([]*TrainingRun, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
