// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/payrisk/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SavePrediction stores a prediction with tenant isolation.
func (r *SQLRepository) SavePrediction(ctx context.Context, tenantID string, pred *domain.Prediction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	features, _ := json.Marshal(pred.Features)
	metadata, _ := json.Marshal(pred.Metadata)

	query := `
		INSERT INTO predictions (
			id, tenant_id, risk, probability, features, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		pred.ID, tenantID, pred.Risk, pred.Probability,
		string(features), pred.Timestamp, string(metadata),
	)
	return err
}

// GetPrediction retrieves a prediction by ID with tenant isolation.
func (r *SQLRepository) GetPrediction(ctx context.Context, tenantID string, predID string) (*domain.Prediction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, risk, probability, features, timestamp, metadata
		FROM predictions
		WHERE tenant_id = ? AND id = ?
	`

	var pred domain.Prediction
	var features, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, predID).Scan(
		&pred.ID, &pred.TenantID, &pred.Risk, &pred.Probability,
		&features, &pred.Timestamp, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(features), &pred.Features)
	json.Unmarshal([]byte(metadata), &pred.Metadata)

	return &pred, nil
}

// CountPredictions returns the total and flagged prediction counts for a
// tenant since the given time.
func (r *SQLRepository) CountPredictions(ctx context.Context, tenantID string, since time.Time) (int64, int64, error) {
	if tenantID == "" {
		return 0, 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*), COALESCE(SUM(risk), 0)
		FROM predictions
		WHERE tenant_id = ? AND timestamp >= ?
	`

	var total, flagged int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, since).Scan(&total, &flagged)
	if err != nil {
		return 0, 0, err
	}

	return total, flagged, nil
}

// SaveLabelRule stores a label rule with tenant isolation.
func (r *SQLRepository) SaveLabelRule(ctx context.Context, tenantID string, rule *domain.LabelRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO label_rules (
			id, tenant_id, name, description, priority, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			priority = excluded.priority,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Priority, rule.Expression, enabled,
		now, now,
	)
	return err
}

// ListLabelRules retrieves all enabled label rules for a tenant,
// ordered by priority.
func (r *SQLRepository) ListLabelRules(ctx context.Context, tenantID string) ([]*domain.LabelRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, priority, expression, enabled
		FROM label_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY priority
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.LabelRule
	for rows.Next() {
		var rule domain.LabelRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Priority, &rule.Expression, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// SaveTrainingRun stores a training run record with tenant isolation.
func (r *SQLRepository) SaveTrainingRun(ctx context.Context, tenantID string, run *domain.TrainingRun) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	metrics, _ := json.Marshal(run.Metrics)

	query := `
		INSERT INTO training_runs (
			id, tenant_id, model_version, artifact_path,
			samples, train_samples, test_samples, metrics, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		run.ID, tenantID, run.ModelVersion, run.ArtifactPath,
		run.Samples, run.TrainSamples, run.TestSamples,
		string(metrics), run.CreatedAt,
	)
	return err
}

// ListTrainingRuns retrieves all training runs for a tenant, newest first.
func (r *SQLRepository) ListTrainingRuns(ctx context.Context, tenantID string) ([]*domain.TrainingRun, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, model_version, artifact_path,
			   samples, train_samples, test_samples, metrics, created_at
		FROM training_runs
		WHERE tenant_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.TrainingRun
	for rows.Next() {
		var run domain.TrainingRun
		var metrics string

		if err := rows.Scan(
			&run.ID, &run.TenantID, &run.ModelVersion, &run.ArtifactPath,
			&run.Samples, &run.TrainSamples, &run.TestSamples,
			&metrics, &run.CreatedAt,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(metrics), &run.Metrics)
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
