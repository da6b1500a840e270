package repository

// Schema definitions for the payrisk database.
// Compatible with both SQLite and PostgreSQL.

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    risk INTEGER NOT NULL,
    probability REAL NOT NULL,
    features TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_tenant ON predictions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_predictions_risk ON predictions(tenant_id, risk);
CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions(tenant_id, timestamp);
`

const schemaLabelRules = `
CREATE TABLE IF NOT EXISTS label_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_label_rules_tenant ON label_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_label_rules_enabled ON label_rules(tenant_id, enabled);
`

const schemaTrainingRuns = `
CREATE TABLE IF NOT EXISTS training_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    model_version TEXT NOT NULL,
    artifact_path TEXT NOT NULL,
    samples INTEGER NOT NULL,
    train_samples INTEGER NOT NULL,
    test_samples INTEGER NOT NULL,
    metrics TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_runs_tenant ON training_runs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_training_runs_created ON training_runs(tenant_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPredictions,
		schemaLabelRules,
		schemaTrainingRuns,
	}
}
