// Payrisk - Payment failure prediction that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Trainer for the payment failure classifier.
//
// Usage:
//   go run cmd/payrisk-train/main.go -data customer_payment_data.json -out payment_failure_model.json
//
// This tool:
//   1. Reads raw payment records from a JSON file
//   2. Runs them through the feature pipeline
//   3. Labels them with the rule engine (database rules if -db, else built-ins)
//   4. Fits the classifier on a train split and evaluates on the held-out split
//   5. Prints a classification report and saves the model artifact
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/payrisk/internal/domain"
	"github.com/opensource-finance/payrisk/internal/feature"
	"github.com/opensource-finance/payrisk/internal/metrics"
	"github.com/opensource-finance/payrisk/internal/model"
	"github.com/opensource-finance/payrisk/internal/repository"
	"github.com/opensource-finance/payrisk/internal/rules"
)

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

func main() {
	dataPath := flag.String("data", "", "Path to JSON file with raw payment records")
	outPath := flag.String("out", "./payment_failure_model.json", "Path to write the model artifact")
	testSize := flag.Float64("test-size", 0.2, "Fraction of records held out for evaluation")
	seed := flag.Int64("seed", 42, "Random seed for the train/test split")
	useDB := flag.Bool("db", false, "Load label rules from the database and record the training run")
	tenantID := flag.String("tenant", GlobalTenantID, "Tenant ID for the training run record")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *dataPath == "" {
		fmt.Println("Usage: payrisk-train -data /path/to/records.json [-out model.json]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *testSize <= 0 || *testSize >= 1 {
		fmt.Println("ERROR: -test-size must be between 0 and 1 (exclusive)")
		os.Exit(1)
	}

	ctx := context.Background()

	// Optional repository for database rules and run history
	var repo domain.Repository
	if *useDB {
		cfg := domain.DefaultConfig()
		if os.Getenv("PAYRISK_TIER") == "pro" {
			cfg = domain.ProConfig()
		}
		var err error
		repo, err = repository.New(cfg.Repository)
		if err != nil {
			fmt.Printf("ERROR: failed to open repository: %v\n", err)
			os.Exit(1)
		}
		defer repo.Close()
	}

	// 1. Load raw records
	records, err := loadRecords(*dataPath)
	if err != nil {
		fmt.Printf("ERROR: failed to load records: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d records from %s\n", len(records), *dataPath)

	// 2. Feature pipeline
	pipeline := feature.NewPipeline()
	rows, err := pipeline.TransformRecords(records)
	if err != nil {
		fmt.Printf("ERROR: feature pipeline failed: %v\n", err)
		os.Exit(1)
	}

	// 3. Label with the rule engine
	engine, err := rules.NewEngine()
	if err != nil {
		fmt.Printf("ERROR: failed to initialize rule engine: %v\n", err)
		os.Exit(1)
	}

	labelRules := rules.DefaultLabelRules()
	if repo != nil {
		dbRules, err := repo.ListLabelRules(ctx, GlobalTenantID)
		if err == nil && len(dbRules) > 0 {
			labelRules = dbRules
			fmt.Printf("Using %d label rules from database\n", len(dbRules))
		}
	}
	if err := engine.LoadRules(labelRules); err != nil {
		fmt.Printf("ERROR: failed to load label rules: %v\n", err)
		os.Exit(1)
	}

	labels, err := engine.LabelAll(rows)
	if err != nil {
		fmt.Printf("ERROR: labeling failed: %v\n", err)
		os.Exit(1)
	}

	positives := 0
	for _, l := range labels {
		positives += l
	}
	fmt.Printf("Labeled: %d failure, %d success\n", positives, len(labels)-positives)

	// 4. Train/test split
	trainRows, trainLabels, testRows, testLabels := split(rows, labels, *testSize, *seed)
	fmt.Printf("Split: %d train / %d test (test-size=%.2f, seed=%d)\n\n",
		len(trainRows), len(testRows), *testSize, *seed)

	// 5. Fit
	clf := model.NewClassifier()
	start := time.Now()
	if err := clf.Fit(trainRows, trainLabels); err != nil {
		fmt.Printf("ERROR: training failed: %v\n", err)
		os.Exit(1)
	}
	info := clf.Info()
	fmt.Printf("Trained in %s (%d iterations, converged=%v)\n\n",
		time.Since(start).Round(time.Millisecond), info.Iterations, info.Converged)

	// 6. Evaluate on the held-out split
	preds, err := clf.Predict(testRows)
	if err != nil {
		fmt.Printf("ERROR: evaluation failed: %v\n", err)
		os.Exit(1)
	}

	report, err := metrics.Evaluate(testLabels, preds)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(report)

	// 7. Save artifact
	if err := clf.Save(*outPath); err != nil {
		fmt.Printf("ERROR: failed to save model: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Model saved to %s (version %s)\n", *outPath, clf.Version)

	// 8. Record the training run
	if repo != nil {
		run := &domain.TrainingRun{
			ID:           uuid.New().String(),
			TenantID:     *tenantID,
			ModelVersion: clf.Version,
			ArtifactPath: *outPath,
			Samples:      len(rows),
			TrainSamples: len(trainRows),
			TestSamples:  len(testRows),
			Metrics: domain.RunMetric{
				Accuracy:  report.Accuracy,
				Precision: report.Precision,
				Recall:    report.Recall,
				F1:        report.F1,
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.SaveTrainingRun(ctx, *tenantID, run); err != nil {
			slog.Error("failed to record training run", "error", err)
		} else {
			fmt.Printf("Training run recorded (%s)\n", run.ID)
		}
	}
}

// loadRecords reads a JSON file containing an array of raw payment
// records (or a single record object).
func loadRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	return feature.Flatten(input)
}

// split shuffles rows and labels together and divides them into train
// and test sets.
func split(rows []feature.Row, labels []int, testSize float64, seed int64) ([]feature.Row, []int, []feature.Row, []int) {
	n := len(rows)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	nTest := int(float64(n) * testSize)
	if nTest < 1 && n > 1 {
		nTest = 1
	}

	testIdx := idx[:nTest]
	trainIdx := idx[nTest:]

	trainRows := make([]feature.Row, len(trainIdx))
	trainLabels := make([]int, len(trainIdx))
	for i, j := range trainIdx {
		trainRows[i] = rows[j]
		trainLabels[i] = labels[j]
	}

	testRows := make([]feature.Row, len(testIdx))
	testLabels := make([]int, len(testIdx))
	for i, j := range testIdx {
		testRows[i] = rows[j]
		testLabels[i] = labels[j]
	}

	return trainRows, trainLabels, testRows, testLabels
}
