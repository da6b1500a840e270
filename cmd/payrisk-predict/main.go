// Payrisk - Payment failure prediction that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command-line predictor that scores a single payment record against a
// saved model artifact, without a running server.
//
// Usage:
//   go run cmd/payrisk-predict/main.go -model payment_failure_model.json \
//     -occupation engineer -purpose "Family Support" -source Salary \
//     -country US -nationality US -receiver-country US \
//     -age 34 -id-verified 1 -cross-border 0
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/opensource-finance/payrisk/internal/feature"
	"github.com/opensource-finance/payrisk/internal/model"
)

func main() {
	modelPath := flag.String("model", "./payment_failure_model.json", "Path to the model artifact")
	occupation := flag.String("occupation", "", "Occupation")
	purpose := flag.String("purpose", "", "Purpose of transaction")
	source := flag.String("source", "", "Source of funds")
	country := flag.String("country", "", "Country of birth")
	nationality := flag.String("nationality", "", "Nationality")
	receiverCountry := flag.String("receiver-country", "", "Receiver country code")
	age := flag.Int("age", -1, "Age in years")
	idVerified := flag.Int("id-verified", -1, "ID verified flag (0 or 1)")
	crossBorder := flag.Int("cross-border", -1, "Cross-border flag (0 or 1, derived from countries if omitted)")
	flag.Parse()

	if *occupation == "" || *purpose == "" || *source == "" ||
		*country == "" || *nationality == "" || *receiverCountry == "" ||
		*age < 0 || *idVerified < 0 {
		fmt.Println("Usage: payrisk-predict -model model.json -occupation ... -purpose ... -source ...")
		fmt.Println("       -country ... -nationality ... -receiver-country ... -age N -id-verified 0|1")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	clf, err := model.Load(*modelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load model: %v\n", err)
		os.Exit(1)
	}

	// Assemble the record the same way the API does, so derivation
	// behaves identically.
	record := map[string]any{
		feature.ColOccupation:      *occupation,
		feature.ColPurpose:         *purpose,
		feature.ColSourceOfFunds:   *source,
		feature.ColCountryOfBirth:  *country,
		feature.ColNationality:     *nationality,
		feature.ColReceiverCountry: *receiverCountry,
		feature.ColAge:             *age,
		feature.ColIDVerified:      *idVerified,
	}
	if *crossBorder >= 0 {
		record[feature.ColCrossBorder] = *crossBorder
	}

	pipeline := feature.NewPipeline()
	rows, err := pipeline.TransformRecords([]map[string]any{record})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	probs, err := clf.PredictProba(rows)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	failed := 0
	if probs[0] >= model.DecisionThreshold {
		failed = 1
	}

	out, _ := json.Marshal(map[string]any{
		"payment_failed":      failed,
		"failure_probability": probs[0],
	})
	fmt.Println(string(out))
}
