package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/payrisk/internal/bus"
	"github.com/opensource-finance/payrisk/internal/cache"
	"github.com/opensource-finance/payrisk/internal/domain"
	"github.com/opensource-finance/payrisk/internal/feature"
	"github.com/opensource-finance/payrisk/internal/model"
	"github.com/opensource-finance/payrisk/internal/repository"
	"github.com/opensource-finance/payrisk/internal/rules"
	"github.com/opensource-finance/payrisk/internal/scoring"
	"github.com/opensource-finance/payrisk/internal/stats"
)

// fittedClassifier trains a toy model: unverified cash senders fail.
func fittedClassifier(t *testing.T) *model.Classifier {
	t.Helper()

	var rows []feature.Row
	var labels []int

	sources := []string{"Salary", "Cash", "Savings"}
	for i := 0; i < 60; i++ {
		row := feature.Row{
			Occupation:      "worker",
			Purpose:         "Family Support",
			SourceOfFunds:   sources[i%len(sources)],
			CountryOfBirth:  "US",
			Nationality:     "US",
			ReceiverCountry: "US",
			Age:             25 + i%40,
			IDVerified:      i % 2,
			CrossBorder:     0,
		}
		label := 0
		if row.IDVerified == 0 && row.SourceOfFunds == "Cash" {
			label = 1
		}
		rows = append(rows, row)
		labels = append(labels, label)
	}

	clf := model.NewClassifier()
	if err := clf.Fit(rows, labels); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	return clf
}

// createTestServer wires a full server: sqlite repository, LRU cache,
// channel bus, fitted classifier, and the default label rules.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	if err := engine.LoadRules(rules.DefaultLabelRules()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	clf := fittedClassifier(t)
	artifactPath := filepath.Join(t.TempDir(), "model.json")
	if err := clf.Save(artifactPath); err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}
	store := model.NewStore(clf)

	modelCfg := domain.ModelConfig{
		ArtifactPath:  artifactPath,
		ScoreCacheTTL: 300,
	}

	return NewServer(cfg, repo, c, b, feature.NewPipeline(), store, scoring.NewProcessor(), engine, stats.NewService(repo, c), "test-v1", modelCfg)
}

func testRecord(sourceOfFunds, idStatus string) map[string]any {
	return map[string]any{
		"occupation":           "worker",
		"purposeOfTransaction": "Family Support",
		"sourceOfFunds":        sourceOfFunds,
		"countryOfBirth":       "US",
		"nationality":          "US",
		"age":                  34,
		"idVerificationStatus": idStatus,
		"receiver": map[string]any{
			"address": map[string]any{
				"countryCode": "US",
			},
		},
	}
}

func doRequest(server *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestPredictEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("FlagsUnverifiedCashSender", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/api/predict", testRecord("Cash", "N"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp PredictResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.PredictionID == "" {
			t.Error("expected predictionId in response")
		}
		if resp.FailureRisk != 1 {
			t.Errorf("expected payment_failure_risk 1, got %d (p=%.3f)", resp.FailureRisk, resp.FailureProbability)
		}
		if resp.FailureProbability < 0 || resp.FailureProbability > 1 {
			t.Errorf("probability %f out of range", resp.FailureProbability)
		}
		if resp.Cached {
			t.Error("first request should not be cached")
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
		if resp.Metadata.ModelVersion == "" {
			t.Error("expected modelVersion in metadata")
		}
	})

	t.Run("ClearsVerifiedSalarySender", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/api/predict", testRecord("Salary", "Y"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp PredictResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.FailureRisk != 0 {
			t.Errorf("expected payment_failure_risk 0, got %d (p=%.3f)", resp.FailureRisk, resp.FailureProbability)
		}
	})

	t.Run("SecondIdenticalRequestIsCached", func(t *testing.T) {
		record := testRecord("Cash", "N")
		record["occupation"] = "cached-case"

		first := doRequest(server, http.MethodPost, "/api/predict", record)
		if first.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", first.Code)
		}

		second := doRequest(server, http.MethodPost, "/api/predict", record)
		if second.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", second.Code)
		}

		var resp PredictResponse
		json.Unmarshal(second.Body.Bytes(), &resp)
		if !resp.Cached {
			t.Error("identical record scored by the same model should hit the cache")
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(testRecord("Salary", "Y"))

		req := httptest.NewRequest(http.MethodPost, "/api/predict", &buf)
		req.Header.Set("Content-Type", "application/json")
		// No X-Tenant-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/predict", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MalformedRecord", func(t *testing.T) {
		record := testRecord("Salary", "Y")
		delete(record, "age")
		record["dateOfBirth"] = "12-04-1990" // wrong format

		rr := doRequest(server, http.MethodPost, "/api/predict", record)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for malformed record, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("MissingRequiredField", func(t *testing.T) {
		record := testRecord("Salary", "Y")
		delete(record, "receiver")

		rr := doRequest(server, http.MethodPost, "/api/predict", record)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for missing field, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestPredictWithoutModel(t *testing.T) {
	server := createTestServer(t)

	// Swap in an empty store: server is up but nothing is trained
	server.Handler().store = model.NewStore(nil)

	rr := doRequest(server, http.MethodPost, "/api/predict", testRecord("Salary", "Y"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 without a model, got %d", rr.Code)
	}
}

func TestPredictBatchEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("ScoresMultipleRecords", func(t *testing.T) {
		records := []map[string]any{
			testRecord("Cash", "N"),
			testRecord("Salary", "Y"),
			testRecord("Savings", "Y"),
		}

		rr := doRequest(server, http.MethodPost, "/api/predict/batch", records)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Results []BatchResult `json:"results"`
			Count   int           `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Count != 3 {
			t.Errorf("expected 3 results, got %d", resp.Count)
		}
		if resp.Results[0].FailureRisk != 1 {
			t.Errorf("unverified cash sender should fail, got %d", resp.Results[0].FailureRisk)
		}
		if resp.Results[1].FailureRisk != 0 {
			t.Errorf("verified salary sender should succeed, got %d", resp.Results[1].FailureRisk)
		}
	})

	t.Run("SingleObjectAccepted", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/api/predict/batch", testRecord("Salary", "Y"))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("BadRecordInBatch", func(t *testing.T) {
		bad := testRecord("Salary", "Y")
		delete(bad, "age")

		rr := doRequest(server, http.MethodPost, "/api/predict/batch", []map[string]any{bad})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestGetPredictionEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("RoundTrip", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/api/predict", testRecord("Cash", "N"))
		if rr.Code != http.StatusOK {
			t.Fatalf("predict failed: %d", rr.Code)
		}

		var resp PredictResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		get := doRequest(server, http.MethodGet, "/api/predictions/"+resp.PredictionID, nil)
		if get.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", get.Code, get.Body.String())
		}

		var pred domain.Prediction
		if err := json.Unmarshal(get.Body.Bytes(), &pred); err != nil {
			t.Fatalf("failed to parse prediction: %v", err)
		}
		if pred.ID != resp.PredictionID {
			t.Errorf("expected id %s, got %s", resp.PredictionID, pred.ID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/api/predictions/nope", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestStatsEndpoint(t *testing.T) {
	server := createTestServer(t)

	for i := 0; i < 2; i++ {
		doRequest(server, http.MethodPost, "/api/predict", testRecord("Cash", "N"))
	}
	doRequest(server, http.MethodPost, "/api/predict", testRecord("Salary", "Y"))

	t.Run("DefaultWindow", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/api/stats", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var snap stats.Snapshot
		if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
			t.Fatalf("failed to parse snapshot: %v", err)
		}

		if snap.Total != 3 {
			t.Errorf("expected 3 total, got %d", snap.Total)
		}
		if snap.Flagged != 2 {
			t.Errorf("expected 2 flagged, got %d", snap.Flagged)
		}
	})

	t.Run("InvalidWindow", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/api/stats?window=-5", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestModelEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("GetModel", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/api/model", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var info model.Info
		if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
			t.Fatalf("failed to parse model info: %v", err)
		}
		if info.Version == "" {
			t.Error("expected model version")
		}
		if info.TrainSamples != 60 {
			t.Errorf("expected 60 train samples, got %d", info.TrainSamples)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/api/model/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("ListRules", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/api/rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Rules []*domain.LabelRule `json:"rules"`
			Count int                 `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count == 0 {
			t.Error("expected default rules to be loaded")
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		defaults := rules.DefaultLabelRules()
		rr := doRequest(server, http.MethodGet, "/api/rules/"+defaults[0].ID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("GetRuleNotFound", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/api/rules/nope", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("CreateAndReload", func(t *testing.T) {
		create := doRequest(server, http.MethodPost, "/api/rules", CreateRuleRequest{
			ID:         "elderly-cross-border",
			Name:       "Elderly cross-border sender",
			Priority:   10,
			Expression: "age > 70 && cross_border == 1",
			Enabled:    true,
		})
		if create.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", create.Code, create.Body.String())
		}

		reload := doRequest(server, http.MethodPost, "/api/rules/reload", nil)
		if reload.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", reload.Code, reload.Body.String())
		}

		get := doRequest(server, http.MethodGet, "/api/rules/elderly-cross-border", nil)
		if get.Code != http.StatusOK {
			t.Errorf("created rule should be loaded after reload, got %d", get.Code)
		}
	})

	t.Run("RejectsInvalidExpression", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/api/rules", CreateRuleRequest{
			ID:         "bad",
			Name:       "Bad",
			Expression: "amount > 1000.0", // unknown variable
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("RejectsMissingFields", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/api/rules", CreateRuleRequest{ID: "only-id"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestTrainingRunsEndpoint(t *testing.T) {
	server := createTestServer(t)

	rr := doRequest(server, http.MethodGet, "/api/training-runs", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("expected no training runs, got %d", resp.Count)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Healthy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp["version"])
		}
	})

	t.Run("DegradedWithoutModel", func(t *testing.T) {
		server.Handler().store = model.NewStore(nil)
		defer func() { server.Handler().store = model.NewStore(fittedClassifier(t)) }()

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["status"] != "degraded" {
			t.Errorf("expected degraded without a model, got %s", resp["status"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestDashboard(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("expected html content type, got %s", ct)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("payrisk")) {
		t.Error("dashboard should mention payrisk")
	}
}
