package execution

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"quantforge.com/internal/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.EngineConfig{BaseURL: url, TimeoutSeconds: 5})
}

func TestRunBacktestSuccess(t *testing.T) {
	const code = "# Timeframe: 1d\nclass CustomStrategy: pass"
	csv := []byte("Date,Open,High,Low,Close\n2024-01-02,10,11,9,10.5\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/backtest" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}

		decoded, err := base64.StdEncoding.DecodeString(req["strategyCode"].(string))
		if err != nil || string(decoded) != code {
			t.Errorf("strategyCode not base64 of the source text")
		}
		decodedCSV, err := base64.StdEncoding.DecodeString(req["csvData"].(string))
		if err != nil || string(decodedCSV) != string(csv) {
			t.Errorf("csvData not base64 of the file bytes")
		}
		if req["initialCapital"].(float64) != 10000 {
			t.Errorf("initialCapital = %v, want 10000", req["initialCapital"])
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"finalEquity":    12500.0,
			"totalReturnPct": 25.0,
			"totalTrades":    4,
			"equityCurve":    []map[string]interface{}{{"date": "2024-01-02T00:00:00", "value": 10000.0}},
		})
	}))
	defer srv.Close()

	results, err := newTestClient(srv.URL).RunBacktest(context.Background(), code, csv, 10000, 0.001)
	if err != nil {
		t.Fatalf("RunBacktest failed: %v", err)
	}
	if results.FinalEquity != 12500 {
		t.Errorf("FinalEquity = %v, want 12500", results.FinalEquity)
	}
	if results.TotalTrades != 4 {
		t.Errorf("TotalTrades = %d, want 4", results.TotalTrades)
	}
	if len(results.EquityCurve) != 1 || results.EquityCurve[0].Value != 10000 {
		t.Errorf("EquityCurve not decoded: %+v", results.EquityCurve)
	}
}

func TestRunBacktestEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "No Strategy class found"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RunBacktest(context.Background(), "bad", nil, 10000, 0.001)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if !strings.Contains(err.Error(), "No Strategy class found") {
		t.Errorf("error %q does not surface the engine's message", err)
	}
}

func TestRunBacktestUnreachable(t *testing.T) {
	// A closed server is the simplest unreachable endpoint.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL).RunBacktest(context.Background(), "code", nil, 10000, 0.001)
	if err == nil {
		t.Fatal("expected an error when the engine is unreachable")
	}
	if !strings.Contains(err.Error(), "not available") {
		t.Errorf("error %q should report the engine as unavailable", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}

func TestHealthDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).Health(context.Background()); err == nil {
		t.Error("Health should fail on a non-200 response")
	}
}
