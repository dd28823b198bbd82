// Package execution talks to the external backtest execution engine over
// HTTP. The engine receives the compiled strategy text and the raw dataset
// bytes, runs the simulation and returns the metrics object.
package execution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"quantforge.com/internal/config"
	"quantforge.com/internal/domain"
	"quantforge.com/internal/model"
)

const healthTimeout = 5 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.EngineConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type runRequest struct {
	StrategyCode   string  `json:"strategyCode"`
	CSVData        string  `json:"csvData"`
	InitialCapital float64 `json:"initialCapital"`
	Commission     float64 `json:"commission"`
}

type engineError struct {
	Error string `json:"error"`
}

// RunBacktest posts the strategy and dataset to the engine and decodes the
// results. The caller bounds the wall-clock time through ctx.
func (c *Client) RunBacktest(ctx context.Context, strategyCode string, csvData []byte, initialCapital, commission float64) (*model.BacktestResults, error) {
	body, err := json.Marshal(runRequest{
		StrategyCode:   base64.StdEncoding.EncodeToString([]byte(strategyCode)),
		CSVData:        base64.StdEncoding.EncodeToString(csvData),
		InitialCapital: initialCapital,
		Commission:     commission,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backtest request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/backtest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backtest engine is not available: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		var engErr engineError
		if err := json.Unmarshal(data, &engErr); err == nil && engErr.Error != "" {
			return nil, fmt.Errorf("backtest failed: %s", engErr.Error)
		}
		return nil, fmt.Errorf("backtest engine returned status %d", resp.StatusCode)
	}

	var results model.BacktestResults
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode engine response: %w", err)
	}
	return &results, nil
}

// Health probes the engine's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health check returned status %d", resp.StatusCode)
	}
	return nil
}

var _ domain.EngineClient = (*Client)(nil)
