package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/patali/yantra/internal/credential"
)

// FinnHubExecutor pulls quote data (the /quote endpoint) from the FinnHub REST API. It is
// a DataSource-category executor: synchronous, no side effects worth
// outbox-tracking, its output feeds indicator/broker nodes downstream.
type FinnHubExecutor struct {
	credentials *credential.Store
	client      *http.Client
}

func NewFinnHubExecutor(creds *credential.Store) *FinnHubExecutor {
	return &FinnHubExecutor{credentials: creds, client: &http.Client{Timeout: 15 * time.Second}}
}

func (e *FinnHubExecutor) Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error) {
	symbol, _ := execCtx.NodeConfig["symbol"].(string)
	if symbol == "" {
		return &ExecutionResult{Success: false, Error: "symbol is required"}, nil
	}

	apiKey, err := e.resolveAPIKey(execCtx)
	if err != nil {
		return &ExecutionResult{Success: false, Error: err.Error()}, nil
	}

	endpoint := fmt.Sprintf("https://finnhub.io/api/v1/quote?symbol=%s&token=%s", url.QueryEscape(symbol), url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("finnhub request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read finnhub response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &ExecutionResult{Success: false, Error: fmt.Sprintf("finnhub returned %d: %s", resp.StatusCode, body)}, nil
	}

	var quote map[string]interface{}
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to parse finnhub response: %w", err)
	}

	return &ExecutionResult{
		Success: true,
		Output: map[string]interface{}{
			"symbol": symbol,
			"quote":  quote,
		},
	}, nil
}

func (e *FinnHubExecutor) resolveAPIKey(execCtx ExecutionContext) (string, error) {
	if key, ok := execCtx.NodeConfig["apiKey"].(string); ok && key != "" {
		return key, nil
	}
	if e.credentials == nil {
		return "", fmt.Errorf("no finnhub credential available")
	}
	credentialName, _ := execCtx.NodeConfig["credential"].(string)
	if credentialName == "" {
		credentialName = "default"
	}
	cred, err := e.credentials.Get(execCtx.AccountID, "finnhub", credentialName)
	if err != nil {
		return "", fmt.Errorf("finnhub credential lookup failed: %w", err)
	}
	apiKey, _ := cred.Token["api_key"].(string)
	if apiKey == "" {
		return "", fmt.Errorf("finnhub credential %q has no api_key", credentialName)
	}
	return apiKey, nil
}

// YahooFinanceExecutor pulls candle data from Yahoo Finance's chart API,
// which needs no credential.
type YahooFinanceExecutor struct {
	client *http.Client
}

func NewYahooFinanceExecutor() *YahooFinanceExecutor {
	return &YahooFinanceExecutor{client: &http.Client{Timeout: 15 * time.Second}}
}

func (e *YahooFinanceExecutor) Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error) {
	symbol, _ := execCtx.NodeConfig["symbol"].(string)
	if symbol == "" {
		return &ExecutionResult{Success: false, Error: "symbol is required"}, nil
	}
	rangeParam, _ := execCtx.NodeConfig["range"].(string)
	if rangeParam == "" {
		rangeParam = "1mo"
	}
	interval, _ := execCtx.NodeConfig["interval"].(string)
	if interval == "" {
		interval = "1d"
	}

	endpoint := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s?range=%s&interval=%s",
		url.PathEscape(symbol), url.QueryEscape(rangeParam), url.QueryEscape(interval))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo finance request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read yahoo finance response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &ExecutionResult{Success: false, Error: fmt.Sprintf("yahoo finance returned %d: %s", resp.StatusCode, body)}, nil
	}

	var chart map[string]interface{}
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("failed to parse yahoo finance response: %w", err)
	}

	return &ExecutionResult{
		Success: true,
		Output: map[string]interface{}{
			"symbol": symbol,
			"chart":  chart,
		},
	}, nil
}
