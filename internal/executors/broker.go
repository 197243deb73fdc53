package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BrokerExecutor implements Broker.OrderSubmit: it posts an order payload
// to a brokerage HTTP endpoint (Alpaca-shaped by default) and consults
// persistent state to avoid double-submitting the same logical order
// across retries of the same node.
type BrokerExecutor struct {
	client *http.Client
}

func NewBrokerExecutor() *BrokerExecutor {
	return &BrokerExecutor{client: &http.Client{Timeout: 15 * time.Second}}
}

func (e *BrokerExecutor) Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error) {
	symbol, _ := execCtx.NodeConfig["symbol"].(string)
	side, _ := execCtx.NodeConfig["side"].(string)
	qty, _ := execCtx.NodeConfig["qty"].(float64)
	if symbol == "" || side == "" || qty <= 0 {
		return &ExecutionResult{Success: false, Error: "symbol, side, and qty are required"}, nil
	}

	idempotencyKey := fmt.Sprintf("%s:%s:%s:%v", execCtx.NodeID, symbol, side, qty)
	if execCtx.GetState != nil {
		if prior, ok := execCtx.GetState("order:" + idempotencyKey); ok {
			return &ExecutionResult{
				Success: true,
				Output: map[string]interface{}{
					"orderId":    prior,
					"deduped":    true,
					"symbol":     symbol,
					"side":       side,
					"qty":        qty,
				},
			}, nil
		}
	}

	baseURL, _ := execCtx.NodeConfig["baseUrl"].(string)
	if baseURL == "" {
		baseURL = "https://paper-api.alpaca.markets"
	}
	apiKey, _ := execCtx.NodeConfig["apiKeyId"].(string)
	apiSecret, _ := execCtx.NodeConfig["apiSecretKey"].(string)

	orderType, _ := execCtx.NodeConfig["type"].(string)
	if orderType == "" {
		orderType = "market"
	}
	timeInForce, _ := execCtx.NodeConfig["timeInForce"].(string)
	if timeInForce == "" {
		timeInForce = "day"
	}

	body, err := json.Marshal(map[string]interface{}{
		"symbol":        symbol,
		"qty":           qty,
		"side":          side,
		"type":          orderType,
		"time_in_force": timeInForce,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v2/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("APCA-API-KEY-ID", apiKey)
		req.Header.Set("APCA-API-SECRET-KEY", apiSecret)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order submission failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read order response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &ExecutionResult{Success: false, Error: fmt.Sprintf("broker returned %d: %s", resp.StatusCode, respBody)}, nil
	}

	var order map[string]interface{}
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}

	orderID, _ := order["id"].(string)
	if execCtx.SetState != nil && orderID != "" {
		if err := execCtx.SetState("order:"+idempotencyKey, orderID); err != nil {
			return nil, fmt.Errorf("failed to persist order idempotency record: %w", err)
		}
	}

	return &ExecutionResult{
		Success: true,
		Output: map[string]interface{}{
			"orderId": orderID,
			"order":   order,
			"symbol":  symbol,
			"side":    side,
			"qty":     qty,
		},
	}, nil
}
