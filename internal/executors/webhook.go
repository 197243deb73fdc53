package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patali/yantra/internal/webhook"
)

// WebhookExecutor implements the Utility.Webhook node: it emits the §6.4
// wire envelope to a URL taken from node config, HMAC-signing it if a
// secret is configured. It is outbox-routed (NodeRequiresOutbox returns
// true for "webhook"), so Execute only ever runs from the outbox worker,
// never inline in the graph.
type WebhookExecutor struct {
	client *http.Client
}

func NewWebhookExecutor() *WebhookExecutor {
	return &WebhookExecutor{client: &http.Client{Timeout: 30 * time.Second}}
}

func (e *WebhookExecutor) Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error) {
	url, _ := execCtx.NodeConfig["url"].(string)
	if url == "" {
		return &ExecutionResult{Success: false, Error: "url is required"}, nil
	}
	event, _ := execCtx.NodeConfig["event"].(string)
	if event == "" {
		event = "workflow.node"
	}
	secret, _ := execCtx.NodeConfig["secret"].(string)

	envelope := webhook.BuildEnvelope(execCtx.NodeID, event, execCtx.Input)
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "yantra/1.0")
	if secret != "" {
		req.Header.Set("X-Webhook-Signature", webhook.Sign(secret, body))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ExecutionResult{Success: false, Error: fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, respBody)}, nil
	}

	return &ExecutionResult{Success: true, Output: map[string]interface{}{
		"delivered":  true,
		"statusCode": resp.StatusCode,
		"event":      event,
	}}, nil
}
