package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackExecutor posts to a Slack incoming webhook URL. It is outbox-routed
// (SPEC_FULL §4.4.2): the engine never calls Execute directly for a live run,
// the outbox worker does, so retries survive process restarts.
type SlackExecutor struct {
	httpClient *http.Client
}

func NewSlackExecutor() *SlackExecutor {
	return &SlackExecutor{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type slackMessage struct {
	Channel  string                   `json:"channel,omitempty"`
	Text     string                   `json:"text,omitempty"`
	Username string                   `json:"username,omitempty"`
	IconURL  string                   `json:"icon_url,omitempty"`
	Blocks   []map[string]interface{} `json:"blocks,omitempty"`
}

func (e *SlackExecutor) Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error) {
	webhookURL, ok := execCtx.NodeConfig["webhookUrl"].(string)
	if !ok || webhookURL == "" {
		return &ExecutionResult{
			Success: false,
			Error:   "webhookUrl is required",
		}, nil
	}

	message := slackMessage{}

	if channel, ok := execCtx.NodeConfig["channel"].(string); ok {
		message.Channel = channel
	}
	if text, ok := execCtx.NodeConfig["text"].(string); ok {
		message.Text = text
	}
	if username, ok := execCtx.NodeConfig["username"].(string); ok {
		message.Username = username
	}
	if iconURL, ok := execCtx.NodeConfig["iconUrl"].(string); ok {
		message.IconURL = iconURL
	}
	if blocks, ok := execCtx.NodeConfig["blocks"].([]interface{}); ok {
		message.Blocks = make([]map[string]interface{}, len(blocks))
		for i, block := range blocks {
			if blockMap, ok := block.(map[string]interface{}); ok {
				message.Blocks[i] = blockMap
			}
		}
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return &ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("failed to marshal message: %v", err),
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return &ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("failed to create request: %v", err),
		}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return &ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("failed to send webhook: %v", err),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("slack webhook returned status %d", resp.StatusCode),
		}, nil
	}

	output := map[string]interface{}{
		"sent":       true,
		"channel":    message.Channel,
		"text":       message.Text,
		"statusCode": resp.StatusCode,
	}

	return &ExecutionResult{
		Success: true,
		Output:  output,
	}, nil
}
