package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WhatsAppExecutor sends a message through the WhatsApp Business Cloud API.
// Same webhook-POST shape as SlackExecutor, and outbox-routed for the same
// reason (SPEC_FULL §4.4.2): the outbox worker calls Execute, not the engine,
// so a dropped connection retries instead of losing the send.
type WhatsAppExecutor struct {
	httpClient *http.Client
}

func NewWhatsAppExecutor() *WhatsAppExecutor {
	return &WhatsAppExecutor{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type whatsAppTextBody struct {
	Body string `json:"body"`
}

type whatsAppMessage struct {
	MessagingProduct string            `json:"messaging_product"`
	To               string            `json:"to"`
	Type             string            `json:"type"`
	Text             whatsAppTextBody  `json:"text"`
}

func (e *WhatsAppExecutor) Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error) {
	phoneNumberID, _ := execCtx.NodeConfig["phoneNumberId"].(string)
	accessToken, _ := execCtx.NodeConfig["accessToken"].(string)
	if phoneNumberID == "" || accessToken == "" {
		return &ExecutionResult{
			Success: false,
			Error:   "phoneNumberId and accessToken are required",
		}, nil
	}

	to, _ := execCtx.NodeConfig["to"].(string)
	if to == "" {
		return &ExecutionResult{
			Success: false,
			Error:   "to is required",
		}, nil
	}
	text, _ := execCtx.NodeConfig["text"].(string)

	apiURL, ok := execCtx.NodeConfig["apiUrl"].(string)
	if !ok || apiURL == "" {
		apiURL = fmt.Sprintf("https://graph.facebook.com/v18.0/%s/messages", phoneNumberID)
	}

	message := whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             whatsAppTextBody{Body: text},
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return &ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("failed to marshal message: %v", err),
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(payload))
	if err != nil {
		return &ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("failed to create request: %v", err),
		}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return &ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("failed to send whatsapp message: %v", err),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("whatsapp api returned status %d", resp.StatusCode),
		}, nil
	}

	output := map[string]interface{}{
		"sent":       true,
		"to":         to,
		"statusCode": resp.StatusCode,
	}

	return &ExecutionResult{
		Success: true,
		Output:  output,
	}, nil
}
