// Package webhook delivers signed event payloads to user-registered
// Webhook endpoints and records a WebhookDelivery audit row per attempt.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/patali/yantra/internal/models"
	"gorm.io/gorm"
)

const (
	productUserAgent = "yantra/1.0"
	signaturePrefix  = "sha256="
)

// Envelope is the JSON body POSTed to a webhook's URL.
type Envelope struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
	WebhookID string      `json:"webhook_id"`
}

// Service delivers webhook payloads and records delivery attempts.
// Callers invoke Deliver once per attempt and inspect the returned error
// to decide whether to reschedule; the outbox worker does not call it.
type Service struct {
	db     *gorm.DB
	client *http.Client
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, client: &http.Client{Timeout: 30 * time.Second}}
}

// Deliver POSTs one attempt of event/data to webhook.URL, signs the body
// if webhook.Secret is set, and records a WebhookDelivery row regardless
// of outcome. Returns an error on non-2xx or transport failure so the
// caller can apply its own backoff/retry bookkeeping.
func (s *Service) Deliver(ctx context.Context, wh *models.Webhook, event string, data interface{}, attempt int) error {
	body, err := json.Marshal(Envelope{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		WebhookID: wh.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", productUserAgent)
	if wh.Secret != nil && *wh.Secret != "" {
		req.Header.Set("X-Webhook-Signature", sign(*wh.Secret, body))
	}

	timeout := time.Duration(wh.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	resp, deliverErr := client.Do(req)
	delivery := models.WebhookDelivery{
		WebhookID: wh.ID,
		Payload:   string(body),
		Attempts:  attempt,
	}

	var outcome error
	if deliverErr != nil {
		msg := deliverErr.Error()
		delivery.Success = false
		delivery.ErrorMessage = &msg
		outcome = fmt.Errorf("webhook delivery failed: %w", deliverErr)
	} else {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		delivery.StatusCode = resp.StatusCode
		delivery.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
		if !delivery.Success {
			msg := fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, respBody)
			delivery.ErrorMessage = &msg
			outcome = fmt.Errorf("webhook returned non-2xx status %d", resp.StatusCode)
		}
	}

	if saveErr := s.db.Create(&delivery).Error; saveErr != nil {
		log.Printf("❌ failed to record webhook delivery for webhook %s: %v", wh.ID, saveErr)
	}

	return outcome
}

// RetryDelay returns the backoff to wait before the next attempt:
// 2^attempt seconds, per §6.4.
func RetryDelay(attempt int) time.Duration {
	delay := time.Second
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func sign(secret string, body []byte) string {
	return Sign(secret, body)
}

// Sign computes the X-Webhook-Signature header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// BuildEnvelope constructs the §6.4 wire envelope for event/data.
func BuildEnvelope(webhookID, event string, data interface{}) Envelope {
	return Envelope{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		WebhookID: webhookID,
	}
}
