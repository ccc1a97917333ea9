package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/streamhub/pkbattle/src/app/battles"
	"github.com/streamhub/pkbattle/src/domain/battle"
)

var ErrWebhookRejected = errors.New("webhook rejected battle result")

// WebhookSink posts each resolved battle as JSON to an external endpoint.
type WebhookSink struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

var _ battles.ResolutionSink = (*WebhookSink)(nil)

func NewWebhookSink(url, apiKey string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		APIKey: apiKey,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom HTTP client.
func (s *WebhookSink) WithHTTPClient(client *http.Client) *WebhookSink {
	s.HTTPClient = client
	return s
}

type webhookEvent struct {
	Type   string       `json:"type"`
	Battle battles.View `json:"battle"`
}

func (s *WebhookSink) BattleEnded(ctx context.Context, b battle.Battle) error {
	body, err := json.Marshal(webhookEvent{Type: "battle.ended", Battle: battles.NewView(b, b.EndedAt)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", string(b.ID))
	if s.APIKey != "" {
		req.SetBasicAuth(s.APIKey, "")
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode)
	}
	return nil
}
