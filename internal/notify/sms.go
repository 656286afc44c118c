package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"kwatch/internal/models"
	"kwatch/internal/structures"
)

// SMSSender delivers alerts through an HTTP SMS gateway.
type SMSSender struct {
	gatewayURL string
	apiKey     string
	sender     string
	enabled    bool
	client     *http.Client
}

func NewSMSSender(conf structures.SMSChannelConfig) *SMSSender {
	return &SMSSender{
		gatewayURL: conf.GatewayURL,
		apiKey:     conf.APIKey,
		sender:     conf.Sender,
		enabled:    conf.Enabled && conf.GatewayURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SMSSender) Channel() models.Channel { return models.ChannelSMS }

func (s *SMSSender) Enabled() bool { return s.enabled }

func (s *SMSSender) Send(ctx context.Context, n *models.Notification) error {
	if n.Recipient == "" {
		return fmt.Errorf("monitor has no contact phone")
	}

	payload := map[string]string{
		"to":      n.Recipient,
		"from":    s.sender,
		"message": n.Subject,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending SMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("SMS gateway returned status %d", resp.StatusCode)
	}
	return nil
}
