package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const sendGridPath = "/v3/mail/send"

type SendGridConfig struct {
	APIKey   string
	BaseURL  string
	From     string
	FromName string
	Timeout  time.Duration
}

// SendGridProvider posts messages to the SendGrid v3 mail API.
type SendGridProvider struct {
	cfg    SendGridConfig
	client *http.Client
}

func NewSendGrid(cfg SendGridConfig) *SendGridProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	return &SendGridProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (p *SendGridProvider) Name() string { return ProviderSendGrid }

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

func (p *SendGridProvider) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return &DeliveryError{Provider: ProviderSendGrid, Err: ErrInvalidRecipient}
	}

	payload, err := json.Marshal(sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: to}}}},
		From:             sendGridAddress{Email: p.cfg.From, Name: p.cfg.FromName},
		Subject:          subject,
		Content:          []sendGridContent{{Type: "text/html", Value: htmlBody}},
	})
	if err != nil {
		return &DeliveryError{Provider: ProviderSendGrid, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+sendGridPath, bytes.NewReader(payload))
	if err != nil {
		return &DeliveryError{Provider: ProviderSendGrid, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &DeliveryError{Provider: ProviderSendGrid, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &DeliveryError{
		Provider:   ProviderSendGrid,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
	}
}
