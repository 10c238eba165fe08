package email

import (
	"context"
	"errors"
	"fmt"
)

const (
	ProviderDisabled = "disabled"
	ProviderSendGrid = "sendgrid"
	ProviderSMTP     = "smtp"
)

// Provider delivers a single rendered email.
type Provider interface {
	Name() string
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

// DeliveryError describes a failed hand-off to the email backend.
type DeliveryError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s delivery failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery failed: %v", e.Provider, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Retryable reports whether the backend may accept the same message later.
func (e *DeliveryError) Retryable() bool {
	if e.StatusCode == 0 {
		return !errors.Is(e.Err, ErrInvalidRecipient)
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

var ErrInvalidRecipient = errors.New("email: recipient is empty")
