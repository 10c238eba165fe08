package email

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// DisabledProvider accepts every message without contacting a backend.
// Used when EMAIL_ENABLED=false; records still end as SENT.
type DisabledProvider struct {
	log *zap.Logger
}

func NewDisabled(log *zap.Logger) *DisabledProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &DisabledProvider{log: log.Named("email.disabled")}
}

func (p *DisabledProvider) Name() string { return ProviderDisabled }

func (p *DisabledProvider) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	if strings.TrimSpace(to) == "" {
		return &DeliveryError{Provider: ProviderDisabled, Err: ErrInvalidRecipient}
	}
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Provider: ProviderDisabled, Err: err}
	}
	p.log.Warn("email delivery disabled, skipping send",
		zap.String("recipient", to),
		zap.String("subject", subject),
	)
	p.log.Debug("email body", zap.String("body", htmlBody))
	return nil
}
