package email

import (
	"github.com/smallbiznis/notifier/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig selects the delivery backend. EMAIL_ENABLED=false always wins.
func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if !cfg.Email.Enabled {
		return NewDisabled(log)
	}
	switch cfg.Email.Provider {
	case ProviderSMTP:
		return NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		})
	case ProviderDisabled:
		return NewDisabled(log)
	default:
		return NewSendGrid(SendGridConfig{
			APIKey:   cfg.Email.SendGridAPIKey,
			BaseURL:  cfg.Email.SendGridBaseURL,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
			Timeout:  cfg.Email.Timeout,
		})
	}
}
