package email

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type SMTPProvider struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg SMTPConfig) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, sendMail: smtp.SendMail}
}

func (p *SMTPProvider) Name() string { return ProviderSMTP }

func (p *SMTPProvider) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return &DeliveryError{Provider: ProviderSMTP, Err: ErrInvalidRecipient}
	}
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Provider: ProviderSMTP, Err: err}
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))

	done := make(chan error, 1)
	go func() {
		done <- p.sendMail(addr, auth, p.cfg.From, []string{to}, p.compose(to, subject, htmlBody))
	}()
	select {
	case err := <-done:
		if err != nil {
			return &DeliveryError{Provider: ProviderSMTP, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &DeliveryError{Provider: ProviderSMTP, Err: ctx.Err()}
	}
}

func (p *SMTPProvider) compose(to, subject, htmlBody string) []byte {
	from := p.cfg.From
	if p.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", p.cfg.FromName), p.cfg.From)
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(htmlBody)
	return b.Bytes()
}
