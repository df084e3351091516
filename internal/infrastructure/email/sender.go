package email

import (
	"context"
	"fmt"

	"github.com/brothersgym/backoffice/internal/config"
)

// Message is one outbound email
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string // plain-text fallback, optional
	ReplyTo string
}

// Sender delivers messages through an external provider
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender builds the sender selected by cfg.Provider
func NewSender(cfg config.EmailConfig) (Sender, error) {
	switch cfg.Provider {
	case "resend":
		return NewResendSender(cfg.ResendAPIKey, formatFrom(cfg.FromName, cfg.From)), nil
	case "smtp":
		return NewSMTPSender(SMTPConfig{
			FromName:    cfg.FromName,
			FromAddress: cfg.From,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
		})
	case "log", "":
		return NewLogSender(), nil
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
}

func formatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}
