package email

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
)

// SMTPConfig configures the SMTP sender
type SMTPConfig struct {
	FromName    string
	FromAddress string
	Username    string
	Password    string
	Host        string
	Port        int
}

// SMTPSender delivers mail through a plain SMTP relay as multipart/alternative messages
type SMTPSender struct {
	config SMTPConfig
	auth   smtp.Auth
}

// NewSMTPSender validates the from address and prepares PLAIN auth when credentials are set
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if _, err := mail.ParseAddress(cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("could not parse from email: %v", err)
	}

	s := &SMTPSender{config: cfg}
	if cfg.Username != "" && cfg.Password != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	body, err := s.composeBody(msg)
	if err != nil {
		return fmt.Errorf("could not compose email body: %v", err)
	}

	server := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(server, s.auth, s.config.FromAddress, msg.To, body)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *SMTPSender) composeBody(msg Message) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	to := make([]string, 0, len(msg.To))
	for _, raw := range msg.To {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("could not parse to email: %v", err)
		}
		to = append(to, addr.String())
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	var headers bytes.Buffer
	from := mail.Address{Name: s.config.FromName, Address: s.config.FromAddress}
	headers.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	headers.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	if msg.ReplyTo != "" {
		replyTo, err := mail.ParseAddress(msg.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("could not parse reply-to email: %v", err)
		}
		headers.WriteString(fmt.Sprintf("Reply-To: %s\r\n", replyTo.String()))
	}
	headers.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	headers.WriteString("MIME-Version: 1.0\r\n")
	headers.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", writer.Boundary()))
	headers.WriteString("\r\n")

	if msg.Text != "" {
		textPart, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"text/plain; charset=\"UTF-8\""},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := textPart.Write([]byte(msg.Text)); err != nil {
			return nil, fmt.Errorf("could not write plain text part: %v", err)
		}
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=\"UTF-8\""},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("could not write HTML part: %v", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not close writer: %v", err)
	}

	var email bytes.Buffer
	email.Write(headers.Bytes())
	email.Write(body.Bytes())
	return email.Bytes(), nil
}
