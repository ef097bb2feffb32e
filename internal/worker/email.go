package worker

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/kronos-crm/backend/pkg/queue"
)

// SMTPConfig holds the outbound mail server settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// EmailSender delivers one email payload.
type EmailSender interface {
	Send(payload queue.EmailPayload) error
}

// SMTPSender sends email over plain SMTP with auth.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates an SMTP email sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers the email. HTML body, one recipient.
func (s *SMTPSender) Send(payload queue.EmailPayload) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("smtp: host not configured")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", payload.RecipientEmail)
	fmt.Fprintf(&b, "Subject: %s\r\n", payload.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(payload.BodyHTML)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}
	return smtp.SendMail(addr, auth, s.cfg.From, []string{payload.RecipientEmail}, []byte(b.String()))
}
