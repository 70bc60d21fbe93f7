// Package email sends transactional mail over SMTP.
package email

import (
	"context"

	"orderflow_backend/platform/apperr"
	"orderflow_backend/platform/config"
	"orderflow_backend/platform/logger"

	"github.com/wneessen/go-mail"
)

// Sender delivers mail. When email is disabled in configuration it logs
// the message instead, so development environments need no SMTP server.
type Sender struct {
	cfg config.EmailConfig
	log *logger.Logger
}

// NewSender creates an SMTP sender.
func NewSender(cfg config.EmailConfig, log *logger.Logger) *Sender {
	return &Sender{cfg: cfg, log: log}
}

// Send delivers one message to the recipients.
func (s *Sender) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return nil
	}
	if !s.cfg.GetEmailEnabled() {
		s.log.WithContext(ctx).Info("email disabled, skipping send", "subject", subject, "recipients", len(to))
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.GetEmailFromName(), s.cfg.GetEmailFromAddress()); err != nil {
		return apperr.Internal("invalid sender address")
	}
	if err := msg.To(to...); err != nil {
		return apperr.Validation("invalid recipient address")
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	client, err := mail.NewClient(s.cfg.GetSMTPHost(),
		mail.WithPort(s.cfg.GetSMTPPort()),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.GetSMTPUsername()),
		mail.WithPassword(s.cfg.GetSMTPPassword()),
	)
	if err != nil {
		return apperr.StorageUnavailable("failed to create mail client", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return apperr.StorageUnavailable("failed to send email", err)
	}
	return nil
}
