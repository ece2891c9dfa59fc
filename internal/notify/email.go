package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/fnal-sbnd/rrarchiver/internal/config"
)

// EmailSink delivers a summary as a plaintext email via the configured SMTP
// relay. No example in the retrieved pack implements email delivery, and
// there is no dependency-free ecosystem SMTP client worth pulling in for a
// single best-effort notification path, so this sink is the one place in
// the archiver that reaches for net/smtp instead of a third-party library.
type EmailSink struct {
	cfg config.ReportingConfig
}

// NewEmailSink constructs an EmailSink from the reporting configuration.
func NewEmailSink(cfg config.ReportingConfig) *EmailSink {
	return &EmailSink{cfg: cfg}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(_ context.Context, summary Summary) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	subject := fmt.Sprintf("rrarchiver: %s stage reported failures", summary.Stage)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.Sender, s.cfg.Recipient, subject, formatBody(summary))
	return smtp.SendMail(addr, nil, s.cfg.Sender, []string{s.cfg.Recipient}, []byte(msg))
}
