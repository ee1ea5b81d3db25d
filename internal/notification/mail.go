package notification

import (
	"context"
	"html"

	"gopkg.in/gomail.v2"

	"parcel-locker-backend/config"
)

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender returns nil when no SMTP host is configured.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	if cfg.Host == "" {
		return nil
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

// Send builds a plain-text message with an HTML alternative and dials the relay.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := buildMessage(s.from, msg)
	return s.dialer.DialAndSend(m)
}

func buildMessage(from string, msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	m.AddAlternative("text/html", "<p>"+html.EscapeString(msg.Body)+"</p>")
	return m
}
