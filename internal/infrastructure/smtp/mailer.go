package smtp

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/go-auth-gate/internal/config"
	"gopkg.in/gomail.v2"
)

// Mailer sends plain-text emails over SMTP.
type Mailer struct {
	from   string
	dialer *gomail.Dialer
}

func NewMailer(cfg *config.Config) *Mailer {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	d.TLSConfig = &tls.Config{
		ServerName: cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}
	return &Mailer{from: cfg.SMTPFrom, dialer: d}
}

func newMessage(from, to, subject, body string) *gomail.Message {
	msg := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return msg
}

// SendEmail delivers one message. gomail has no context support, so ctx is
// only checked before dialing.
func (m *Mailer) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(newMessage(m.from, to, subject, body)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
