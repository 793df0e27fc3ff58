// Package notify renders notification templates and hands them to the
// configured delivery backend.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"
)

// Mailer delivers a rendered email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// TextSender delivers a short text message to a phone number.
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

const (
	TemplateEmailVerification = "email_verification"
	TemplateAccountDeletion   = "account_deletion"
)

// Data is the input of every email template.
type Data struct {
	Code      string
	ExpiresAt time.Time
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[string]emailTemplate{
	TemplateEmailVerification: {
		subject: "Verify your email address",
		body: template.Must(template.New(TemplateEmailVerification).Parse(
			"Your verification code is {{.Code}}.\n\n" +
				"The code expires at {{.ExpiresAt.Format \"15:04 MST\"}}. If you did not create an account, ignore this email.\n")),
	},
	TemplateAccountDeletion: {
		subject: "Confirm account deletion",
		body: template.Must(template.New(TemplateAccountDeletion).Parse(
			"Someone asked to delete your account. Enter {{.Code}} to confirm.\n\n" +
				"The code expires at {{.ExpiresAt.Format \"15:04 MST\"}}. If this was not you, change your password.\n")),
	},
}

// Dispatcher sends verification messages. Delivery errors are returned to the
// caller; nothing is retried here.
type Dispatcher struct {
	mailer Mailer
	texter TextSender
}

func NewDispatcher(mailer Mailer, texter TextSender) *Dispatcher {
	return &Dispatcher{mailer: mailer, texter: texter}
}

func (d *Dispatcher) SendEmail(ctx context.Context, to, name string, data Data) error {
	tpl, ok := templates[name]
	if !ok {
		return fmt.Errorf("unknown email template %q", name)
	}
	var body bytes.Buffer
	if err := tpl.body.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return d.mailer.SendEmail(ctx, to, tpl.subject, body.String())
}

func (d *Dispatcher) SendText(ctx context.Context, to, code string) error {
	if d.texter == nil {
		return fmt.Errorf("text delivery is not configured")
	}
	return d.texter.SendText(ctx, to, "Your verification code is "+code)
}
