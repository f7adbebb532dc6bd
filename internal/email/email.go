// Package email builds and delivers transactional mail: verification codes
// and password reset links.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/utafrali/authgate/internal/metrics"
)

// Message is a single outgoing email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Sender delivers a message through one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

var htmlTemplate = template.Must(template.New("email").Parse(
	`<div style="font-family:sans-serif"><p>{{.Lead}}</p>` +
		`{{if .Link}}<p><a href="{{.Link}}">{{.Link}}</a></p>{{end}}` +
		`{{if .Code}}<p style="font-size:20px;letter-spacing:4px"><b>{{.Code}}</b></p>{{end}}` +
		`<p style="color:#888">If you did not request this, you can ignore this email.</p></div>`,
))

type htmlData struct {
	Lead string
	Code string
	Link string
}

func render(d htmlData) string {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, d); err != nil {
		return ""
	}
	return buf.String()
}

// VerificationMessage is sent right after signup.
func VerificationMessage(to, code string) Message {
	return Message{
		To:      to,
		Subject: "Email Verification Code",
		Text:    fmt.Sprintf("Your email verification code is: %s", code),
		HTML:    render(htmlData{Lead: "Your email verification code is:", Code: code}),
	}
}

// ResendVerificationMessage carries a freshly generated verification code.
func ResendVerificationMessage(to, code string) Message {
	return Message{
		To:      to,
		Subject: "New Email Verification Code",
		Text:    fmt.Sprintf("Your new verification code is: %s", code),
		HTML:    render(htmlData{Lead: "Your new verification code is:", Code: code}),
	}
}

// ResetPasswordMessage carries the reset link.
func ResetPasswordMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Password Reset Request",
		Text:    fmt.Sprintf("Click the following link to reset your password: %s", link),
		HTML:    render(htmlData{Lead: "Click the following link to reset your password:", Link: link}),
	}
}

// instrumented counts deliveries per driver.
type instrumented struct {
	Sender
}

// WithMetrics records every Send outcome in authgate_emails_total.
func WithMetrics(s Sender) Sender {
	return instrumented{Sender: s}
}

func (s instrumented) Send(ctx context.Context, msg Message) error {
	err := s.Sender.Send(ctx, msg)
	metrics.EmailSent(s.Name(), err)
	return err
}
