package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
)

// Email is an outbound message. Only plain text; the verification emails are
// short and links are pasted as-is.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers verification emails. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// SMTPMailer sends mail through a standard SMTP relay. STARTTLS is negotiated
// automatically when the server advertises it.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) Send(_ context.Context, e Email) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", e.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(e.Body)

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	if err := smtp.SendMail(addr, auth, m.From, []string{e.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogMailer records emails instead of sending them. Used in development and
// tests; Sent retains everything handed to it. The log line never carries the
// body, which holds the code and magic link.
type LogMailer struct {
	Logger *slog.Logger

	mu   sync.Mutex
	sent []Email
}

func (m *LogMailer) Send(_ context.Context, e Email) error {
	m.mu.Lock()
	m.sent = append(m.sent, e)
	m.mu.Unlock()

	if m.Logger != nil {
		m.Logger.Info("email (not sent)",
			slog.String("to", e.To),
			slog.String("subject", e.Subject),
			slog.Int("body_bytes", len(e.Body)),
		)
	}
	return nil
}

// Sent returns a copy of every email handed to the mailer.
func (m *LogMailer) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}
