// Package mail sends plain-text e-mail.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
)

// Message is a plain-text e-mail. Subject may hold any text; it is
// encoded before it reaches the header.
type Message struct {
	To      netmail.Address
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from *netmail.Address
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// SMTPConfig configures NewSMTPMailer. Auth is skipped when User is empty.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string

	// From is an RFC 5322 address, with or without a display name.
	From string
}

// NewSMTPMailer creates a mailer for the given relay.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	from, err := netmail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.From, err)
	}

	m := &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: from,
		send: smtp.SendMail,
	}
	if cfg.User != "" {
		m.auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return m, nil
}

// Send delivers msg. net/smtp has no context support, so ctx is only
// checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The envelope carries bare addresses; display names belong in headers.
	if err := m.send(m.addr, m.auth, m.from.Address, []string{msg.To.Address}, m.encode(msg)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To.Address, err)
	}
	return nil
}

func (m *SMTPMailer) encode(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from.String())
	fmt.Fprintf(&b, "To: %s\r\n", msg.To.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogMailer logs messages instead of sending them. It keeps the messages it
// has seen for inspection.
type LogMailer struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogMailer creates a mailer that writes to logger.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs msg.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("Mail", "to", msg.To.String(), "subject", msg.Subject, "body", msg.Body)

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns the messages logged so far.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
