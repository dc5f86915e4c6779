// Package mail is the outbound email boundary. Everything above it talks
// to the Sender interface; the SMTP implementation lives here so the rest
// of the system can be tested against the mock.
package mail

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message and returns the provider message ID.
type Sender interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

// SMTPOpts holds connection parameters for the SMTP sender.
type SMTPOpts struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender sends mail over plain SMTP with optional AUTH.
type SMTPSender struct {
	opts SMTPOpts

	// sendMail is swapped in tests; defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP creates an SMTPSender.
func NewSMTP(opts SMTPOpts) (*SMTPSender, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("mail: smtp host is required")
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.From == "" {
		return nil, fmt.Errorf("mail: from address is required")
	}
	return &SMTPSender{opts: opts, sendMail: smtp.SendMail}, nil
}

// Send delivers the message. The context deadline is honored coarsely:
// expired before dialing means no attempt is made. smtp.SendMail itself
// does not take a context, so an in-flight send is not interruptible.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("mail: send to %s: %w", msg.To, err)
	}
	if msg.To == "" {
		return "", fmt.Errorf("mail: recipient is required")
	}

	id := newMessageID(s.opts.Host)
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)

	var auth smtp.Auth
	if s.opts.Username != "" {
		auth = smtp.PlainAuth("", s.opts.Username, s.opts.Password, s.opts.Host)
	}

	if err := s.sendMail(addr, auth, s.opts.From, []string{msg.To}, s.encode(msg, id)); err != nil {
		return "", fmt.Errorf("mail: send to %s: %w", msg.To, err)
	}
	return id, nil
}

// encode renders the RFC 5322 message bytes.
func (s *SMTPSender) encode(msg Message, id string) []byte {
	from := s.opts.From
	if s.opts.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.opts.FromName, s.opts.From)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", id)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func newMessageID(host string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// Timestamp-only fallback keeps IDs usable if the entropy
		// source is unavailable.
		return fmt.Sprintf("<%d@%s>", time.Now().UnixNano(), host)
	}
	return fmt.Sprintf("<%d.%s@%s>", time.Now().Unix(), hex.EncodeToString(buf), host)
}
