// Package mailer is the outbound email primitive. Everything above it speaks
// Sender; whether a failure is surfaced or swallowed is the caller's choice
// via SendSilently.
package mailer

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Email is a single outbound message.
type Email struct {
	Subject string
	From    string
	To      []string
	CC      []string
	BCC     []string
	Body    string
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// SendSilently sends and logs any failure instead of returning it. Use only
// where a lost notification is acceptable.
func SendSilently(ctx context.Context, s Sender, e Email) {
	if err := s.Send(ctx, e); err != nil {
		log.Printf("mailer: send %q: %v", e.Subject, err)
	}
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	Addr string // host:port
	Auth smtp.Auth
	From string // default sender when Email.From is empty
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := e.From
	if from == "" {
		from = s.From
	}
	rcpts := make([]string, 0, len(e.To)+len(e.CC)+len(e.BCC))
	rcpts = append(rcpts, e.To...)
	rcpts = append(rcpts, e.CC...)
	rcpts = append(rcpts, e.BCC...)
	if len(rcpts) == 0 {
		return fmt.Errorf("send %q: no recipients", e.Subject)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.To, ", "))
	if len(e.CC) > 0 {
		fmt.Fprintf(&msg, "Cc: %s\r\n", strings.Join(e.CC, ", "))
	}
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n", e.Subject)
	msg.WriteString(e.Body)

	if err := smtp.SendMail(s.Addr, s.Auth, from, rcpts, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send %q: %w", e.Subject, err)
	}
	return nil
}

// LogSender logs instead of sending. Used in development and as a safe
// default when no relay is configured.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, e Email) error {
	log.Printf("mailer: [dry run] to=%v subject=%q (%d bytes)", e.To, e.Subject, len(e.Body))
	return nil
}
