package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wneessen/go-mail"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through an unauthenticated SMTP relay such as Mailpit.
type SMTPMailer struct {
	Host string
	Port int
	From string

	send func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPMailer constructs an SMTPMailer for host:port.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{Host: host, Port: port, From: from}
}

// Send delivers msg, honouring ctx while dialling and talking to the relay.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := m.compose(msg)
	if err != nil {
		return err
	}
	send := m.send
	if send == nil {
		send = m.dialAndSend
	}
	if err := send(ctx, out); err != nil {
		return fmt.Errorf("jobs: smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) compose(msg Message) (*mail.Msg, error) {
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return nil, fmt.Errorf("jobs: invalid subject")
	}
	out := mail.NewMsg()
	if err := out.From(m.From); err != nil {
		return nil, fmt.Errorf("jobs: from address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("jobs: to address: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	return out, nil
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.Host, mail.WithPort(m.Port), mail.WithTLSPolicy(mail.NoTLS))
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// MemoryMailer records messages instead of sending them.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []Message
}

func (m *MemoryMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns the recorded messages.
func (m *MemoryMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
