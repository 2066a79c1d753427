package email

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adamwilson22/Velaa-Backend/internal/config"
)

// TemplateHeader carries the template a message was rendered from.
const TemplateHeader = "X-Velaa-Template"

// Sender defines the interface for sending emails.
// The rawMessage parameter should contain the full email message, including headers and body, properly formatted.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// Message is a plain-text email before encoding.
type Message struct {
	From     string
	To       []string
	Subject  string
	Body     string
	Template string
	Date     time.Time
}

// Bytes renders the message with CRLF line endings.
func (m Message) Bytes() []byte {
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	headers := map[string]string{
		"To":           strings.Join(m.To, ", "),
		"From":         m.From,
		"Subject":      m.Subject,
		"Date":         date.Format(time.RFC1123Z),
		"MIME-Version": "1.0",
		"Content-Type": `text/plain; charset="UTF-8"`,
	}
	if m.Template != "" {
		headers[TemplateHeader] = m.Template
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\r\n", k, headers[k])
	}
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(strings.TrimRight(m.Body, "\r\n"), "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// HeaderValue returns the value of header name in a raw message, or "".
func HeaderValue(rawMessage []byte, name string) string {
	head, _, _ := strings.Cut(string(rawMessage), "\r\n\r\n")
	prefix := strings.ToLower(name) + ":"
	for _, line := range strings.Split(head, "\r\n") {
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}

// SMTPSender implements the Sender interface using Go's net/smtp package.
type SMTPSender struct {
	from string
	auth smtp.Auth
	addr string
}

// NewSMTPSender returns an SMTP sender, or a LoggingSender when no SMTP host is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		log.Warn().Msg("SMTP host not configured, using logging email sender")
		return &LoggingSender{from: cfg.SmtpFromAddress}
	}
	return &SMTPSender{
		from: cfg.SmtpFromAddress,
		auth: smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost),
		addr: fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort),
	}
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := smtp.SendMail(s.addr, s.auth, s.from, to, rawMessage); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	log.Ctx(ctx).Info().Strs("to", to).Str("subject", subject).Msg("email sent via SMTP")
	return nil
}

// LoggingSender only logs the message.
type LoggingSender struct {
	from string
}

func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	log.Info().
		Strs("to", to).
		Str("from", s.from).
		Str("subject", subject).
		Str("raw", string(rawMessage)).
		Msg("email logged instead of sent")
	return nil
}
