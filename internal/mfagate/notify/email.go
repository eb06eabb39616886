// Package notify delivers one-time codes: email over SMTP through an async
// dispatcher, and SMS through Twilio Verify.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// EmailSender delivers an email OTP to an address.
type EmailSender interface {
	SendOTP(ctx context.Context, to, code string) error
}

const otpSubject = "Your login code"

func otpBody(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your verification code is %s.\r\nIt expires in %d minutes.\r\n", code, int(ttl.Minutes()))
}

// SMTPConfig configures SMTPSender. Host includes the port.
type SMTPConfig struct {
	Host     string
	Username string
	Password string
	From     string
	CodeTTL  time.Duration

	// InsecureSkipVerify disables certificate checks for STARTTLS.
	InsecureSkipVerify bool
}

// SMTPSender sends plain-text mail, upgrading with STARTTLS when offered.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) message(to string) (mail.Address, mail.Address, error) {
	from, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return mail.Address{}, mail.Address{}, fmt.Errorf("invalid from address: %w", err)
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return mail.Address{}, mail.Address{}, fmt.Errorf("invalid recipient: %w", err)
	}
	return *from, *rcpt, nil
}

// SendOTP delivers code to the recipient. The whole SMTP conversation is
// bounded by ctx.
func (s *SMTPSender) SendOTP(ctx context.Context, to, code string) error {
	from, rcpt, err := s.message(to)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	host, _, err := net.SplitHostPort(s.cfg.Host)
	if err != nil {
		host = s.cfg.Host
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, InsecureSkipVerify: s.cfg.InsecureSkipVerify}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)); err != nil {
				return fmt.Errorf("failed to authenticate: %w", err)
			}
		}
	}

	if err := c.Mail(from.Address); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	if err := c.Rcpt(rcpt.Address); err != nil {
		return fmt.Errorf("smtp RCPT: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(s.render(from, rcpt, code)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return c.Quit()
}

func (s *SMTPSender) render(from, to mail.Address, code string) []byte {
	var b strings.Builder
	header := [][2]string{
		{"From", from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", otpSubject)},
		{"Date", time.Now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="utf-8"`},
		{"Content-Transfer-Encoding", "base64"},
	}
	for _, h := range header {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")

	// RFC 2045 limits encoded lines to 76 characters.
	body := base64.StdEncoding.EncodeToString([]byte(otpBody(code, s.cfg.CodeTTL)))
	for len(body) > 76 {
		b.WriteString(body[:76])
		b.WriteString("\r\n")
		body = body[76:]
	}
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogSender stands in for SMTP in development. It logs the recipient only.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendOTP(_ context.Context, to, _ string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email transport not configured; otp not delivered", "to", to)
	return nil
}

// ErrQueueFull is returned when the dispatcher has no room for a message.
var ErrQueueFull = errors.New("notify: email queue full")
