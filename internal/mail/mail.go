// Package mail delivers transactional email (signup and reset passcodes).
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("mail server not configured")

// Sender is the mail collaborator. Any returned error is a delivery failure.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

func ConfigFromEnv() Config {
	port, err := strconv.Atoi(os.Getenv("MAIL_PORT"))
	if err != nil || port <= 0 {
		port = 587
	}
	from := os.Getenv("MAIL_SENDER")
	if from == "" {
		from = os.Getenv("MAIL_USERNAME")
	}
	return Config{
		Server:   os.Getenv("MAIL_SERVER"),
		Port:     port,
		Username: os.Getenv("MAIL_USERNAME"),
		Password: os.Getenv("MAIL_PASSWORD"),
		From:     from,
		UseTLS:   os.Getenv("MAIL_USE_TLS") != "False" && os.Getenv("MAIL_USE_TLS") != "false",
		Timeout:  10 * time.Second,
	}
}

// New picks a sender for cfg: SMTP when a server is configured, otherwise a
// log sender in dev mode and a disabled sender elsewhere.
func New(cfg Config, dev bool, logger *zap.SugaredLogger) Sender {
	switch {
	case cfg.Server != "":
		return NewSMTPSender(cfg)
	case dev:
		return &LogSender{logger: logger}
	default:
		return Disabled{}
	}
}

// SMTPSender speaks SMTP with STARTTLS and PLAIN auth.
type SMTPSender struct {
	cfg Config
}

func NewSMTPSender(cfg Config) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Server, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Server)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if s.cfg.UseTLS {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Server, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Server)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(compose(s.cfg.From, to, subject, body)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return c.Quit()
}

func compose(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogSender records deliveries in the debug log instead of sending them.
// The body carries one-time codes and is never logged.
type LogSender struct {
	logger *zap.SugaredLogger
}

func NewLogSender(logger *zap.SugaredLogger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Debugw("mail not delivered (dev sender)", "to", to, "subject", subject, "body_bytes", len(body))
	return nil
}

// Disabled fails every delivery.
type Disabled struct{}

func (Disabled) Send(context.Context, string, string, string) error { return ErrNotConfigured }
