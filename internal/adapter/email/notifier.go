// Package email provides an SMTP-based notifier for deal notifications.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/Strob0t/DealWatch/internal/port/notifier"
)

const channelName = "email"

// SMTPConfig holds the configuration for SMTP connections. An empty Host
// puts the notifier in log-only mode.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier sends deal emails via SMTP.
type Notifier struct {
	cfg      SMTPConfig
	sendMail sendFunc
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a new email notifier.
func NewNotifier(cfg SMTPConfig) *Notifier {
	return &Notifier{cfg: cfg, sendMail: smtp.SendMail}
}

func (n *Notifier) Name() string { return channelName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{RichFormatting: true}
}

// Send renders the deals for notification.Rule and mails them to
// notification.Recipient.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if notification.Recipient == "" {
		return notifier.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := Subject(len(notification.Deals), notification.Rule.Name)
	body, err := RenderHTML(notification.Rule.Name, notification.Deals)
	if err != nil {
		return err
	}

	if n.cfg.Host == "" {
		slog.InfoContext(ctx, "email log-only mode",
			"to", notification.Recipient,
			"subject", subject,
			"deals", len(notification.Deals),
			"html_bytes", len(body),
		)
		return nil
	}

	from, err := mail.ParseAddress(n.cfg.From)
	if err != nil {
		return fmt.Errorf("email from address: %w", err)
	}
	to, err := mail.ParseAddress(notification.Recipient)
	if err != nil {
		return fmt.Errorf("email recipient: %w", err)
	}

	msg := buildMessage(from, to, subject, body)

	var auth smtp.Auth
	if n.cfg.Password != "" {
		user := n.cfg.Username
		if user == "" {
			user = from.Address
		}
		auth = smtp.PlainAuth("", user, n.cfg.Password, n.cfg.Host)
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	if err := n.sendMail(addr, auth, from.Address, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("email send to %s: %w", to.Address, err)
	}
	return nil
}

func buildMessage(from, to *mail.Address, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
