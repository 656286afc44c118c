package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"kwatch/internal/models"
	"kwatch/internal/structures"
)

// EmailSender delivers alerts over SMTP with implicit TLS (port 465 style).
type EmailSender struct {
	host     string
	port     string
	username string
	password string
	from     string
	enabled  bool
}

func NewEmailSender(conf structures.EmailChannelConfig) *EmailSender {
	return &EmailSender{
		host:     conf.Host,
		port:     conf.Port,
		username: conf.Username,
		password: conf.Password,
		from:     conf.From,
		enabled:  conf.Enabled && conf.Host != "" && conf.From != "",
	}
}

func (e *EmailSender) Channel() models.Channel { return models.ChannelEmail }

func (e *EmailSender) Enabled() bool { return e.enabled }

func (e *EmailSender) Send(ctx context.Context, n *models.Notification) error {
	if n.Recipient == "" {
		return fmt.Errorf("monitor has no contact email")
	}

	msg := []byte(
		fmt.Sprintf("From: %s\r\n", e.from) +
			fmt.Sprintf("To: %s\r\n", n.Recipient) +
			fmt.Sprintf("Subject: %s\r\n", n.Subject) +
			"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
			"\r\n" +
			n.Message,
	)

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: e.host}}
	conn, err := dialer.DialContext(ctx, "tcp", e.host+":"+e.port)
	if err != nil {
		return fmt.Errorf("TLS dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Quit()

	if e.username != "" {
		auth := smtp.PlainAuth("", e.username, e.password, e.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}
	if err := client.Rcpt(n.Recipient); err != nil {
		return fmt.Errorf("SMTP RCPT command failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	return w.Close()
}
