// internal/mailer/smtp.go
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

// SMTPNotifier sends over implicit TLS on port 465 and STARTTLS elsewhere.
type SMTPNotifier struct {
	cfg    SMTPConfig
	sender Sender
	now    func() time.Time
}

func NewSMTPNotifier(cfg SMTPConfig, sender Sender) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, sender: sender, now: time.Now}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	raw, err := Compose(n.sender, msg, n.now())
	if err != nil {
		return err
	}

	conn, err := n.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if n.cfg.Port != "465" {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(n.sender.Email); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}

func (n *SMTPNotifier) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(n.cfg.Host, n.cfg.Port)
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	if n.cfg.Port == "465" {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: n.cfg.Host}}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect via SSL: %w", err)
		}
		return conn, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, nil
}
